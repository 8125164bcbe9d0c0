package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"torrentplay/internal/domain"
)

// Repository persists parsed descriptors. Only the raw metainfo and a few
// lookup fields are stored; everything else is re-derived on load.
type Repository struct {
	collection *mongo.Collection
	now        func() time.Time
}

type descriptorDoc struct {
	ID        string `bson:"_id"`
	InfoHash  string `bson:"infoHash"`
	Name      string `bson:"name"`
	Raw       []byte `bson:"raw"`
	Files     int    `bson:"files"`
	Length    int64  `bson:"length"`
	UpdatedAt int64  `bson:"updatedAt"`
}

func NewRepository(client *mongo.Client, dbName, collectionName string) *Repository {
	return &Repository{
		collection: client.Database(dbName).Collection(collectionName),
		now:        time.Now,
	}
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *Repository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "infoHash", Value: 1}}},
		{Keys: bson.D{{Key: "updatedAt", Value: -1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

// Save upserts desc under its identifier.
func (r *Repository) Save(ctx context.Context, desc *domain.Descriptor) error {
	if desc == nil {
		return errors.New("nil descriptor")
	}
	doc := toDoc(desc, r.now().UTC())
	_, err := r.collection.ReplaceOne(ctx,
		bson.M{"_id": doc.ID},
		doc,
		options.Replace().SetUpsert(true),
	)
	return err
}

// List returns stored descriptors, most recently saved first.
func (r *Repository) List(ctx context.Context) ([]domain.Descriptor, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []descriptorDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.Descriptor, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromDoc(doc))
	}
	return out, nil
}

func toDoc(desc *domain.Descriptor, now time.Time) descriptorDoc {
	return descriptorDoc{
		ID:        string(desc.ID),
		InfoHash:  desc.InfoHash,
		Name:      desc.Name,
		Raw:       desc.Raw,
		Files:     len(desc.Files),
		Length:    desc.Length,
		UpdatedAt: now.Unix(),
	}
}

// fromDoc restores the fields kept in the document. Files and piece layout
// come back from parsing Raw.
func fromDoc(doc descriptorDoc) domain.Descriptor {
	return domain.Descriptor{
		ID:       domain.TorrentID(doc.ID),
		InfoHash: doc.InfoHash,
		Name:     doc.Name,
		Length:   doc.Length,
		Raw:      doc.Raw,
	}
}
