package ports

import (
	"context"

	"torrentplay/internal/domain"
)

// Cleaner removes on-disk content of a session.
type Cleaner interface {
	RemoveAll(path string) error
}

// DescriptorStore persists raw descriptors across process restarts.
type DescriptorStore interface {
	Save(ctx context.Context, desc *domain.Descriptor) error
	List(ctx context.Context) ([]domain.Descriptor, error)
}
