package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"torrentplay/internal/domain"
)

// parse decodes blob and stores the descriptor. A nil blob stores nothing and
// still answers with a data event carrying no descriptor.
func (m *Manager) parse(ctx context.Context, id domain.TorrentID, blob []byte) error {
	desc, err := m.parser.Parse(id, blob)
	if err != nil {
		if !errors.Is(err, domain.ErrParse) {
			err = fmt.Errorf("%w: %v", domain.ErrParse, err)
		}
		return err
	}
	if desc == nil {
		m.emit(ctx, domain.DataEvent(id, nil))
		return nil
	}

	m.reg.descriptors[id] = desc
	m.reg.setState(id, domain.StateParsed)
	m.persist(desc)

	m.logger.Debug("parse torrent",
		slog.String("torrentId", string(id)),
		slog.String("infoHash", desc.InfoHash),
		slog.String("name", desc.Name),
		slog.Int("files", len(desc.Files)),
		slog.Int64("length", desc.Length),
	)
	m.emit(ctx, domain.DataEvent(id, desc))
	return nil
}

func (m *Manager) persist(desc *domain.Descriptor) {
	if m.store == nil {
		return
	}
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := m.store.Save(ctx, desc); err != nil {
			m.logger.Warn("descriptor save failed",
				slog.String("torrentId", string(desc.ID)),
				slog.String("error", err.Error()),
			)
		}
	}()
}
