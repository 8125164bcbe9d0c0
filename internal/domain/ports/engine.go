package ports

import (
	"context"

	"torrentplay/internal/domain"
)

// Engine is the download-engine capability. Add registers the descriptor
// with storage rooted at dir and returns once the engine has accepted it.
type Engine interface {
	Add(ctx context.Context, desc *domain.Descriptor, dir string) (Session, error)
	Close() error
}

// Parser turns raw descriptor bytes into a Descriptor without side effects.
type Parser interface {
	Parse(id domain.TorrentID, blob []byte) (*domain.Descriptor, error)
}
