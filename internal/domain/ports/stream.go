package ports

import (
	"context"
	"io"

	"torrentplay/internal/domain"
)

// StreamReader reads one file of a session, blocking until pieces arrive.
type StreamReader interface {
	io.ReadSeekCloser
	SetContext(context.Context)
	SetReadahead(int64)
}

// StreamServer is a bound local listener serving one file.
type StreamServer interface {
	URL() string
	Info() domain.ServerInfo
	Close() error
}

// StreamBinder binds a StreamServer for the given file of a session.
type StreamBinder interface {
	Bind(id domain.TorrentID, session Session, file domain.FileEntry) (StreamServer, error)
}
