package anacrolix

import (
	"sync"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/storage"

	"torrentplay/internal/domain"
	"torrentplay/internal/domain/ports"
)

var errSessionClosed = domain.ErrNotFound

type Session struct {
	engine  *Engine
	torrent *torrent.Torrent
	storage storage.ClientImplCloser
	dir     string
	id      domain.TorrentID

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func (s *Session) StoragePath() string {
	return s.dir
}

func (s *Session) Deselect(startPiece, endPiece int) {
	s.setPieces(startPiece, endPiece, false)
}

func (s *Session) Select(startPiece, endPiece int) {
	s.setPieces(startPiece, endPiece, true)
}

func (s *Session) Stats() ports.TransferStats {
	t := s.live()
	if t == nil {
		return ports.TransferStats{}
	}
	stats := t.Stats()
	out := ports.TransferStats{BytesReadData: stats.BytesReadUsefulData.Int64()}
	files := t.Files()
	out.FileBytesCompleted = make([]int64, len(files))
	for i, f := range files {
		out.FileBytesCompleted[i] = f.BytesCompleted()
	}
	return out
}

func (s *Session) NewReader(fileIndex int) (ports.StreamReader, error) {
	t := s.live()
	if t == nil {
		return nil, errSessionClosed
	}
	files := t.Files()
	if fileIndex < 0 || fileIndex >= len(files) {
		return nil, domain.ErrFileIndex
	}
	return files[fileIndex].NewReader(), nil
}

// Close drops the torrent from the client and releases its storage. Data on
// disk is left for the caller to remove.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		if s.torrent != nil {
			hash := s.torrent.InfoHash()
			s.torrent.Drop()
			if s.engine != nil {
				s.engine.forget(hash, s)
			}
		}
		if s.storage != nil {
			err = s.storage.Close()
		}
	})
	return err
}

func (s *Session) live() *torrent.Torrent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || !torrentInfoReady(s.torrent) {
		return nil
	}
	return s.torrent
}
