package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"torrentplay/internal/domain"
	"torrentplay/internal/metrics"
)

// destroy tears down everything running for id and keeps the descriptor.
// Every step tolerates a missing resource. Close errors are returned after
// all steps ran; cleared is emitted regardless.
func (m *Manager) destroy(ctx context.Context, id domain.TorrentID) error {
	if p, ok := m.pending[id]; ok {
		p.cancel()
		delete(m.pending, id)
	}

	if reporter, ok := m.reg.reporters[id]; ok {
		reporter.Stop()
		delete(m.reg.reporters, id)
	}

	var errs []error
	if server, ok := m.reg.servers[id]; ok {
		if err := server.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stream server: %w", err))
		}
		delete(m.reg.servers, id)
		metrics.StreamServers.Dec()
	}

	path, err := m.releaseSession(id, true)
	if err != nil {
		errs = append(errs, err)
	}

	if m.reg.descriptors[id] != nil {
		m.reg.setState(id, domain.StateDestroyed)
	}

	if path == "" {
		m.emit(ctx, domain.ClearedEvent(id))
	}
	return errors.Join(errs...)
}

// releaseSession closes the engine session of id and clears it from the
// registry. Storage is removed in the background; with notify set, cleared
// follows the removal. It returns the storage path, if any.
func (m *Manager) releaseSession(id domain.TorrentID, notify bool) (string, error) {
	ts, ok := m.reg.sessions[id]
	if !ok {
		return "", nil
	}
	delete(m.reg.sessions, id)
	metrics.ActiveSessions.Dec()

	var err error
	if cerr := ts.session.Close(); cerr != nil {
		err = fmt.Errorf("close engine session: %w", cerr)
	}
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		m.removeStorage(id, ts.path)
		if notify {
			m.emit(context.Background(), domain.ClearedEvent(id))
		}
	}()
	return ts.path, err
}

func (m *Manager) removeStorage(id domain.TorrentID, path string) {
	if m.cleaner == nil || path == "" {
		return
	}
	if err := m.cleaner.RemoveAll(path); err != nil {
		metrics.FSCleanupFailuresTotal.Inc()
		m.logger.Warn("torrent storage cleanup failed",
			slog.String("torrentId", string(id)),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}
	m.logger.Debug("torrent storage removed",
		slog.String("torrentId", string(id)),
		slog.String("path", path),
	)
}
