package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"torrentplay/internal/domain"
	"torrentplay/internal/metrics"
)

// start begins a selective download of one file. Any session or in-flight add
// for id is destroyed first. The engine add runs in its own goroutine and
// completes in handleAddResult.
func (m *Manager) start(ctx context.Context, id domain.TorrentID, fileIndex int) error {
	desc := m.reg.descriptors[id]
	if desc == nil {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if m.tracked(id) {
		if err := m.destroy(ctx, id); err != nil {
			m.logger.Warn("replace torrent: destroy failed",
				slog.String("torrentId", string(id)),
				slog.String("error", err.Error()),
			)
		}
	}
	if _, err := desc.File(fileIndex); err != nil {
		return err
	}
	m.reg.setState(id, domain.StateParsed)

	m.nextGen++
	gen := m.nextGen
	dir := m.dirs.SessionDir(id, gen)

	addCtx, cancel := context.WithCancel(m.runCtx)
	m.pending[id] = &pendingAdd{generation: gen, cancel: cancel}

	m.logger.Info("start torrent",
		slog.String("torrentId", string(id)),
		slog.Int("fileIndex", fileIndex),
		slog.Uint64("generation", gen),
		slog.String("path", dir),
	)

	res := addResult{id: id, generation: gen, desc: desc, fileIndex: fileIndex, dir: dir}
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		defer cancel()
		if err := m.addSem.Acquire(addCtx, 1); err != nil {
			res.err = err
		} else {
			res.session, res.err = m.engine.Add(addCtx, desc, dir)
			m.addSem.Release(1)
		}
		select {
		case m.addResults <- res:
		case <-m.stopping:
			m.discard(res)
		}
	}()
	return nil
}

func (m *Manager) handleAddResult(res addResult) {
	p, ok := m.pending[res.id]
	if !ok || p.generation != res.generation {
		m.logger.Debug("discard stale engine add",
			slog.String("torrentId", string(res.id)),
			slog.Uint64("generation", res.generation),
		)
		m.bg.Add(1)
		go func() {
			defer m.bg.Done()
			m.discard(res)
		}()
		return
	}
	delete(m.pending, res.id)

	ctx, span := m.tracer.Start(m.runCtx, "torrent.activate")
	defer span.End()

	if res.err != nil {
		m.bg.Add(1)
		go func() {
			defer m.bg.Done()
			m.discard(res)
		}()
		m.fail(ctx, domain.CommandStart, res.id, wrapEngine(res.err))
		return
	}
	m.activate(ctx, res)
}

// activate narrows the download to the target file, binds the stream server
// and starts the reporter.
func (m *Manager) activate(ctx context.Context, res addResult) {
	id, desc, sess := res.id, res.desc, res.session
	file := desc.Files[res.fileIndex]

	// Deselect first so no unwanted piece is requested in between.
	sess.Deselect(0, desc.LastPiece())
	sess.Select(file.StartPiece, file.EndPiece)

	path := sess.StoragePath()
	if path == "" {
		path = res.dir
	}
	m.reg.sessions[id] = &torrentSession{
		id:         id,
		desc:       desc,
		fileIndex:  res.fileIndex,
		session:    sess,
		path:       path,
		generation: res.generation,
	}
	metrics.ActiveSessions.Inc()
	m.reg.setState(id, domain.StateAdded)

	server, err := m.binder.Bind(id, sess, file)
	if err != nil {
		m.releaseSession(id, false)
		m.reg.setState(id, domain.StateParsed)
		m.fail(ctx, domain.CommandStart, id, wrapBind(err))
		return
	}
	m.reg.servers[id] = server
	metrics.StreamServers.Inc()
	m.reg.setState(id, domain.StateServing)

	info := server.Info()
	m.logger.Info("stream server started",
		slog.String("torrentId", string(id)),
		slog.String("url", server.URL()),
		slog.Int("port", info.Port),
		slog.String("file", file.Path),
	)
	m.emit(ctx, domain.ServerReadyEvent(id, server.URL(), info))

	reporter := newProgressReporter(id, desc, res.fileIndex, sess, m.interval, m.emit, m.logger)
	reporter.Start(m.runCtx)
	m.reg.reporters[id] = reporter
}

// discard releases the outcome of an add nobody waits for any more.
func (m *Manager) discard(res addResult) {
	if res.session != nil {
		if err := res.session.Close(); err != nil {
			m.logger.Warn("close discarded session failed",
				slog.String("torrentId", string(res.id)),
				slog.String("error", err.Error()),
			)
		}
	}
	m.removeStorage(res.id, res.dir)
}
