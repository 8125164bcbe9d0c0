package usecase

import (
	"torrentplay/internal/domain"
	"torrentplay/internal/domain/ports"
)

// torrentSession is the registry entry for a torrent the engine accepted.
type torrentSession struct {
	id         domain.TorrentID
	desc       *domain.Descriptor
	fileIndex  int
	session    ports.Session
	path       string
	generation uint64
}

// registry holds the manager's per-identifier state. It is owned by the
// manager loop and never shared, so it carries no locks.
type registry struct {
	descriptors map[domain.TorrentID]*domain.Descriptor
	sessions    map[domain.TorrentID]*torrentSession
	servers     map[domain.TorrentID]ports.StreamServer
	reporters   map[domain.TorrentID]*ProgressReporter
	states      map[domain.TorrentID]domain.State
}

func newRegistry() *registry {
	return &registry{
		descriptors: make(map[domain.TorrentID]*domain.Descriptor),
		sessions:    make(map[domain.TorrentID]*torrentSession),
		servers:     make(map[domain.TorrentID]ports.StreamServer),
		reporters:   make(map[domain.TorrentID]*ProgressReporter),
		states:      make(map[domain.TorrentID]domain.State),
	}
}

func (r *registry) state(id domain.TorrentID) domain.State {
	if s, ok := r.states[id]; ok {
		return s
	}
	return domain.StateUnparsed
}

// setState applies a transition and reports whether it was valid. Moving to
// the current state is a no-op.
func (r *registry) setState(id domain.TorrentID, to domain.State) bool {
	from := r.state(id)
	if from == to {
		return true
	}
	if !domain.CanTransition(from, to) {
		return false
	}
	r.states[id] = to
	return true
}

// live lists every identifier that holds a session, server or reporter.
func (r *registry) live() []domain.TorrentID {
	seen := make(map[domain.TorrentID]struct{})
	var ids []domain.TorrentID
	add := func(id domain.TorrentID) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for id := range r.sessions {
		add(id)
	}
	for id := range r.servers {
		add(id)
	}
	for id := range r.reporters {
		add(id)
	}
	return ids
}
