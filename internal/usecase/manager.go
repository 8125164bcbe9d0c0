package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"torrentplay/internal/domain"
	"torrentplay/internal/domain/ports"
	"torrentplay/internal/metrics"
)

const (
	defaultEventBuffer    = 64
	defaultConcurrentAdds = 4
	persistTimeout        = 5 * time.Second
)

// SessionDirs allocates the storage directory of one start attempt.
type SessionDirs interface {
	SessionDir(id domain.TorrentID, generation uint64) string
}

type Config struct {
	Engine  ports.Engine
	Parser  ports.Parser
	Binder  ports.StreamBinder
	Cleaner ports.Cleaner
	Dirs    SessionDirs
	Store   ports.DescriptorStore // optional

	ProgressInterval time.Duration
	ConcurrentAdds   int64
	EventBuffer      int
	Messages         *Messages
	Logger           *slog.Logger
}

// Manager owns the torrent lifecycle. A single goroutine (Run) owns the
// registry; commands, engine add completions and queries reach it over
// channels.
type Manager struct {
	engine   ports.Engine
	parser   ports.Parser
	binder   ports.StreamBinder
	cleaner  ports.Cleaner
	dirs     SessionDirs
	store    ports.DescriptorStore
	interval time.Duration
	messages *Messages
	logger   *slog.Logger
	tracer   trace.Tracer
	addSem   *semaphore.Weighted

	reg     *registry
	pending map[domain.TorrentID]*pendingAdd
	nextGen uint64

	commands   chan domain.Command
	addResults chan addResult
	queries    chan func()
	events     chan domain.Event

	runCtx    context.Context
	runCancel context.CancelFunc
	bg        sync.WaitGroup

	startMu      sync.Mutex
	started      atomic.Bool
	quit         chan struct{}
	quitOnce     sync.Once
	stopping     chan struct{}
	done         chan struct{}
	shutdownOnce sync.Once
}

type pendingAdd struct {
	generation uint64
	cancel     context.CancelFunc
}

type addResult struct {
	id         domain.TorrentID
	generation uint64
	desc       *domain.Descriptor
	fileIndex  int
	dir        string
	session    ports.Session
	err        error
}

func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	messages := cfg.Messages
	if messages == nil {
		messages = NewMessages("en")
	}
	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	adds := cfg.ConcurrentAdds
	if adds <= 0 {
		adds = defaultConcurrentAdds
	}
	runCtx, runCancel := context.WithCancel(context.Background())
	return &Manager{
		engine:     cfg.Engine,
		parser:     cfg.Parser,
		binder:     cfg.Binder,
		cleaner:    cfg.Cleaner,
		dirs:       cfg.Dirs,
		store:      cfg.Store,
		interval:   cfg.ProgressInterval,
		messages:   messages,
		logger:     logger,
		tracer:     otel.Tracer("torrentplay/usecase"),
		addSem:     semaphore.NewWeighted(adds),
		reg:        newRegistry(),
		pending:    make(map[domain.TorrentID]*pendingAdd),
		commands:   make(chan domain.Command),
		addResults: make(chan addResult),
		queries:    make(chan func()),
		events:     make(chan domain.Event, buffer),
		runCtx:     runCtx,
		runCancel:  runCancel,
		quit:       make(chan struct{}),
		stopping:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Events is closed once the manager has shut down.
func (m *Manager) Events() <-chan domain.Event {
	return m.events
}

// Submit queues cmd for the loop. It returns once the loop has taken the
// command; the outcome is reported as events.
func (m *Manager) Submit(ctx context.Context, cmd domain.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	select {
	case <-m.stopping:
		return domain.ErrClosed
	default:
	}
	select {
	case m.commands <- cmd:
		return nil
	case <-m.stopping:
		return domain.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes commands until ctx is cancelled or Close is called, then
// tears down every live torrent.
func (m *Manager) Run(ctx context.Context) error {
	m.startMu.Lock()
	if !m.started.CompareAndSwap(false, true) {
		m.startMu.Unlock()
		return errors.New("manager already running")
	}
	m.startMu.Unlock()
	defer m.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.quit:
			return nil
		case cmd := <-m.commands:
			m.dispatch(cmd)
		case res := <-m.addResults:
			m.handleAddResult(res)
		case q := <-m.queries:
			q()
		}
	}
}

// Close stops the loop, destroys every live torrent and waits for pending
// storage removals.
func (m *Manager) Close() error {
	m.quitOnce.Do(func() { close(m.quit) })
	m.startMu.Lock()
	if m.started.Load() {
		m.startMu.Unlock()
		<-m.done
		return nil
	}
	defer m.startMu.Unlock()
	m.shutdown()
	return nil
}

func (m *Manager) shutdown() {
	m.shutdownOnce.Do(func() {
		close(m.stopping)
		ctx := context.Background()
		ids := m.reg.live()
		for id := range m.pending {
			ids = append(ids, id)
		}
		for _, id := range ids {
			if !m.tracked(id) {
				continue
			}
			if err := m.destroy(ctx, id); err != nil {
				m.logger.Warn("destroy on shutdown failed",
					slog.String("torrentId", string(id)),
					slog.String("error", err.Error()),
				)
			}
		}
		m.runCancel()
		m.bg.Wait()
		close(m.events)
		close(m.done)
	})
}

// Descriptor returns the stored descriptor for id.
func (m *Manager) Descriptor(ctx context.Context, id domain.TorrentID) (*domain.Descriptor, error) {
	var desc *domain.Descriptor
	if err := m.query(ctx, func() { desc = m.reg.descriptors[id] }); err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return desc, nil
}

// State returns the lifecycle state of id.
func (m *Manager) State(ctx context.Context, id domain.TorrentID) (domain.State, error) {
	var state domain.State
	if err := m.query(ctx, func() { state = m.reg.state(id) }); err != nil {
		return "", err
	}
	return state, nil
}

// Restore loads persisted descriptors into the registry without emitting
// events. Entries that no longer parse are skipped. It may be called before
// or after Run.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	stored, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}
	parsed := make([]*domain.Descriptor, 0, len(stored))
	for _, s := range stored {
		desc, err := m.parser.Parse(s.ID, s.Raw)
		if err != nil || desc == nil {
			m.logger.Warn("skip stored descriptor",
				slog.String("torrentId", string(s.ID)),
				slog.Any("error", err),
			)
			continue
		}
		parsed = append(parsed, desc)
	}
	apply := func() {
		for _, desc := range parsed {
			m.reg.descriptors[desc.ID] = desc
			m.reg.setState(desc.ID, domain.StateParsed)
		}
	}

	// Before Run the registry has no owner yet.
	m.startMu.Lock()
	if !m.started.Load() {
		defer m.startMu.Unlock()
		select {
		case <-m.stopping:
			return 0, domain.ErrClosed
		default:
		}
		apply()
		return len(parsed), nil
	}
	m.startMu.Unlock()

	if err := m.query(ctx, apply); err != nil {
		return 0, err
	}
	return len(parsed), nil
}

func (m *Manager) query(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case m.queries <- func() { fn(); close(done) }:
	case <-m.stopping:
		return domain.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) dispatch(cmd domain.Command) {
	ctx, span := m.tracer.Start(m.runCtx, "torrent."+string(cmd.Type),
		trace.WithAttributes(attribute.String("torrent.id", string(cmd.ID))),
	)
	defer span.End()

	result := "ok"
	if err := m.execute(ctx, cmd); err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.fail(ctx, cmd.Type, cmd.ID, err)
	}
	metrics.CommandsTotal.WithLabelValues(string(cmd.Type), result).Inc()
}

func (m *Manager) execute(ctx context.Context, cmd domain.Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("torrent command panic recovered",
				slog.String("torrentId", string(cmd.ID)),
				slog.String("command", string(cmd.Type)),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch cmd.Type {
	case domain.CommandParse:
		return m.parse(ctx, cmd.ID, cmd.Blob)
	case domain.CommandStart:
		return m.start(ctx, cmd.ID, cmd.FileIndex)
	case domain.CommandDestroy:
		return m.destroy(ctx, cmd.ID)
	default:
		return fmt.Errorf("%w: unknown type %q", domain.ErrInvalidCommand, cmd.Type)
	}
}

func (m *Manager) fail(ctx context.Context, cmd domain.CommandType, id domain.TorrentID, err error) {
	key := messageKeyFor(cmd, err)
	m.logger.Warn("torrent command failed",
		slog.String("torrentId", string(id)),
		slog.String("command", string(cmd)),
		slog.String("error", err.Error()),
	)
	m.emit(ctx, domain.ErrorEvent(id, m.messages.Text(key), err))
}

// emit delivers ev, blocking for a slow consumer until shutdown starts.
// After that delivery is best effort.
func (m *Manager) emit(ctx context.Context, ev domain.Event) bool {
	select {
	case m.events <- ev:
		return true
	default:
	}
	select {
	case m.events <- ev:
		return true
	case <-m.stopping:
		m.logger.Debug("event dropped on shutdown",
			slog.String("torrentId", string(ev.ID)),
			slog.String("type", string(ev.Type)),
		)
		return false
	case <-ctx.Done():
		return false
	}
}

func (m *Manager) tracked(id domain.TorrentID) bool {
	if _, ok := m.pending[id]; ok {
		return true
	}
	if _, ok := m.reg.sessions[id]; ok {
		return true
	}
	if _, ok := m.reg.servers[id]; ok {
		return true
	}
	_, ok := m.reg.reporters[id]
	return ok
}
