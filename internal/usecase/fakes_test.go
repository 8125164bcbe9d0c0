package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"torrentplay/internal/domain"
	"torrentplay/internal/domain/ports"
	"torrentplay/internal/services/torrent/parser"
)

const testInterval = 20 * time.Millisecond

func movieTorrent() []byte {
	const length, pieceLength = 1000000, 262144
	pieces := (length + pieceLength - 1) / pieceLength
	return []byte(fmt.Sprintf("d4:infod6:lengthi%de4:name9:movie.mkv12:piece lengthi%de6:pieces%d:%see",
		length, pieceLength, pieces*20, strings.Repeat("p", pieces*20)))
}

type fakeEngine struct {
	mu           sync.Mutex
	calls        []string
	sessions     []*fakeSession
	gate         chan struct{}
	ignoreCancel bool
	err          error
}

func (f *fakeEngine) Add(ctx context.Context, desc *domain.Descriptor, dir string) (ports.Session, error) {
	f.mu.Lock()
	f.calls = append(f.calls, dir)
	gate, ignore, err := f.gate, f.ignoreCancel, f.err
	f.mu.Unlock()

	if gate != nil {
		if ignore {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err != nil {
		return nil, err
	}
	s := &fakeSession{dir: dir}
	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	return s, nil
}

func (f *fakeEngine) Close() error { return nil }

func (f *fakeEngine) addCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeEngine) session(i int) *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.sessions) {
		return nil
	}
	return f.sessions[i]
}

func (f *fakeEngine) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type fakeSession struct {
	dir string

	mu              sync.Mutex
	ops             []string
	closed          bool
	statsAfterClose int
	bytesRead       int64
}

func (s *fakeSession) Deselect(start, end int) {
	s.mu.Lock()
	s.ops = append(s.ops, fmt.Sprintf("deselect:%d-%d", start, end))
	s.mu.Unlock()
}

func (s *fakeSession) Select(start, end int) {
	s.mu.Lock()
	s.ops = append(s.ops, fmt.Sprintf("select:%d-%d", start, end))
	s.mu.Unlock()
}

func (s *fakeSession) Stats() ports.TransferStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.statsAfterClose++
	}
	s.bytesRead += 1000
	return ports.TransferStats{BytesReadData: s.bytesRead, FileBytesCompleted: []int64{s.bytesRead}}
}

func (s *fakeSession) NewReader(int) (ports.StreamReader, error) {
	return nil, errors.New("not supported")
}

func (s *fakeSession) StoragePath() string { return s.dir }

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) sampledAfterClose() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsAfterClose
}

func (s *fakeSession) operations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

type fakeBinder struct {
	mu   sync.Mutex
	log  []string
	port int
	err  error
}

func (b *fakeBinder) Bind(id domain.TorrentID, _ ports.Session, _ domain.FileEntry) (ports.StreamServer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	b.port++
	b.log = append(b.log, fmt.Sprintf("bind:%s:%d", id, b.port))
	return &fakeServer{binder: b, id: id, port: b.port}, nil
}

func (b *fakeBinder) setErr(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

func (b *fakeBinder) entries() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.log...)
}

type fakeServer struct {
	binder *fakeBinder
	id     domain.TorrentID
	port   int
	once   sync.Once
}

func (s *fakeServer) URL() string { return "http://localhost:" + strconv.Itoa(s.port) }

func (s *fakeServer) Info() domain.ServerInfo {
	return domain.ServerInfo{Host: "127.0.0.1", Port: s.port}
}

func (s *fakeServer) Close() error {
	s.once.Do(func() {
		s.binder.mu.Lock()
		s.binder.log = append(s.binder.log, fmt.Sprintf("close:%s:%d", s.id, s.port))
		s.binder.mu.Unlock()
	})
	return nil
}

type fakeCleaner struct {
	mu      sync.Mutex
	removed []string
	err     error
}

func (c *fakeCleaner) RemoveAll(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = append(c.removed, path)
	return c.err
}

func (c *fakeCleaner) has(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.removed {
		if p == path {
			return true
		}
	}
	return false
}

type fakeDirs struct{ root string }

func (d fakeDirs) SessionDir(id domain.TorrentID, gen uint64) string {
	return filepath.Join(d.root, string(id), strconv.FormatUint(gen, 10))
}

type fakeStore struct {
	mu    sync.Mutex
	saved []domain.TorrentID
	list  []domain.Descriptor
}

func (s *fakeStore) Save(_ context.Context, desc *domain.Descriptor) error {
	s.mu.Lock()
	s.saved = append(s.saved, desc.ID)
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) List(context.Context) ([]domain.Descriptor, error) {
	return s.list, nil
}

func (s *fakeStore) savedIDs() []domain.TorrentID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TorrentID(nil), s.saved...)
}

type panicParser struct{}

func (panicParser) Parse(domain.TorrentID, []byte) (*domain.Descriptor, error) {
	panic("boom")
}

// eventLog drains the manager's event channel so no emitter ever blocks.
type eventLog struct {
	mu     sync.Mutex
	events []domain.Event
	closed chan struct{}
}

func newEventLog(ch <-chan domain.Event) *eventLog {
	l := &eventLog{closed: make(chan struct{})}
	go func() {
		defer close(l.closed)
		for ev := range ch {
			l.mu.Lock()
			l.events = append(l.events, ev)
			l.mu.Unlock()
		}
	}()
	return l
}

func (l *eventLog) all() []domain.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Event(nil), l.events...)
}

func (l *eventLog) matching(match func(domain.Event) bool) []domain.Event {
	var out []domain.Event
	for _, ev := range l.all() {
		if match(ev) {
			out = append(out, ev)
		}
	}
	return out
}

func (l *eventLog) waitFor(t *testing.T, n int, match func(domain.Event) bool) domain.Event {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		if evs := l.matching(match); len(evs) >= n {
			return evs[n-1]
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for event #%d; have %v", n, l.summary())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (l *eventLog) summary() []string {
	var out []string
	for _, ev := range l.all() {
		out = append(out, string(ev.Type)+":"+string(ev.ID))
	}
	return out
}

func ofType(typ domain.EventType, id domain.TorrentID) func(domain.Event) bool {
	return func(ev domain.Event) bool {
		return ev.Type == typ && ev.ID == id
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type harness struct {
	m       *Manager
	engine  *fakeEngine
	binder  *fakeBinder
	cleaner *fakeCleaner
	store   *fakeStore
	events  *eventLog
}

// newIdleHarness builds a manager without starting its loop.
func newIdleHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		engine:  &fakeEngine{},
		binder:  &fakeBinder{port: 40000},
		cleaner: &fakeCleaner{},
		store:   &fakeStore{},
	}
	cfg := Config{
		Engine:           h.engine,
		Parser:           parser.NewService(),
		Binder:           h.binder,
		Cleaner:          h.cleaner,
		Dirs:             fakeDirs{root: "/data"},
		Store:            h.store,
		ProgressInterval: testInterval,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	h.m = NewManager(cfg)
	h.events = newEventLog(h.m.Events())
	return h
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()
	h := newIdleHarness(t, opts...)
	h.run(t)
	return h
}

// run starts the manager loop and waits until it answers queries.
func (h *harness) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = h.m.Run(ctx) }()
	t.Cleanup(func() {
		_ = h.m.Close()
		cancel()
	})
	// A query round trip guarantees the loop is running.
	if _, err := h.m.State(context.Background(), "warmup"); err != nil {
		t.Fatalf("State: %v", err)
	}
}

func (h *harness) submit(t *testing.T, cmd domain.Command) {
	t.Helper()
	if err := h.m.Submit(context.Background(), cmd); err != nil {
		t.Fatalf("Submit(%s %s): %v", cmd.Type, cmd.ID, err)
	}
}

func (h *harness) parse(t *testing.T, id domain.TorrentID) {
	t.Helper()
	h.submit(t, domain.Command{Type: domain.CommandParse, ID: id, Blob: movieTorrent()})
	h.events.waitFor(t, 1, ofType(domain.EventData, id))
}

func (h *harness) state(t *testing.T, id domain.TorrentID) domain.State {
	t.Helper()
	s, err := h.m.State(context.Background(), id)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	return s
}
