package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"torrentplay/internal/domain"
	"torrentplay/internal/domain/ports"
)

// movieTorrent is a single-file torrent: movie.mkv, 1,000,000 bytes.
func movieTorrent() []byte {
	const length, pieceLength = 1000000, 262144
	pieces := (length + pieceLength - 1) / pieceLength
	return []byte(fmt.Sprintf("d4:infod6:lengthi%de4:name9:movie.mkv12:piece lengthi%de6:pieces%d:%see",
		length, pieceLength, pieces*20, strings.Repeat("p", pieces*20)))
}

func patternBytes(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i % 251)
	}
	return out
}

type fakeGateway struct {
	mu        sync.Mutex
	commands  []domain.Command
	submitErr error
	desc      *domain.Descriptor
	state     domain.State
}

func (f *fakeGateway) Submit(ctx context.Context, cmd domain.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.commands = append(f.commands, cmd)
	return nil
}

func (f *fakeGateway) Descriptor(ctx context.Context, id domain.TorrentID) (*domain.Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.desc == nil || f.desc.ID != id {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return f.desc, nil
}

func (f *fakeGateway) State(ctx context.Context, id domain.TorrentID) (domain.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, nil
}

func (f *fakeGateway) received() []domain.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Command(nil), f.commands...)
}

// memReader serves a byte slice through the StreamReader port.
type memReader struct {
	*bytes.Reader
	mu        sync.Mutex
	ctx       context.Context
	readahead int64
	closed    bool
}

func (r *memReader) SetContext(ctx context.Context) {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()
}

func (r *memReader) SetReadahead(n int64) {
	r.mu.Lock()
	r.readahead = n
	r.mu.Unlock()
}

func (r *memReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// memSession is an engine session backed by in-memory file contents.
type memSession struct {
	mu      sync.Mutex
	files   [][]byte
	readErr error
	readers []*memReader
	read    int64
	closed  bool
	dir     string
}

func newMemSession(files ...[]byte) *memSession {
	return &memSession{files: files}
}

func (s *memSession) Deselect(startPiece, endPiece int) {}
func (s *memSession) Select(startPiece, endPiece int)   {}

func (s *memSession) Stats() ports.TransferStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.read += 4096
	completed := make([]int64, len(s.files))
	for i, f := range s.files {
		completed[i] = min(s.read, int64(len(f)))
	}
	return ports.TransferStats{BytesReadData: s.read, FileBytesCompleted: completed}
}

func (s *memSession) NewReader(fileIndex int) (ports.StreamReader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	if s.closed {
		return nil, errors.New("session closed")
	}
	if fileIndex < 0 || fileIndex >= len(s.files) {
		return nil, domain.ErrFileIndex
	}
	r := &memReader{Reader: bytes.NewReader(s.files[fileIndex])}
	s.readers = append(s.readers, r)
	return r, nil
}

func (s *memSession) StoragePath() string {
	return s.dir
}

func (s *memSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *memSession) openedReaders() []*memReader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*memReader(nil), s.readers...)
}

// memEngine hands out memSessions serving the same contents.
type memEngine struct {
	mu       sync.Mutex
	contents []byte
	sessions []*memSession
}

func (e *memEngine) Add(ctx context.Context, desc *domain.Descriptor, dir string) (ports.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := newMemSession(e.contents)
	s.dir = dir
	e.mu.Lock()
	e.sessions = append(e.sessions, s)
	e.mu.Unlock()
	return s, nil
}

func (e *memEngine) Close() error { return nil }

func (e *memEngine) addCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// dialWS opens a WebSocket connection to srv's /ws endpoint.
func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wsEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// readWSType reads frames until one of type msgType arrives.
func readWSType(t *testing.T, conn *websocket.Conn, msgType string, timeout time.Duration) wsEnvelope {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %q: %v", msgType, err)
		}
		var msg wsEnvelope
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal ws message: %v (raw: %s)", err, data)
		}
		if msg.Type == msgType {
			return msg
		}
	}
}

// waitForClients blocks until the hub has registered n clients.
func waitForClients(t *testing.T, hub *wsHub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.clientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d ws clients, got %d", n, hub.clientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
