package anacrolix

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"

	"torrentplay/internal/domain"
	"torrentplay/internal/domain/ports"
)

// defaultAddTimeout caps the time we wait for the anacrolix client to accept
// a torrent. AddTorrentSpec can block on the client mutex when the client is
// busy verifying another torrent.
const defaultAddTimeout = 30 * time.Second

var errClientNotConfigured = errors.New("torrent client not configured")

type Config struct {
	DataDir    string
	ListenPort int // 0 = engine default
	NoUpload   bool
	AddTimeout time.Duration
	Logger     *slog.Logger
}

// Engine adapts an anacrolix client to ports.Engine. Each added descriptor
// gets its own file storage rooted at the directory passed to Add.
type Engine struct {
	client     *torrent.Client
	addTimeout time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[metainfo.Hash]*Session
}

func New(cfg Config) (*Engine, error) {
	clientConfig := torrent.NewDefaultClientConfig()
	if cfg.DataDir != "" {
		clientConfig.DataDir = cfg.DataDir
	}
	if cfg.ListenPort > 0 {
		clientConfig.ListenPort = cfg.ListenPort
	}
	clientConfig.NoUpload = cfg.NoUpload
	clientConfig.Seed = !cfg.NoUpload

	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: create client: %v", domain.ErrEngine, err)
	}
	e := NewWithClient(client)
	if cfg.AddTimeout > 0 {
		e.addTimeout = cfg.AddTimeout
	}
	if cfg.Logger != nil {
		e.logger = cfg.Logger
	}
	return e, nil
}

func NewWithClient(client *torrent.Client) *Engine {
	return &Engine{
		client:     client,
		addTimeout: defaultAddTimeout,
		logger:     slog.Default(),
		sessions:   make(map[metainfo.Hash]*Session),
	}
}

// Add registers desc with the client using file storage under dir and waits
// until the torrent info is available.
func (e *Engine) Add(ctx context.Context, desc *domain.Descriptor, dir string) (ports.Session, error) {
	if e.client == nil {
		return nil, errClientNotConfigured
	}
	if desc == nil || len(desc.Raw) == 0 {
		return nil, fmt.Errorf("%w: descriptor has no raw metainfo", domain.ErrEngine)
	}
	mi, err := metainfo.Load(bytes.NewReader(desc.Raw))
	if err != nil {
		return nil, fmt.Errorf("%w: load metainfo: %v", domain.ErrEngine, err)
	}
	spec, err := torrent.TorrentSpecFromMetaInfoErr(mi)
	if err != nil {
		return nil, fmt.Errorf("%w: torrent spec: %v", domain.ErrEngine, err)
	}
	store := storage.NewFile(dir)
	spec.Storage = store

	// Run AddTorrentSpec with a timeout so the caller never blocks
	// indefinitely if the anacrolix client is busy.
	type addResult struct {
		t     *torrent.Torrent
		isNew bool
		err   error
	}
	ch := make(chan addResult, 1)
	go func() {
		t, isNew, err := e.client.AddTorrentSpec(spec)
		ch <- addResult{t, isNew, err}
	}()

	// The goroutine may still complete after we return. Drop the orphan.
	abandon := func() {
		go func() {
			if res := <-ch; res.t != nil && res.isNew {
				res.t.Drop()
			}
			_ = store.Close()
		}()
	}

	timer := time.NewTimer(e.addTimeout)
	defer timer.Stop()

	var t *torrent.Torrent
	select {
	case res := <-ch:
		if res.err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("%w: add torrent: %v", domain.ErrEngine, res.err)
		}
		if !res.isNew {
			_ = store.Close()
			return nil, fmt.Errorf("%w: torrent %s is already active", domain.ErrEngine, res.t.InfoHash().HexString())
		}
		t = res.t
	case <-timer.C:
		abandon()
		return nil, fmt.Errorf("%w: torrent client busy, try again later", domain.ErrEngine)
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	}

	select {
	case <-t.GotInfo():
	case <-timer.C:
		t.Drop()
		_ = store.Close()
		return nil, fmt.Errorf("%w: metadata not ready", domain.ErrEngine)
	case <-ctx.Done():
		t.Drop()
		_ = store.Close()
		return nil, ctx.Err()
	}

	sess := &Session{
		engine:  e,
		torrent: t,
		storage: store,
		dir:     dir,
		id:      desc.ID,
	}
	e.mu.Lock()
	e.sessions[t.InfoHash()] = sess
	e.mu.Unlock()

	e.logger.Debug("torrent added",
		slog.String("torrentId", string(desc.ID)),
		slog.String("infoHash", t.InfoHash().HexString()),
		slog.String("path", dir),
	)
	return sess, nil
}

// ActiveSessions reports the number of torrents currently held by the client.
func (e *Engine) ActiveSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

func (e *Engine) Close() error {
	e.mu.Lock()
	sessions := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()
	for _, s := range sessions {
		_ = s.Close()
	}
	if e.client == nil {
		return nil
	}
	errList := e.client.Close()
	if len(errList) > 0 {
		return errList[0]
	}
	return nil
}

func (e *Engine) forget(hash metainfo.Hash, s *Session) {
	e.mu.Lock()
	if e.sessions[hash] == s {
		delete(e.sessions, hash)
	}
	e.mu.Unlock()
	// Return memory to the OS promptly after dropping a torrent. Without this
	// the GC may hold freed piece buffers for a long time on small hosts.
	freeOSMemory()
}

func freeOSMemory() {
	runtime.GC()
	debug.FreeOSMemory()
}

func torrentInfoReady(t *torrent.Torrent) bool {
	if t == nil {
		return false
	}
	select {
	case <-t.GotInfo():
		return true
	default:
		return false
	}
}
