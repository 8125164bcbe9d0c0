package apihttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"torrentplay/internal/domain"
	"torrentplay/internal/domain/ports"
	"torrentplay/internal/metrics"
)

const (
	defaultStreamHost   = "127.0.0.1"
	streamReadahead     = 16 << 20
	streamCloseTimeout  = 2 * time.Second
	streamHeaderTimeout = 10 * time.Second
)

// Binder starts one local HTTP server per served file. It implements
// ports.StreamBinder.
type Binder struct {
	host   string
	logger *slog.Logger
}

func NewBinder(host string, logger *slog.Logger) *Binder {
	host = strings.TrimSpace(host)
	if host == "" {
		host = defaultStreamHost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Binder{host: host, logger: logger}
}

// Bind listens on an ephemeral port and serves file through session readers.
// Nothing is left listening when an error is returned.
func (b *Binder) Bind(id domain.TorrentID, session ports.Session, file domain.FileEntry) (ports.StreamServer, error) {
	if session == nil {
		return nil, fmt.Errorf("%w: no session for %s", domain.ErrServerBind, id)
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(b.host, "0"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrServerBind, err)
	}
	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		_ = ln.Close()
		return nil, fmt.Errorf("%w: unexpected listener address %s", domain.ErrServerBind, ln.Addr())
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger := b.logger.With(slog.String("torrentId", string(id)), slog.Int("fileIndex", file.Index))
	srv := &streamServer{
		id:      id,
		session: session,
		file:    file,
		info:    domain.ServerInfo{Host: b.host, Port: addr.Port},
		logger:  logger,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	srv.http = &http.Server{
		Handler:           recoveryMiddleware(logger, streamMetricsMiddleware(loggingMiddleware(logger, http.HandlerFunc(srv.handleStream)))),
		ReadHeaderTimeout: streamHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		defer close(srv.done)
		if err := srv.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("stream server stopped", slog.String("error", err.Error()))
		}
	}()
	return srv, nil
}

type streamServer struct {
	id      domain.TorrentID
	session ports.Session
	file    domain.FileEntry
	info    domain.ServerInfo
	logger  *slog.Logger
	http    *http.Server
	cancel  context.CancelFunc
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func (s *streamServer) URL() string {
	return fmt.Sprintf("http://localhost:%d", s.info.Port)
}

func (s *streamServer) Info() domain.ServerInfo {
	return s.info
}

// Close cancels in-flight reads, stops the listener and waits for Serve to
// return. Later calls return the first result.
func (s *streamServer) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		ctx, cancel := context.WithTimeout(context.Background(), streamCloseTimeout)
		defer cancel()
		if err := s.http.Shutdown(ctx); err != nil {
			s.closeErr = s.http.Close()
		}
		<-s.done
	})
	return s.closeErr
}

func (s *streamServer) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ext := strings.ToLower(path.Ext(s.file.Name))
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = fallbackContentType(ext)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	size := s.file.Length

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		return
	}

	start, end := int64(0), size-1
	status := http.StatusOK
	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		var err error
		start, end, err = parseByteRange(rangeHeader, size)
		if errors.Is(err, errInvalidRange) {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid range")
			return
		}
		if errors.Is(err, errRangeNotSatisfiable) {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		status = http.StatusPartialContent
	}

	if size <= 0 {
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
		return
	}

	reader, err := s.session.NewReader(s.file.Index)
	if err != nil {
		s.logger.Warn("stream reader unavailable", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "unavailable", "stream not available")
		return
	}
	defer reader.Close()
	// The reader blocks until pieces arrive; a responsive reader would
	// return early EOFs and truncate the body.
	reader.SetContext(r.Context())
	reader.SetReadahead(streamReadahead)

	if start > 0 {
		if _, err := reader.Seek(start, io.SeekStart); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to seek stream")
			return
		}
	}

	length := end - start + 1
	if status == http.StatusPartialContent {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	}
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)
	if _, err := io.CopyN(w, reader, length); err != nil {
		s.logger.Debug("stream copy interrupted",
			slog.Int64("offset", start),
			slog.String("error", err.Error()),
		)
	}
}

func streamMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		metrics.StreamRequestsTotal.WithLabelValues(strconv.Itoa(rw.status)).Inc()
	})
}
