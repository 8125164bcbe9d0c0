package usecase

import (
	"context"
	"log/slog"
	"time"

	"torrentplay/internal/domain"
	"torrentplay/internal/domain/ports"
	"torrentplay/internal/metrics"
)

const defaultProgressInterval = 2 * time.Second

type emitFunc func(ctx context.Context, ev domain.Event) bool

// ProgressReporter samples one serving session at a fixed interval and emits
// download-progress events until stopped.
type ProgressReporter struct {
	id        domain.TorrentID
	desc      *domain.Descriptor
	fileIndex int
	session   ports.Session
	interval  time.Duration
	emit      emitFunc
	logger    *slog.Logger
	now       func() time.Time

	cancel context.CancelFunc
	done   chan struct{}

	last speedSample
}

type speedSample struct {
	at        time.Time
	bytesRead int64
}

func newProgressReporter(id domain.TorrentID, desc *domain.Descriptor, fileIndex int, session ports.Session, interval time.Duration, emit emitFunc, logger *slog.Logger) *ProgressReporter {
	if interval <= 0 {
		interval = defaultProgressInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressReporter{
		id:        id,
		desc:      desc,
		fileIndex: fileIndex,
		session:   session,
		interval:  interval,
		emit:      emit,
		logger:    logger,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Start launches the sampling goroutine.
func (r *ProgressReporter) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	go r.run(ctx)
}

// Stop cancels the reporter and waits until its goroutine has exited. After
// Stop returns the reporter never touches the session again.
func (r *ProgressReporter) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	metrics.DownloadSpeedBytes.DeleteLabelValues(string(r.id))
}

func (r *ProgressReporter) run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ev := r.sample()
			if ctx.Err() != nil {
				return
			}
			if !r.emit(ctx, ev) {
				return
			}
		}
	}
}

func (r *ProgressReporter) sample() domain.Event {
	stats := r.session.Stats()
	speed := r.sampleSpeed(stats.BytesReadData, r.now())
	files := fileProgress(r.desc, stats.FileBytesCompleted)

	metrics.DownloadSpeedBytes.WithLabelValues(string(r.id)).Set(float64(speed))
	if r.fileIndex >= 0 && r.fileIndex < len(files) {
		f := files[r.fileIndex]
		r.logger.Debug("torrent download",
			slog.String("torrentId", string(r.id)),
			slog.Int("fileIndex", r.fileIndex),
			slog.String("name", f.Name),
			slog.Float64("progress", f.Progress),
			slog.Int64("downloaded", f.Downloaded),
			slog.Int64("speed", speed),
		)
	}
	return domain.ProgressEvent(r.id, speed, files)
}

// sampleSpeed returns bytes per second since the previous sample. The first
// sample reports zero.
func (r *ProgressReporter) sampleSpeed(bytesRead int64, now time.Time) int64 {
	prev := r.last
	r.last = speedSample{at: now, bytesRead: bytesRead}
	if prev.at.IsZero() {
		return 0
	}
	dt := now.Sub(prev.at).Seconds()
	if dt <= 0 {
		return 0
	}
	delta := bytesRead - prev.bytesRead
	if delta < 0 {
		delta = 0
	}
	return int64(float64(delta) / dt)
}

func fileProgress(desc *domain.Descriptor, completed []int64) []domain.FileProgress {
	if desc == nil {
		return nil
	}
	out := make([]domain.FileProgress, len(desc.Files))
	for i, f := range desc.Files {
		var done int64
		if i < len(completed) {
			done = completed[i]
		}
		if done > f.Length {
			done = f.Length
		}
		if done < 0 {
			done = 0
		}
		progress := 1.0
		if f.Length > 0 {
			progress = float64(done) / float64(f.Length)
		}
		out[i] = domain.FileProgress{Name: f.Name, Progress: progress, Downloaded: done}
	}
	return out
}
