package usecase

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"torrentplay/internal/domain"
)

func TestRegistrySetState(t *testing.T) {
	r := newRegistry()
	if r.state("x") != domain.StateUnparsed {
		t.Fatalf("default state = %s", r.state("x"))
	}
	steps := []struct {
		to   domain.State
		want bool
	}{
		{domain.StateAdded, false},
		{domain.StateParsed, true},
		{domain.StateParsed, true},
		{domain.StateAdded, true},
		{domain.StateServing, true},
		{domain.StateParsed, false},
		{domain.StateDestroyed, true},
		{domain.StateParsed, true},
	}
	for i, s := range steps {
		if got := r.setState("x", s.to); got != s.want {
			t.Fatalf("step %d: setState(%s) = %v, want %v", i, s.to, got, s.want)
		}
	}
	if r.state("x") != domain.StateParsed {
		t.Fatalf("final state = %s", r.state("x"))
	}
}

func TestRegistryLiveDeduplicates(t *testing.T) {
	r := newRegistry()
	r.sessions["a"] = &torrentSession{id: "a"}
	r.servers["a"] = nil
	r.reporters["b"] = nil
	if got := r.live(); len(got) != 2 {
		t.Fatalf("live = %v, want 2 ids", got)
	}
}

func TestFileProgress(t *testing.T) {
	desc := &domain.Descriptor{Files: []domain.FileEntry{
		{Name: "a.mkv", Length: 1000},
		{Name: "empty.txt", Length: 0},
		{Name: "b.srt", Length: 100},
	}}
	got := fileProgress(desc, []int64{250, 0, 500})
	want := []domain.FileProgress{
		{Name: "a.mkv", Progress: 0.25, Downloaded: 250},
		{Name: "empty.txt", Progress: 1, Downloaded: 0},
		{Name: "b.srt", Progress: 1, Downloaded: 100},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("file %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if short := fileProgress(desc, nil); short[0].Downloaded != 0 || short[0].Progress != 0 {
		t.Fatalf("missing counters = %+v", short[0])
	}
	if fileProgress(nil, nil) != nil {
		t.Fatal("nil descriptor must yield nil")
	}
}

func TestSampleSpeed(t *testing.T) {
	r := &ProgressReporter{}
	start := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	if got := r.sampleSpeed(100, start); got != 0 {
		t.Fatalf("first sample = %d, want 0", got)
	}
	if got := r.sampleSpeed(1100, start.Add(2*time.Second)); got != 500 {
		t.Fatalf("delta sample = %d, want 500", got)
	}
	if got := r.sampleSpeed(1100, start.Add(2*time.Second)); got != 0 {
		t.Fatalf("zero interval = %d, want 0", got)
	}
	if got := r.sampleSpeed(10, start.Add(3*time.Second)); got != 0 {
		t.Fatalf("counter reset = %d, want 0", got)
	}
}

func TestMessagesLocales(t *testing.T) {
	tests := []struct {
		locale string
		want   string
	}{
		{"en", msgNotFound},
		{"ru", "Торрент не найден"},
		{"ru-RU", "Торрент не найден"},
		{"de", msgNotFound},
		{"???", msgNotFound},
	}
	for _, tc := range tests {
		if got := NewMessages(tc.locale).Text(msgNotFound); got != tc.want {
			t.Fatalf("locale %q: Text = %q, want %q", tc.locale, got, tc.want)
		}
	}
	var nilMessages *Messages
	if got := nilMessages.Text(msgInitFailed); got != msgInitFailed {
		t.Fatalf("nil Messages Text = %q", got)
	}
}

func TestMessageKeyFor(t *testing.T) {
	tests := []struct {
		cmd  domain.CommandType
		err  error
		want string
	}{
		{domain.CommandParse, fmt.Errorf("%w: eof", domain.ErrParse), msgParseFailed},
		{domain.CommandStart, domain.ErrNotFound, msgNotFound},
		{domain.CommandStart, fmt.Errorf("%w: 3", domain.ErrFileIndex), msgFileIndex},
		{domain.CommandStart, wrapBind(errors.New("in use")), msgServerFailed},
		{domain.CommandStart, wrapEngine(errors.New("busy")), msgInitFailed},
		{domain.CommandDestroy, errors.New("close failed"), msgDestroyFailed},
		{domain.CommandParse, errors.New("panic: boom"), msgParseFailed},
	}
	for _, tc := range tests {
		if got := messageKeyFor(tc.cmd, tc.err); got != tc.want {
			t.Fatalf("messageKeyFor(%s, %v) = %q, want %q", tc.cmd, tc.err, got, tc.want)
		}
	}
}

func TestWrapHelpersDoNotDoubleWrap(t *testing.T) {
	once := wrapEngine(errors.New("x"))
	if wrapEngine(once) != once {
		t.Fatal("wrapEngine rewrapped an engine error")
	}
	if wrapEngine(nil) != nil || wrapBind(nil) != nil {
		t.Fatal("nil must stay nil")
	}
	if !errors.Is(wrapBind(errors.New("x")), domain.ErrServerBind) {
		t.Fatal("wrapBind lost sentinel")
	}
}
