package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)

	CommandsTotal.WithLabelValues("parse", "ok").Inc()
	DownloadSpeedBytes.WithLabelValues("abc").Set(10)
	StreamRequestsTotal.WithLabelValues("206").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"torrentplay_commands_total",
		"torrentplay_download_speed_bytes",
		"torrentplay_stream_requests_total",
		"torrentplay_active_sessions",
	} {
		if !names[want] {
			t.Fatalf("metric %s not gathered", want)
		}
	}
}

func TestRegisterTwicePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	Register(reg)
}
