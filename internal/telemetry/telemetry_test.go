package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"Error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

type stringer string

func (s stringer) String() string { return string(s) }

func TestLoggerHelpers(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	logger := WithKey(WithTenant(WithShard(base, "s1"), 1, 2), stringer("1/2/E1/3"))
	logger.Info("hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	want := map[string]any{
		"shard":      "s1",
		"tenant_id":  float64(1),
		"account_id": float64(2),
		"key":        "1/2/E1/3",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s = %v, want %v", k, rec[k], v)
		}
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Error("empty context should yield default logger")
	}

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Error("logger should round-trip through context")
	}
}

func TestMetricsRegistered(t *testing.T) {
	counter := DeliveriesTotal.WithLabelValues("EMAIL", OutcomeDelivered)
	counter.Inc()

	var m dto.Metric
	if err := counter.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if got := m.GetCounter().GetValue(); got < 1 {
		t.Errorf("deliveries counter = %v, want >= 1", got)
	}
}
