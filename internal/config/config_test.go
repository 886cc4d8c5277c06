package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alarmd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ALARMD_CONFIG", "")
	t.Setenv("ALARMD_DATABASE_URL", "postgres://localhost/alarmd")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := DeliveryConfig{
		LookAhead:       35 * time.Minute,
		OverdueWait:     10 * time.Minute,
		ClaimRefresh:    time.Minute,
		DeliveryTimeout: time.Minute,
		Schedule:        "*/30 * * * *",
	}
	if diff := cmp.Diff(want, cfg.Delivery); diff != "" {
		t.Errorf("delivery defaults mismatch (-want +got):\n%s", diff)
	}
	if cfg.HTTP.Addr != ":8084" {
		t.Errorf("http.addr = %q, want :8084", cfg.HTTP.Addr)
	}
	if cfg.SMS.Shift != 30*time.Second || cfg.SMS.Limit != "5/1h" {
		t.Errorf("unexpected sms defaults: %+v", cfg.SMS)
	}

	// database.url превращается в единственный шард
	wantShards := []ShardConfig{{
		Name:     "default",
		WriteDSN: "postgres://localhost/alarmd",
		ReadDSN:  "postgres://localhost/alarmd",
		MaxConns: 10,
	}}
	if diff := cmp.Diff(wantShards, cfg.Shards); diff != "" {
		t.Errorf("shards mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
delivery:
  look_ahead: 20m
  schedule: "@every 5m"
shards:
  - name: s1
    min_tenant: 1
    max_tenant: 1000
    write_dsn: postgres://s1/alarmd
  - name: s2
    min_tenant: 1001
    write_dsn: postgres://s2/alarmd
    read_dsn: postgres://s2-replica/alarmd
  - name: old
    min_tenant: 0
    max_tenant: 0
    legacy: true
`)
	// пересечение old (0..∞) с остальными
	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected overlap error, got %v", err)
	}

	path = writeConfig(t, `
log:
  level: debug
delivery:
  look_ahead: 20m
  schedule: "@every 5m"
shards:
  - name: s1
    min_tenant: 1
    max_tenant: 1000
    write_dsn: postgres://s1/alarmd
  - name: s2
    min_tenant: 1001
    write_dsn: postgres://s2/alarmd
    read_dsn: postgres://s2-replica/alarmd
`)
	t.Setenv("ALARMD_DELIVERY_OVERDUE_WAIT", "15m")
	t.Setenv("ALARMD_HTTP_ADDR", ":9000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Delivery.LookAhead != 20*time.Minute {
		t.Errorf("look_ahead = %v, want 20m", cfg.Delivery.LookAhead)
	}
	if cfg.Delivery.OverdueWait != 15*time.Minute {
		t.Errorf("overdue_wait = %v, want 15m from env", cfg.Delivery.OverdueWait)
	}
	if cfg.HTTP.Addr != ":9000" {
		t.Errorf("http.addr = %q, want :9000 from env", cfg.HTTP.Addr)
	}
	if len(cfg.Shards) != 2 {
		t.Fatalf("expected 2 shards, got %d", len(cfg.Shards))
	}
	if cfg.Shards[0].ReadDSN != "postgres://s1/alarmd" {
		t.Errorf("read_dsn should default to write_dsn, got %q", cfg.Shards[0].ReadDSN)
	}
	if cfg.Shards[1].ReadDSN != "postgres://s2-replica/alarmd" {
		t.Errorf("unexpected read_dsn %q", cfg.Shards[1].ReadDSN)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func validConfig() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Delivery: DeliveryConfig{
			LookAhead:    35 * time.Minute,
			OverdueWait:  10 * time.Minute,
			ClaimRefresh: time.Minute,
			Schedule:     "*/30 * * * *",
		},
		Shards: []ShardConfig{{Name: "s1", MinTenant: 1, WriteDSN: "postgres://s1"}},
		SMS:    SMSConfig{GatewayURL: "http://sms", Limit: "5/1h"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"zero look-ahead", func(c *Config) { c.Delivery.LookAhead = 0 }, false},
		{"overdue wait equals refresh", func(c *Config) { c.Delivery.OverdueWait = time.Minute }, false},
		{"overdue wait below refresh", func(c *Config) { c.Delivery.ClaimRefresh = time.Hour }, false},
		{"bad schedule", func(c *Config) { c.Delivery.Schedule = "every minute" }, false},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, false},
		{"no shards", func(c *Config) { c.Shards = nil }, false},
		{"shard without dsn", func(c *Config) { c.Shards[0].WriteDSN = "" }, false},
		{"legacy shard without dsn", func(c *Config) {
			c.Shards[0].WriteDSN = ""
			c.Shards[0].Legacy = true
		}, true},
		{"duplicate names", func(c *Config) {
			c.Shards[0].MaxTenant = 10
			c.Shards = append(c.Shards, ShardConfig{Name: "s1", MinTenant: 11, WriteDSN: "x"})
		}, false},
		{"inverted range", func(c *Config) {
			c.Shards[0].MinTenant = 10
			c.Shards[0].MaxTenant = 5
		}, false},
		{"adjacent ranges", func(c *Config) {
			c.Shards[0].MaxTenant = 10
			c.Shards = append(c.Shards, ShardConfig{Name: "s2", MinTenant: 11, WriteDSN: "x"})
		}, true},
		{"overlapping ranges", func(c *Config) {
			c.Shards[0].MaxTenant = 10
			c.Shards = append(c.Shards, ShardConfig{Name: "s2", MinTenant: 10, WriteDSN: "x"})
		}, false},
		{"bad sms limit", func(c *Config) { c.SMS.Limit = "lots" }, false},
		{"bad sms template", func(c *Config) { c.SMS.Template = "{{ .EventID " }, false},
		{"sms disabled ignores limit", func(c *Config) {
			c.SMS.GatewayURL = ""
			c.SMS.Limit = "lots"
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}
