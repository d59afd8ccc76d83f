package config

import (
	"reflect"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPPort != "8081" || cfg.DatabaseDriver != "pgx" || cfg.LockBackend != "memory" {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.RemoteTimeout != 5*time.Second || cfg.ScanCooldown != 2*time.Second || cfg.SearchDebounce != 300*time.Millisecond {
		t.Errorf("durations = %s %s %s", cfg.RemoteTimeout, cfg.ScanCooldown, cfg.SearchDebounce)
	}
	if !reflect.DeepEqual(cfg.CORSOrigins, []string{"*"}) {
		t.Errorf("cors = %q", cfg.CORSOrigins)
	}
	if cfg.ReconcileSchedule != "@every 30s" || cfg.CheckinMode != "toggle" || cfg.FailurePolicy != "rollback" {
		t.Errorf("station defaults = %+v", cfg)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite3")
	t.Setenv("DATABASE_URL", "file:checkin.db")
	t.Setenv("REMOTE_TIMEOUT", "750ms")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")
	t.Setenv("FAILURE_POLICY", "keep")

	cfg, err := load(viper.New())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DatabaseDriver != "sqlite3" || cfg.DatabaseURL != "file:checkin.db" {
		t.Errorf("database = %s %s", cfg.DatabaseDriver, cfg.DatabaseURL)
	}
	if cfg.RemoteTimeout != 750*time.Millisecond || cfg.RateLimitPerMin != 30 || cfg.FailurePolicy != "keep" {
		t.Errorf("cfg = %+v", cfg)
	}
	if want := []string{"https://a.example", "https://b.example"}; !reflect.DeepEqual(cfg.CORSOrigins, want) {
		t.Errorf("cors = %q", cfg.CORSOrigins)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"driver", map[string]string{"DATABASE_DRIVER": "mysql"}},
		{"lock backend", map[string]string{"LOCK_BACKEND": "etcd"}},
		{"queue backend", map[string]string{"QUEUE_BACKEND": "kafka"}},
		{"timeout", map[string]string{"REMOTE_TIMEOUT": "0s"}},
		{"production key", map[string]string{"APP_ENV": "production"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := load(viper.New()); err == nil {
				t.Error("expected error")
			}
		})
	}
}
