package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/caregate/caregate/pkg/inspect"
	"github.com/caregate/caregate/pkg/observability"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CAREGATE_TOKEN_SECRET", testSecret)
}

func TestLoadConfig_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %s, want 8080", cfg.Server.Port)
	}
	if cfg.Server.HealthPort != "9090" {
		t.Errorf("HealthPort = %s, want 9090", cfg.Server.HealthPort)
	}
	if cfg.Token.AccessTTL != 15*time.Minute {
		t.Errorf("AccessTTL = %v, want 15m", cfg.Token.AccessTTL)
	}
	if cfg.Inspect.Mode != inspect.ModeBlock {
		t.Errorf("Inspect.Mode = %s, want block", cfg.Inspect.Mode)
	}
	if !cfg.RateLimit.FailOpen {
		t.Error("FailOpen should default to true")
	}
	if cfg.Audit.Backend != "file" {
		t.Errorf("Audit.Backend = %s, want file", cfg.Audit.Backend)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("CAREGATE_PORT", "8888")
	t.Setenv("CAREGATE_ACCESS_TTL", "5m")
	t.Setenv("CAREGATE_INSPECT_MODE", "sanitize")
	t.Setenv("CAREGATE_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Port != "8888" {
		t.Errorf("Port = %s, want 8888", cfg.Server.Port)
	}
	if cfg.Token.AccessTTL != 5*time.Minute {
		t.Errorf("AccessTTL = %v, want 5m", cfg.Token.AccessTTL)
	}
	if cfg.Inspect.Mode != inspect.ModeSanitize {
		t.Errorf("Inspect.Mode = %s, want sanitize", cfg.Inspect.Mode)
	}
	if cfg.Observability.LogLevel != observability.DebugLevel {
		t.Errorf("LogLevel = %v, want debug", cfg.Observability.LogLevel)
	}
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{}},
		{"short secret", map[string]string{
			"CAREGATE_TOKEN_SECRET": "tooshort",
		}},
		{"same ports", map[string]string{
			"CAREGATE_TOKEN_SECRET": testSecret,
			"CAREGATE_PORT":         "9090",
		}},
		{"refresh not exceeding access", map[string]string{
			"CAREGATE_TOKEN_SECRET": testSecret,
			"CAREGATE_ACCESS_TTL":   "24h",
			"CAREGATE_REFRESH_TTL":  "1h",
		}},
		{"db backend without url", map[string]string{
			"CAREGATE_TOKEN_SECRET":  testSecret,
			"CAREGATE_AUDIT_BACKEND": "db",
		}},
		{"unknown audit backend", map[string]string{
			"CAREGATE_TOKEN_SECRET":  testSecret,
			"CAREGATE_AUDIT_BACKEND": "carrier-pigeon",
		}},
		{"missing policy file", map[string]string{
			"CAREGATE_TOKEN_SECRET":          testSecret,
			"CAREGATE_RATELIMIT_POLICY_FILE": "/nonexistent/policies.yaml",
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestWatchPolicyFile_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	if err := os.WriteFile(path, []byte("policies: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reloads int64
	logger := observability.NewLogger(observability.ErrorLevel, os.Stderr)
	err := WatchPolicyFile(ctx, path, logger, func(p string) error {
		atomic.AddInt64(&reloads, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("WatchPolicyFile: %v", err)
	}

	// Give the watcher goroutine a moment to start, then touch the file.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("policies:\n  - name: api\n    limit: 10\n    window: 1m\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt64(&reloads) == 0 {
		select {
		case <-deadline:
			t.Fatal("reload never fired")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
