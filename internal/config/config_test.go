package config

import (
	"os"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"COUNTER_BACKEND", "COUNTER_MODE", "COUNTER_MAX_TRIES", "COUNTER_KIND", "COUNTER_REDIS_PREFIX", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	t.Setenv("PROJECT_ID", "my-project")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ProjectID != "my-project" {
		t.Errorf("ProjectID: got %q", cfg.ProjectID)
	}
	if cfg.Backend != BackendDatastore || cfg.Mode != "overwrite" || cfg.MaxTries != 1 ||
		cfg.Kind != "ViewCount" || cfg.RedisPrefix != "view-count" || cfg.LogLevel != "info" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadRedis(t *testing.T) {
	t.Setenv("COUNTER_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("COUNTER_MODE", "atomic")
	t.Setenv("COUNTER_MAX_TRIES", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != BackendRedis || cfg.RedisAddr != "127.0.0.1:6379" || cfg.Mode != "atomic" || cfg.MaxTries != 4 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadMemorySeed(t *testing.T) {
	t.Setenv("COUNTER_BACKEND", "memory")
	t.Setenv("COUNTER_MEMORY_SEED", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MemorySeed != 0 {
		t.Errorf("expected seed 0, got %d", cfg.MemorySeed)
	}

	t.Setenv("COUNTER_MEMORY_SEED", "100")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MemorySeed != 100 {
		t.Errorf("expected seed 100, got %d", cfg.MemorySeed)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "unknown backend",
			env:  map[string]string{"COUNTER_BACKEND": "dynamodb"},
			want: "unknown backend",
		},
		{
			name: "redis without addr",
			env:  map[string]string{"COUNTER_BACKEND": "redis", "REDIS_ADDR": ""},
			want: "REDIS_ADDR",
		},
		{
			name: "mysql without dsn",
			env:  map[string]string{"COUNTER_BACKEND": "mysql", "MYSQL_DSN": ""},
			want: "MYSQL_DSN",
		},
		{
			name: "unknown mode",
			env:  map[string]string{"COUNTER_BACKEND": "memory", "COUNTER_MODE": "cas"},
			want: "COUNTER_MODE",
		},
		{
			name: "zero tries",
			env:  map[string]string{"COUNTER_BACKEND": "memory", "COUNTER_MAX_TRIES": "0"},
			want: "COUNTER_MAX_TRIES",
		},
		{
			name: "unknown log level",
			env:  map[string]string{"COUNTER_BACKEND": "memory", "LOG_LEVEL": "verbose"},
			want: "LOG_LEVEL",
		},
		{
			name: "negative memory seed",
			env:  map[string]string{"COUNTER_BACKEND": "memory", "COUNTER_MEMORY_SEED": "-1"},
			want: "COUNTER_MEMORY_SEED",
		},
		{
			name: "tries not a number",
			env:  map[string]string{"COUNTER_BACKEND": "memory", "COUNTER_MAX_TRIES": "many"},
			want: "MaxTries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSetLogLevel(t *testing.T) {
	t.Setenv("COUNTER_BACKEND", "memory")
	t.Setenv("LOG_LEVEL", "info")

	if err := SetLogLevel("debug"); err != nil {
		t.Fatalf("SetLogLevel: %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected debug, got %q", cfg.LogLevel)
	}

	if err := SetLogLevel("loud"); err == nil {
		t.Fatal("expected error for an unknown level")
	}
	if got := os.Getenv("LOG_LEVEL"); got != "debug" {
		t.Errorf("expected LOG_LEVEL to stay debug, got %q", got)
	}
}
