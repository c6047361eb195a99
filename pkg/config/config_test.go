package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/stackfix/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
max_attempts = 50

[cache]
backend = "memory"

[reasoning]
model = "claude-test"
timeout = "90s"

[install]
command = ["pnpm", "install"]
timeout = "3m"

[ranking]
priority_scopes = ["@acme"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxAttempts != 50 || cfg.Cache.Backend != BackendMemory {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Reasoning.Timeout.Duration != 90*time.Second || cfg.Install.Timeout.Duration != 3*time.Minute {
		t.Errorf("timeouts = %s, %s", cfg.Reasoning.Timeout, cfg.Install.Timeout)
	}
	if strings.Join(cfg.Install.Command, " ") != "pnpm install" {
		t.Errorf("command = %v", cfg.Install.Command)
	}
	if cfg.SuggestionRounds != 5 || cfg.History.Backend != BackendFile {
		t.Error("defaults not kept for unset keys")
	}
	if err := cfg.Validate(); err != nil {
		t.Error(err)
	}
	opts := cfg.EngineOptions()
	if opts.Model != "claude-test" || opts.Timeout != 90*time.Second {
		t.Errorf("engine options = %+v", opts)
	}
}

func TestLoadMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("default path may be absent: %v", err)
	}
	if cfg.MaxAttempts != 200 {
		t.Errorf("max_attempts = %d", cfg.MaxAttempts)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("explicit missing path: err = %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "max_atempts = 3\n[cache]\nbackend = \"file\"\ncolor = \"red\"\n")
	_, err := Load(path)
	if !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Fatalf("err = %v", err)
	}
	if got := errors.GetDetails(err); len(got) != 2 {
		t.Errorf("details = %v", got)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvAPIKey:      "sk-test",
		EnvRedisAddr:   "redis:6379",
		EnvMongoURI:    "mongodb://db",
		EnvRegistryURL: "https://npm.example.com",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.Reasoning.APIKey != "sk-test" || cfg.Registry.URL != "https://npm.example.com" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Cache.Backend != BackendRedis || cfg.Cache.RedisAddr != "redis:6379" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.History.Backend != BackendMongo || cfg.History.MongoURI != "mongodb://db" {
		t.Errorf("history = %+v", cfg.History)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{"defaults", func(*Config) {}, nil},
		{"attempts", func(c *Config) { c.MaxAttempts = 0 }, []string{"max_attempts"}},
		{"redis without addr", func(c *Config) { c.Cache.Backend = BackendRedis }, []string{"cache.redis_addr"}},
		{"bad backends", func(c *Config) {
			c.Cache.Backend = "disk"
			c.History.Backend = "sql"
		}, []string{"cache.backend", "history.backend"}},
		{"bad url", func(c *Config) { c.Registry.URL = "ftp://x" }, []string{"registry.url"}},
		{"empty command", func(c *Config) { c.Install.Command = nil }, []string{"install.command"}},
		{"scope", func(c *Config) { c.Ranking.PriorityScopes = []string{"acme"} }, []string{"priority_scopes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			details := errors.GetDetails(err)
			if len(details) != len(tt.want) {
				t.Fatalf("details = %v", details)
			}
			for i, w := range tt.want {
				if !strings.Contains(details[i], w) {
					t.Errorf("detail %d = %q, want mention of %s", i, details[i], w)
				}
			}
		})
	}
}

func TestPolicy(t *testing.T) {
	cfg := Default()
	cfg.Ranking.PriorityScopes = []string{"@acme"}
	cfg.Ranking.PriorityBonus = 300
	p := cfg.Policy()
	if p.PriorityBonus != 300 || p.PriorityScopes[len(p.PriorityScopes)-1] != "@acme" {
		t.Errorf("policy = %+v", p)
	}
	if p.PopularityWeight == 0 {
		t.Error("unset weights must keep defaults")
	}
}
