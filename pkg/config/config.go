// Package config loads stackfix settings.
//
// Settings come from three layers, later layers winning: built-in defaults,
// a TOML file, and environment variables. Command-line flags are applied by
// the CLI on top of the loaded value.
//
//	max_attempts = 50
//
//	[cache]
//	backend = "redis"
//	redis_addr = "localhost:6379"
//
//	[reasoning]
//	model = "claude-sonnet-4-5"
//	timeout = "90s"
package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/stackfix/pkg/errors"
	"github.com/matzehuels/stackfix/pkg/ranking"
	"github.com/matzehuels/stackfix/pkg/reasoning"
)

const appName = "stackfix"

// Backends.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
	BackendMongo  = "mongo"
	BackendNone   = "none"
)

// Environment variables read by [Config.ApplyEnv].
const (
	EnvAPIKey      = "ANTHROPIC_API_KEY"
	EnvRedisAddr   = "STACKFIX_REDIS_ADDR"
	EnvMongoURI    = "STACKFIX_MONGO_URI"
	EnvRegistryURL = "STACKFIX_REGISTRY_URL"
)

// Duration is a time.Duration written as a Go duration string in TOML.
type Duration struct{ time.Duration }

// UnmarshalText parses strings such as "90s" or "10m".
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText renders d as a duration string.
func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// Config is the complete stackfix configuration.
type Config struct {
	MaxAttempts      int `toml:"max_attempts"`
	SuggestionRounds int `toml:"suggestion_rounds"`
	// TempRoot is where workspaces are created; empty uses the system
	// temp dir.
	TempRoot string `toml:"temp_root"`

	Registry  RegistryConfig  `toml:"registry"`
	Cache     CacheConfig     `toml:"cache"`
	Reasoning ReasoningConfig `toml:"reasoning"`
	Install   InstallConfig   `toml:"install"`
	History   HistoryConfig   `toml:"history"`
	Ranking   RankingConfig   `toml:"ranking"`
	Server    ServerConfig    `toml:"server"`
}

type RegistryConfig struct {
	URL          string `toml:"url"`
	DownloadsURL string `toml:"downloads_url"`
}

type CacheConfig struct {
	Backend       string `toml:"backend"`
	Dir           string `toml:"dir"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	Prefix        string `toml:"prefix"`
}

type ReasoningConfig struct {
	APIKey      string   `toml:"api_key"`
	BaseURL     string   `toml:"base_url"`
	Model       string   `toml:"model"`
	MaxTokens   int      `toml:"max_tokens"`
	Temperature float64  `toml:"temperature"`
	Timeout     Duration `toml:"timeout"`
}

type InstallConfig struct {
	Command []string `toml:"command"`
	Timeout Duration `toml:"timeout"`
}

type HistoryConfig struct {
	Backend    string `toml:"backend"`
	Dir        string `toml:"dir"`
	MongoURI   string `toml:"mongo_uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

// RankingConfig adjusts [ranking.DefaultPolicy]. Zero values keep the
// defaults; lists extend them.
type RankingConfig struct {
	PriorityScopes      []string `toml:"priority_scopes"`
	PriorityBonus       int      `toml:"priority_bonus"`
	CriticalPackages    []string `toml:"critical_packages"`
	ProblematicPackages []string `toml:"problematic_packages"`
	PopularityWeight    float64  `toml:"popularity_weight"`
	DependentsWeight    int      `toml:"dependents_weight"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		MaxAttempts:      200,
		SuggestionRounds: 5,
		Cache:            CacheConfig{Backend: BackendFile, Prefix: appName + ":"},
		Reasoning:        ReasoningConfig{Timeout: Duration{2 * time.Minute}},
		Install: InstallConfig{
			Command: []string{"npm", "install", "--no-audit", "--no-fund"},
			Timeout: Duration{10 * time.Minute},
		},
		History: HistoryConfig{Backend: BackendFile, Database: appName, Collection: "runs"},
		Server:  ServerConfig{Addr: ":8080"},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/stackfix/config.toml, falling back
// to ~/.config.
func DefaultPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName, "config.toml"), nil
}

// DefaultCacheDir returns $XDG_CACHE_HOME/stackfix, falling back to
// ~/.cache.
func DefaultCacheDir() (string, error) {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// Load reads path over the defaults. An empty path reads [DefaultPath] and
// tolerates its absence; an explicit path must exist. Unknown keys are
// rejected so typos do not pass silently.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return cfg, nil
		}
		path = p
	}

	md, err := toml.DecodeFile(path, cfg)
	switch {
	case err == nil:
	case !explicit && stderrors.Is(err, fs.ErrNotExist):
		return Default(), nil
	default:
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown keys in %s: %s", path, strings.Join(keys, ", ")).
			WithDetails(keys...)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment. getenv is usually
// os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvAPIKey); v != "" {
		c.Reasoning.APIKey = v
	}
	if v := getenv(EnvRedisAddr); v != "" {
		c.Cache.RedisAddr = v
		c.Cache.Backend = BackendRedis
	}
	if v := getenv(EnvMongoURI); v != "" {
		c.History.MongoURI = v
		c.History.Backend = BackendMongo
	}
	if v := getenv(EnvRegistryURL); v != "" {
		c.Registry.URL = v
	}
}

// Validate reports every problem at once as INVALID_CONFIG with one detail
// per problem.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	if c.MaxAttempts < 1 {
		add("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.SuggestionRounds < 1 {
		add("suggestion_rounds must be at least 1, got %d", c.SuggestionRounds)
	}
	for _, u := range []struct{ key, val string }{
		{"registry.url", c.Registry.URL},
		{"registry.downloads_url", c.Registry.DownloadsURL},
		{"reasoning.base_url", c.Reasoning.BaseURL},
	} {
		if u.val == "" {
			continue
		}
		if err := errors.ValidateURL(u.val); err != nil {
			add("%s: %s", u.key, errors.UserMessage(err))
		}
	}

	if !slices.Contains([]string{BackendFile, BackendRedis, BackendMemory, BackendNone}, c.Cache.Backend) {
		add("cache.backend must be file, redis, memory or none, got %q", c.Cache.Backend)
	}
	if c.Cache.Backend == BackendRedis && c.Cache.RedisAddr == "" {
		add("cache.redis_addr is required for the redis backend")
	}

	if c.Reasoning.MaxTokens < 0 {
		add("reasoning.max_tokens must not be negative")
	}
	if c.Reasoning.Temperature < 0 || c.Reasoning.Temperature > 1 {
		add("reasoning.temperature must be between 0 and 1")
	}
	if c.Reasoning.Timeout.Duration < 0 {
		add("reasoning.timeout must not be negative")
	}

	if len(c.Install.Command) == 0 || c.Install.Command[0] == "" {
		add("install.command must name an executable")
	}
	if c.Install.Timeout.Duration <= 0 {
		add("install.timeout must be positive")
	}

	if !slices.Contains([]string{BackendFile, BackendMongo, BackendNone}, c.History.Backend) {
		add("history.backend must be file, mongo or none, got %q", c.History.Backend)
	}
	if c.History.Backend == BackendMongo && c.History.MongoURI == "" {
		add("history.mongo_uri is required for the mongo backend")
	}

	for _, s := range c.Ranking.PriorityScopes {
		if !strings.HasPrefix(s, "@") {
			add("ranking.priority_scopes entry %q must start with @", s)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New(errors.ErrCodeInvalidConfig, "%d configuration problem(s)", len(problems)).
		WithDetails(problems...)
}

// Policy returns the ranking policy with the configured adjustments.
func (c *Config) Policy() ranking.Policy {
	p := ranking.DefaultPolicy()
	r := c.Ranking
	p.PriorityScopes = append(p.PriorityScopes, r.PriorityScopes...)
	p.CriticalPackages = append(p.CriticalPackages, r.CriticalPackages...)
	p.ProblematicPackages = append(p.ProblematicPackages, r.ProblematicPackages...)
	if r.PriorityBonus > 0 {
		p.PriorityBonus = r.PriorityBonus
	}
	if r.PopularityWeight > 0 {
		p.PopularityWeight = r.PopularityWeight
	}
	if r.DependentsWeight > 0 {
		p.DependentsWeight = r.DependentsWeight
	}
	return p
}

// EngineOptions returns the per-call reasoning options.
func (c *Config) EngineOptions() reasoning.Options {
	return reasoning.Options{
		Model:       c.Reasoning.Model,
		MaxTokens:   c.Reasoning.MaxTokens,
		Temperature: c.Reasoning.Temperature,
		Timeout:     c.Reasoning.Timeout.Duration,
	}
}
