package cli

import (
	"context"
	"net/url"

	"github.com/matzehuels/stackfix/pkg/cache"
	"github.com/matzehuels/stackfix/pkg/config"
	"github.com/matzehuels/stackfix/pkg/errors"
	"github.com/matzehuels/stackfix/pkg/history"
	"github.com/matzehuels/stackfix/pkg/installer"
	"github.com/matzehuels/stackfix/pkg/integrations/anthropic"
	"github.com/matzehuels/stackfix/pkg/integrations/npm"
	"github.com/matzehuels/stackfix/pkg/resolver"
)

// =============================================================================
// Backends
// =============================================================================

// cacheDir returns the configured cache directory, falling back to the XDG
// cache location.
func cacheDir(cfg *config.Config) (string, error) {
	if cfg.Cache.Dir != "" {
		return cfg.Cache.Dir, nil
	}
	return config.DefaultCacheDir()
}

// newCache opens the configured cache backend.
func newCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	cc := cfg.Cache
	switch cc.Backend {
	case config.BackendNone:
		return cache.NewNullCache(), nil
	case config.BackendMemory:
		return cache.NewMemoryCache(nil), nil
	case config.BackendRedis:
		c, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cc.RedisAddr,
			Password: cc.RedisPassword,
			DB:       cc.RedisDB,
			Prefix:   cc.Prefix,
		})
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeNetwork, err, "connect to redis at %s", cc.RedisAddr)
		}
		return c, nil
	}
	dir, err := cacheDir(cfg)
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// newHistory opens the configured history store. A nil store means history
// is disabled.
func newHistory(ctx context.Context, cfg *config.Config) (history.Store, error) {
	hc := cfg.History
	switch hc.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendMongo:
		s, err := history.NewMongoStore(ctx, history.MongoConfig{
			URI:        hc.MongoURI,
			Database:   hc.Database,
			Collection: hc.Collection,
		})
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeNetwork, err, "connect to mongodb")
		}
		return s, nil
	}
	return history.NewFileStore(hc.Dir)
}

// requireHistory opens the history store and fails when it is disabled.
func requireHistory(ctx context.Context, cfg *config.Config) (history.Store, error) {
	store, err := newHistory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New(errors.ErrCodeUnsupported, "run history is disabled (history.backend = none)")
	}
	return store, nil
}

// =============================================================================
// Resolver Factory
// =============================================================================

// services bundles a resolver with the backends it owns.
type services struct {
	resolver *resolver.Resolver
	cache    cache.Cache
	history  history.Store
}

func (s *services) Close() {
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.history != nil {
		_ = s.history.Close()
	}
}

// newServices wires a resolver from the loaded configuration.
func (c *CLI) newServices(ctx context.Context) (*services, error) {
	cfg := c.config()
	if cfg.Reasoning.APIKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "no reasoning API key: set %s or reasoning.api_key", config.EnvAPIKey)
	}

	svc := &services{}
	var err error
	if svc.cache, err = newCache(ctx, cfg); err != nil {
		return nil, err
	}
	if svc.history, err = newHistory(ctx, cfg); err != nil {
		svc.Close()
		return nil, err
	}

	registry := npm.NewClient(cache.NewScoped(svc.cache, registryScope(cfg.Registry.URL)), cfg.Registry.URL)
	if cfg.Registry.DownloadsURL != "" {
		registry = registry.WithDownloadsURL(cfg.Registry.DownloadsURL)
	}
	engine := anthropic.NewClient(cfg.Reasoning.APIKey, cfg.Reasoning.BaseURL).
		WithModel(cfg.Reasoning.Model).
		WithMaxTokens(cfg.Reasoning.MaxTokens)
	runner := installer.NewExec(cfg.Install.Command, cfg.Install.Timeout.Duration, c.Logger)

	r := resolver.New(registry, runner, engine, c.Logger)
	r.EngineOptions = cfg.EngineOptions()
	r.Cache = svc.cache
	policy := cfg.Policy()
	r.Policy = &policy
	r.History = svc.history
	r.TempRoot = cfg.TempRoot
	r.SuggestionRounds = cfg.SuggestionRounds
	svc.resolver = r
	return svc, nil
}

// registryScope keys cached registry responses by host so mirrors do not
// share entries with the public registry.
func registryScope(registryURL string) string {
	if registryURL == "" {
		registryURL = npm.DefaultRegistryURL
	}
	u, err := url.Parse(registryURL)
	if err != nil || u.Host == "" {
		return registryURL + ":"
	}
	return u.Host + ":"
}
