package vidgate

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/feitianbubu/vidgate/adapters"
	"github.com/feitianbubu/vidgate/adapters/deer"
	"github.com/feitianbubu/vidgate/adapters/kling"
	"github.com/feitianbubu/vidgate/adapters/runway"
	"github.com/feitianbubu/vidgate/config"
	"github.com/feitianbubu/vidgate/internal/httpclient"
	"github.com/feitianbubu/vidgate/model"
	"github.com/feitianbubu/vidgate/store/gormstore"
	"github.com/feitianbubu/vidgate/store/memory"
	"github.com/feitianbubu/vidgate/store/redisstore"
)

// AdapterFactory creates an adapter from its provider configuration.
type AdapterFactory func(cfg *adapters.ProviderConfig) (adapters.Adapter, error)

var factories = map[model.Provider]AdapterFactory{
	model.ProviderKling: func(cfg *adapters.ProviderConfig) (adapters.Adapter, error) {
		return kling.New(cfg)
	},
	model.ProviderRunway: func(cfg *adapters.ProviderConfig) (adapters.Adapter, error) {
		return runway.New(cfg)
	},
	model.ProviderDeer: func(cfg *adapters.ProviderConfig) (adapters.Adapter, error) {
		return deer.New(cfg)
	},
}

// NewAdapter creates the adapter for provider.
func NewAdapter(provider model.Provider, cfg *adapters.ProviderConfig) (adapters.Adapter, error) {
	factory, ok := factories[provider]
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
	a, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s adapter: %w", provider, err)
	}
	return a, nil
}

// NewAdapters creates an adapter for every enabled provider in cfg that has
// an API key. Enabled providers without a key are returned in skipped. All
// adapters share one pooled HTTP client.
func NewAdapters(cfg *config.Config) (list []adapters.Adapter, skipped []model.Provider, err error) {
	client := httpclient.New(cfg.HTTPClient)

	providers := []struct {
		name model.Provider
		cfg  config.ProviderConfig
	}{
		{model.ProviderKling, cfg.Providers.Kling},
		{model.ProviderRunway, cfg.Providers.Runway},
		{model.ProviderDeer, cfg.Providers.Deer},
	}

	for _, p := range providers {
		if !p.cfg.Enabled {
			continue
		}
		if strings.TrimSpace(p.cfg.APIKey) == "" {
			skipped = append(skipped, p.name)
			continue
		}
		a, err := NewAdapter(p.name, adapterConfig(p.cfg, cfg.HTTPClient.UserAgent, client))
		if err != nil {
			return nil, nil, err
		}
		list = append(list, a)
	}
	return list, skipped, nil
}

func adapterConfig(pc config.ProviderConfig, userAgent string, client *http.Client) *adapters.ProviderConfig {
	return &adapters.ProviderConfig{
		BaseURL:    pc.BaseURL,
		APIKey:     pc.APIKey,
		SecretKey:  pc.SecretKey,
		UserAgent:  userAgent,
		HTTPClient: client,
	}
}

// OpenStore opens the task store selected by cfg.Driver. The returned
// close function releases its connections.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (TaskStore, func() error, error) {
	switch cfg.Driver {
	case "", config.StoreMemory:
		return memory.New(), func() error { return nil }, nil
	case config.StorePostgres, config.StoreSQLite:
		s, err := gormstore.Open(cfg)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StoreRedis:
		s, err := redisstore.Open(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}

// NewFromConfig builds a Client from loaded configuration. Options given
// here override what the configuration implies.
func NewFromConfig(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	adapterList, skipped, err := NewAdapters(cfg)
	if err != nil {
		return nil, err
	}

	taskStore, closeStore, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	closers := []func() error{closeStore}

	base := []Option{
		WithAdapters(adapterList...),
		WithStore(taskStore),
		WithPollSerialization(cfg.Gateway.PollSerialization),
		WithPollLockTTL(cfg.Gateway.PollLockTTL),
		WithBreaker(cfg.Gateway.Breaker),
		WithPollInterval(cfg.Gateway.PollInterval),
	}

	if cfg.Metrics.Enabled {
		base = append(base, WithMetrics(cfg.Metrics.Namespace, prometheus.DefaultRegisterer))
	}

	if cfg.Gateway.PollSerialization == config.PollSerializationRedis {
		var client *redis.Client
		if rs, ok := taskStore.(*redisstore.Store); ok {
			client = rs.Client()
		} else {
			client, err = redisstore.NewClient(ctx, cfg.Store.Redis)
			if err != nil {
				_ = closeStore()
				return nil, fmt.Errorf("open poll lock: %w", err)
			}
			closers = append(closers, client.Close)
		}
		base = append(base, WithLocker(redisstore.NewLocker(client, "")))
	}

	c, err := NewClient(append(base, opts...)...)
	if err != nil {
		for _, fn := range closers {
			_ = fn()
		}
		return nil, err
	}
	c.closers = append(c.closers, closers...)
	for _, p := range skipped {
		c.logger.Warn("provider enabled without an api key, skipping", zap.String("provider", p.String()))
	}
	return c, nil
}
