package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"tft-pipeline/internal/collector"
	"tft-pipeline/internal/config"
	"tft-pipeline/internal/discord"
	"tft-pipeline/internal/loader"
	"tft-pipeline/internal/metrics"
	"tft-pipeline/internal/notify"
	"tft-pipeline/internal/riot"
	"tft-pipeline/internal/storage"
	"tft-pipeline/internal/warehouse"
)

// Components holds every wired pipeline piece a binary may need
type Components struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	Riot        *riot.Client
	Stores      storage.Provider
	Collector   *collector.Collector
	Loader      *loader.Loader
	Inserter    warehouse.Inserter
	Transformer warehouse.Transformer
	Discord     *discord.WebhookClient // nil when no webhook is configured

	cleanupFuncs []func() error
}

type options struct {
	skipIngest bool
	skipLoad   bool
}

// Option adjusts Setup
type Option func(*options)

// WithoutIngest skips the Riot client and collector
func WithoutIngest() Option {
	return func(o *options) { o.skipIngest = true }
}

// WithoutLoad skips the warehouse, publisher and loader
func WithoutLoad() Option {
	return func(o *options) { o.skipLoad = true }
}

// Setup connects to the configured backends and wires the pipeline
func Setup(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Components, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	c := &Components{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	}

	if cfg.Alerts.DiscordWebhookURL != "" {
		c.Discord = discord.NewWebhookClient(cfg.Alerts.DiscordWebhookURL)
	}

	if err := c.setupStorage(ctx); err != nil {
		c.Shutdown()
		return nil, err
	}

	if !o.skipIngest {
		if err := c.setupIngest(); err != nil {
			c.Shutdown()
			return nil, err
		}
	}

	if !o.skipLoad {
		if err := c.setupLoad(ctx); err != nil {
			c.Shutdown()
			return nil, err
		}
	}

	return c, nil
}

func (c *Components) setupStorage(ctx context.Context) error {
	switch c.Config.Storage.Backend {
	case "file":
		c.Logger.Info("using local blob storage", zap.String("path", c.Config.Storage.LocalPath))
		c.Stores = storage.FileProvider{Root: c.Config.Storage.LocalPath}
	default:
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("failed to create storage client: %w", err)
		}
		c.addCleanup(client.Close)
		c.Stores = storage.GCSProvider{Client: client}
	}
	return nil
}

func (c *Components) setupIngest() error {
	rc := c.Config.Riot
	if rc.APIKey == "" {
		return errors.New("RIOT_API_KEY is required for ingestion")
	}
	c.Logger.Info("using riot API key", zap.String("key", c.Config.MaskedAPIKey()))

	client, err := riot.NewClient(rc.APIKey, c.Logger,
		riot.WithMatchBaseURL(rc.MatchBaseURL),
		riot.WithAccountBaseURL(rc.AccountBaseURL),
		riot.WithMatchCount(rc.MatchCount),
		riot.WithTimeout(rc.RequestTimeout),
		riot.WithRateLimit(rc.RequestsPerSecond, rc.RequestsPer2Min),
	)
	if err != nil {
		return err
	}
	c.Riot = client
	c.Collector = collector.New(client, c.Stores,
		collector.Config{WorkerCount: c.Config.Pipeline.Workers},
		c.Metrics, c.Logger)
	return nil
}

func (c *Components) setupLoad(ctx context.Context) error {
	cfg := c.Config

	switch cfg.Warehouse.Backend {
	case "postgres":
		pg, err := warehouse.NewPostgres(ctx, cfg.Warehouse.DatabaseURL)
		if err != nil {
			return err
		}
		c.addCleanup(func() error { pg.Close(); return nil })
		c.Inserter = pg
		c.Transformer = pg.Transform(cfg.Warehouse.TransformQuery)
	default:
		bq, err := bigquery.NewClient(ctx, cfg.Pipeline.ProjectID)
		if err != nil {
			return fmt.Errorf("failed to create bigquery client: %w", err)
		}
		c.addCleanup(bq.Close)
		c.Inserter = warehouse.NewBigQuery(bq)
		c.Transformer = warehouse.NewBigQueryTransform(bq, cfg.Warehouse.TransformQuery)
	}

	ps, err := pubsub.NewClient(ctx, cfg.Pipeline.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to create pubsub client: %w", err)
	}
	c.addCleanup(ps.Close)
	publisher := notify.NewPubSub(ps, cfg.Pipeline.Topic)
	c.addCleanup(func() error { publisher.Stop(); return nil })

	loaderOpts := []loader.Option{loader.WithMetrics(c.Metrics)}
	if c.Discord != nil {
		loaderOpts = append(loaderOpts, loader.WithAlerter(c.Discord))
	}
	c.Loader = loader.New(c.Stores, c.Inserter, publisher, c.Logger, loaderOpts...)
	return nil
}

// EnsureTable creates the staging table when the backend supports it
func (c *Components) EnsureTable(ctx context.Context, ref warehouse.TableRef) error {
	type tableCreator interface {
		EnsureTable(ctx context.Context, ref warehouse.TableRef) error
	}
	creator, ok := c.Inserter.(tableCreator)
	if !ok {
		return nil
	}
	return creator.EnsureTable(ctx, ref)
}

func (c *Components) addCleanup(fn func() error) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

// Shutdown releases clients in reverse order of creation
func (c *Components) Shutdown() {
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil {
			c.Logger.Warn("cleanup failed", zap.Error(err))
		}
	}
	c.cleanupFuncs = nil
}
