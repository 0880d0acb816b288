package collector

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tft-pipeline/internal/metrics"
	"tft-pipeline/internal/riot"
	"tft-pipeline/internal/roster"
	"tft-pipeline/internal/storage"
)

const (
	// DefaultFolder is the destination folder when a request names none
	DefaultFolder = "TFT"

	DefaultWorkerCount = 1
)

// MatchSource is the subset of the Riot client ingestion needs
type MatchSource interface {
	FetchMatchIDs(ctx context.Context, puuid string) ([]string, error)
	FetchMatch(ctx context.Context, matchID string) (json.RawMessage, error)
}

// Request identifies where one ingestion run writes
type Request struct {
	ProjectID string `json:"project_id"`
	Bucket    string `json:"bucket_name"`
	Folder    string `json:"destination_folder"`
}

// Summary reports what one run did
type Summary struct {
	RunID         string        `json:"run_id"`
	ProjectID     string        `json:"project_id,omitempty"`
	Bucket        string        `json:"bucket_name"`
	Folder        string        `json:"destination_folder"`
	Players       int           `json:"players"`
	Candidates    int           `json:"candidates"`
	Stored        int           `json:"stored"`
	Skipped       int           `json:"skipped"`
	FetchFailures int           `json:"fetch_failures"`
	StoreFailures int           `json:"store_failures"`
	Duration      time.Duration `json:"duration_ns"`
}

// counters are shared by player workers
type counters struct {
	players       atomic.Int64
	candidates    atomic.Int64
	stored        atomic.Int64
	skipped       atomic.Int64
	fetchFailures atomic.Int64
	storeFailures atomic.Int64
}

// Config holds configuration for the collector
type Config struct {
	WorkerCount int
}

// Collector fetches new raw matches for a roster and stores them write-once
type Collector struct {
	source      MatchSource
	stores      storage.Provider
	workerCount int
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// New creates a collector
func New(source MatchSource, stores storage.Provider, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Collector {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		source:      source,
		stores:      stores,
		workerCount: cfg.WorkerCount,
		metrics:     m,
		logger:      logger.Named("collector"),
	}
}

// Run ingests every player in r. Players are spread over the worker pool;
// each player's matches are handled one at a time in source order. On
// cancellation no new players are started and the partial summary is
// returned with ctx.Err().
func (c *Collector) Run(ctx context.Context, req Request, r roster.Roster) (Summary, error) {
	if req.Folder == "" {
		req.Folder = DefaultFolder
	}

	start := time.Now()
	summary := Summary{
		RunID:     uuid.NewString(),
		ProjectID: req.ProjectID,
		Bucket:    req.Bucket,
		Folder:    req.Folder,
	}
	log := c.logger.With(zap.String("run_id", summary.RunID))

	store, err := c.stores.Open(req.Bucket)
	if err != nil {
		return summary, fmt.Errorf("open bucket %q: %w", req.Bucket, err)
	}

	log.Info("ingestion started",
		zap.String("bucket", req.Bucket),
		zap.String("folder", req.Folder),
		zap.Int("players", r.Len()),
		zap.Int("workers", c.workerCount))

	var cnt counters
	g := new(errgroup.Group)
	g.SetLimit(c.workerCount)

	for _, p := range r.Players() {
		if ctx.Err() != nil {
			break
		}
		p := p
		g.Go(func() error {
			c.ingestPlayer(ctx, store, req.Folder, p, &cnt, log)
			return nil
		})
	}
	_ = g.Wait()

	summary.Players = int(cnt.players.Load())
	summary.Candidates = int(cnt.candidates.Load())
	summary.Stored = int(cnt.stored.Load())
	summary.Skipped = int(cnt.skipped.Load())
	summary.FetchFailures = int(cnt.fetchFailures.Load())
	summary.StoreFailures = int(cnt.storeFailures.Load())
	summary.Duration = time.Since(start)
	c.metrics.RunDuration.WithLabelValues("ingest").Observe(summary.Duration.Seconds())

	log.Info("ingestion finished",
		zap.Int("candidates", summary.Candidates),
		zap.Int("stored", summary.Stored),
		zap.Int("skipped", summary.Skipped),
		zap.Int("fetch_failures", summary.FetchFailures),
		zap.Int("store_failures", summary.StoreFailures),
		zap.Duration("duration", summary.Duration))

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// ingestPlayer handles one player. Every failure is logged and counted;
// nothing here aborts the run.
func (c *Collector) ingestPlayer(ctx context.Context, store storage.Store, folder string, p roster.Player, cnt *counters, log *zap.Logger) {
	log = log.With(zap.String("player", p.RiotID()))
	cnt.players.Add(1)

	ids, err := c.source.FetchMatchIDs(ctx, p.PUUID)
	if err != nil {
		cnt.fetchFailures.Add(1)
		c.metrics.FetchFailures.WithLabelValues(riot.EndpointMatchIDs).Inc()
		log.Warn("no match ids for player", zap.Error(err))
		return
	}
	cnt.candidates.Add(int64(len(ids)))
	log.Debug("fetched match ids", zap.Int("count", len(ids)))

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		c.ingestMatch(ctx, store, folder, id, cnt, log.With(zap.String("match_id", id)))
	}
}

// ingestMatch runs check, fetch, put for one match
func (c *Collector) ingestMatch(ctx context.Context, store storage.Store, folder, matchID string, cnt *counters, log *zap.Logger) {
	key := storage.RawMatchKey(folder, matchID)

	exists, err := store.Exists(ctx, key)
	if err != nil {
		// Never write blind
		cnt.storeFailures.Add(1)
		c.metrics.IngestMatches.WithLabelValues(metrics.ResultFailed).Inc()
		log.Error("existence check failed, skipping match", zap.Error(err))
		return
	}
	if exists {
		cnt.skipped.Add(1)
		c.metrics.IngestMatches.WithLabelValues(metrics.ResultSkipped).Inc()
		log.Debug("match already stored")
		return
	}

	body, err := c.source.FetchMatch(ctx, matchID)
	if err != nil {
		cnt.fetchFailures.Add(1)
		c.metrics.FetchFailures.WithLabelValues(riot.EndpointMatch).Inc()
		log.Error("failed to fetch match", zap.Error(err))
		return
	}

	err = store.Put(ctx, key, body, storage.ContentTypeJSON)
	switch {
	case errors.Is(err, storage.ErrObjectExists):
		// Another worker or run stored it between check and write
		cnt.skipped.Add(1)
		c.metrics.IngestMatches.WithLabelValues(metrics.ResultSkipped).Inc()
		log.Debug("match stored concurrently")
	case err != nil:
		cnt.storeFailures.Add(1)
		c.metrics.IngestMatches.WithLabelValues(metrics.ResultFailed).Inc()
		log.Error("failed to store match", zap.Error(err))
	default:
		cnt.stored.Add(1)
		c.metrics.IngestMatches.WithLabelValues(metrics.ResultStored).Inc()
		log.Info("stored match", zap.String("key", key))
	}
}
