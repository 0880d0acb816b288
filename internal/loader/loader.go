package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"tft-pipeline/internal/flatten"
	"tft-pipeline/internal/metrics"
	"tft-pipeline/internal/notify"
	"tft-pipeline/internal/riot"
	"tft-pipeline/internal/storage"
	"tft-pipeline/internal/warehouse"
)

// DefaultFolder is the folder read when a request names none
const DefaultFolder = "TFT"

// ErrEmptyBlob marks an object with no content
var ErrEmptyBlob = errors.New("empty blob")

// CorruptBlobError marks an object that is not a match record
type CorruptBlobError struct {
	Key string
	Err error
}

func (e *CorruptBlobError) Error() string {
	return fmt.Sprintf("corrupt blob %s: %v", e.Key, e.Err)
}

func (e *CorruptBlobError) Unwrap() error {
	return e.Err
}

// Alerter pages an operator when the warehouse rejects rows
type Alerter interface {
	SendInsertFailure(ctx context.Context, runID, table string, rejected, total int, reasons []string) error
}

// Request identifies the folder to read and the table to load
type Request struct {
	ProjectID string `json:"project_id"`
	Bucket    string `json:"bucket_name"`
	Folder    string `json:"folder_path"`
	Table     string `json:"bq_table"`
}

// Result reports what one load pass did
type Result struct {
	RunID        string `json:"run_id"`
	Blobs        int    `json:"blobs"`
	BlobsSkipped int    `json:"blobs_skipped"`
	Rows         int    `json:"rows"`
	RowsFailed   int    `json:"rows_failed"`
	Notified     bool   `json:"notified"`
}

// Loader rebuilds the staging rows from every stored raw match
type Loader struct {
	stores    storage.Provider
	inserter  warehouse.Inserter
	publisher notify.Publisher
	alerter   Alerter
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// Option configures a Loader
type Option func(*Loader)

// WithAlerter sends insert failures to a
func WithAlerter(a Alerter) Option {
	return func(l *Loader) { l.alerter = a }
}

// WithMetrics records outcomes on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loader) { l.metrics = m }
}

// New creates a loader
func New(stores storage.Provider, inserter warehouse.Inserter, publisher notify.Publisher, logger *zap.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loader{
		stores:    stores,
		inserter:  inserter,
		publisher: publisher,
		logger:    logger.Named("loader"),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.metrics == nil {
		l.metrics = metrics.New()
	}
	return l
}

// LoadAll flattens every raw match under the request's folder and inserts
// the rows in one call. Bad objects are skipped individually. The
// completion event is published once, only after a non-empty load the
// warehouse fully accepted. Listing, whole-insert and publish failures are
// returned.
func (l *Loader) LoadAll(ctx context.Context, req Request) (Result, error) {
	if req.Folder == "" {
		req.Folder = DefaultFolder
	}
	result := Result{RunID: uuid.NewString()}
	log := l.logger.With(zap.String("run_id", result.RunID))
	start := time.Now()
	defer func() {
		l.metrics.RunDuration.WithLabelValues("load").Observe(time.Since(start).Seconds())
	}()

	table, err := warehouse.ParseTableRef(req.Table, req.ProjectID)
	if err != nil {
		return result, err
	}
	store, err := l.stores.Open(req.Bucket)
	if err != nil {
		return result, fmt.Errorf("open bucket %q: %w", req.Bucket, err)
	}

	prefix := storage.RawMatchPrefix(req.Folder)
	keys, err := store.List(ctx, prefix)
	if err != nil {
		return result, fmt.Errorf("list %s: %w", prefix, err)
	}
	log.Info("loading raw matches",
		zap.String("bucket", req.Bucket),
		zap.String("prefix", prefix),
		zap.Int("blobs", len(keys)),
		zap.Stringer("table", table))

	var rows []flatten.Row
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Blobs++

		blobRows, err := l.readBlob(ctx, store, key)
		if err != nil {
			result.BlobsSkipped++
			l.logBlobError(log, key, err)
			continue
		}
		l.metrics.LoadBlobs.WithLabelValues(metrics.ResultLoaded).Inc()
		rows = append(rows, blobRows...)
	}

	if len(rows) == 0 {
		log.Info("no rows to load", zap.Int("blobs", result.Blobs))
		return result, nil
	}

	result.Rows = len(rows)
	err = l.inserter.Insert(ctx, table, rows)

	var insertErr *warehouse.InsertError
	switch {
	case errors.As(err, &insertErr):
		result.RowsFailed = len(insertErr.RowErrors)
		l.metrics.LoadRows.WithLabelValues(metrics.ResultFailed).Add(float64(result.RowsFailed))
		l.metrics.LoadRows.WithLabelValues(metrics.ResultLoaded).Add(float64(result.Rows - result.RowsFailed))
		l.reportInsertError(ctx, log, result.RunID, insertErr)
		return result, nil
	case err != nil:
		l.metrics.LoadRows.WithLabelValues(metrics.ResultFailed).Add(float64(len(rows)))
		return result, fmt.Errorf("insert %d rows: %w", len(rows), err)
	}

	l.metrics.LoadRows.WithLabelValues(metrics.ResultLoaded).Add(float64(len(rows)))
	log.Info("rows inserted", zap.Int("rows", len(rows)), zap.Stringer("table", table))

	err = l.publisher.Publish(ctx, notify.NewEvent(), notify.Attributes{RunID: result.RunID, Rows: len(rows)})
	if err != nil {
		l.metrics.Notifications.WithLabelValues(metrics.ResultFailed).Inc()
		return result, err
	}
	l.metrics.Notifications.WithLabelValues(metrics.ResultSuccess).Inc()
	result.Notified = true
	log.Info("completion event published")
	return result, nil
}

// readBlob downloads, decodes and flattens one object
func (l *Loader) readBlob(ctx context.Context, store storage.Store, key string) ([]flatten.Row, error) {
	data, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyBlob
	}

	var m riot.Match
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &CorruptBlobError{Key: key, Err: err}
	}
	return flatten.Match(m)
}

func (l *Loader) logBlobError(log *zap.Logger, key string, err error) {
	log = log.With(zap.String("blob", key))

	var corrupt *CorruptBlobError
	var missing *flatten.MissingFieldError
	switch {
	case errors.Is(err, ErrEmptyBlob):
		l.metrics.LoadBlobs.WithLabelValues(metrics.ResultEmpty).Inc()
		log.Warn("skipping empty blob")
	case errors.As(err, &corrupt):
		l.metrics.LoadBlobs.WithLabelValues(metrics.ResultCorrupt).Inc()
		log.Error("skipping unparseable blob", zap.Error(err))
	case errors.As(err, &missing):
		l.metrics.LoadBlobs.WithLabelValues(metrics.ResultCorrupt).Inc()
		log.Error("skipping blob with missing field", zap.String("field", missing.Field), zap.Error(err))
	default:
		l.metrics.LoadBlobs.WithLabelValues(metrics.ResultFailed).Inc()
		log.Error("skipping unreadable blob", zap.Error(err))
	}
}

func (l *Loader) reportInsertError(ctx context.Context, log *zap.Logger, runID string, ie *warehouse.InsertError) {
	reasons := make([]string, 0, len(ie.RowErrors))
	for _, re := range ie.RowErrors {
		log.Error("row rejected",
			zap.Int("row", re.Index),
			zap.String("insert_id", re.InsertID),
			zap.String("reason", re.Reason))
		reasons = append(reasons, fmt.Sprintf("row %d (%s): %s", re.Index, re.InsertID, re.Reason))
	}
	log.Error("warehouse rejected rows, completion event not published",
		zap.Int("rejected", len(ie.RowErrors)),
		zap.Int("total", ie.Total))

	if l.alerter == nil {
		return
	}
	if err := l.alerter.SendInsertFailure(ctx, runID, ie.Table.String(), len(ie.RowErrors), ie.Total, reasons); err != nil {
		log.Warn("failed to send insert failure alert", zap.Error(err))
	}
}
