package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"tft-pipeline/internal/bootstrap"
	"tft-pipeline/internal/collector"
	"tft-pipeline/internal/config"
	"tft-pipeline/internal/discord"
	"tft-pipeline/internal/loader"
	"tft-pipeline/internal/logging"
	"tft-pipeline/internal/roster"
	"tft-pipeline/internal/warehouse"
)

func main() {
	os.Exit(execute(os.Args[1:]))
}

// execute runs the pipeline and returns the process exit code. Deferred
// cleanup, including the final logger flush, runs before main exits.
func execute(args []string) int {
	fs := flag.NewFlagSet("pipeline", flag.ContinueOnError)
	ingestOnly := fs.Bool("ingest-only", false, "Only fetch and store raw matches")
	loadOnly := fs.Bool("load-only", false, "Skip ingestion, only load stored matches")
	bucket := fs.String("bucket", "", "Bucket name (defaults to GCS_BUCKET)")
	folder := fs.String("folder", "", "Destination folder (defaults to DESTINATION_FOLDER)")
	table := fs.String("table", "", "Staging table (defaults to BQ_TABLE)")
	rosterPath := fs.String("roster", "", "Roster file (defaults to ROSTER_PATH)")
	createTable := fs.Bool("create-table", false, "Create the staging table if missing")
	transform := fs.Bool("transform", false, "Run the transform query after a successful load")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *ingestOnly && *loadOnly {
		fmt.Fprintln(os.Stderr, "--ingest-only and --load-only are mutually exclusive")
		return 2
	}

	if path := config.LoadEnvFile(); path != "" {
		fmt.Printf("Loaded .env from: %s\n", path)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	applyOverrides(&cfg.Pipeline, *bucket, *folder, *table, *rosterPath)

	logger, err := logging.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck

	var setupOpts []bootstrap.Option
	if *ingestOnly {
		setupOpts = append(setupOpts, bootstrap.WithoutLoad())
	}
	if *loadOnly {
		setupOpts = append(setupOpts, bootstrap.WithoutIngest())
	}

	ctx := collector.SetupSignalHandler(logger, nil)

	comp, err := bootstrap.Setup(ctx, cfg, logger, setupOpts...)
	if err != nil {
		logger.Error("failed to set up pipeline", zap.Error(err))
		return 1
	}
	defer comp.Shutdown()

	return run(ctx, comp, *ingestOnly, *loadOnly, *createTable, *transform)
}

func applyOverrides(p *config.PipelineConfig, bucket, folder, table, rosterPath string) {
	if bucket != "" {
		p.Bucket = bucket
	}
	if folder != "" {
		p.Folder = folder
	}
	if table != "" {
		p.Table = table
	}
	if rosterPath != "" {
		p.RosterPath = rosterPath
	}
}

func run(ctx context.Context, comp *bootstrap.Components, ingestOnly, loadOnly, createTable, transform bool) int {
	cfg := comp.Config.Pipeline
	logger := comp.Logger
	startTime := time.Now()

	if cfg.Bucket == "" {
		logger.Error("a bucket is required (--bucket or GCS_BUCKET)")
		return 2
	}

	if !loadOnly {
		fmt.Println("\n========================================")
		fmt.Println("STEP 1: INGESTING MATCHES")
		fmt.Println("========================================")

		if err := ingest(ctx, comp); err != nil {
			logger.Error("ingestion failed", zap.Error(err))
			return 1
		}
	}

	if !ingestOnly {
		fmt.Println("\n========================================")
		fmt.Println("STEP 2: LOADING STAGING TABLE")
		fmt.Println("========================================")

		if cfg.Table == "" {
			logger.Error("a staging table is required (--table or BQ_TABLE)")
			return 2
		}

		if createTable {
			ref, err := warehouse.ParseTableRef(cfg.Table, cfg.ProjectID)
			if err != nil {
				logger.Error("invalid table", zap.Error(err))
				return 2
			}
			if err := comp.EnsureTable(ctx, ref); err != nil {
				logger.Error("failed to create staging table", zap.Error(err))
				return 1
			}
		}

		result, err := comp.Loader.LoadAll(ctx, loader.Request{
			ProjectID: cfg.ProjectID,
			Bucket:    cfg.Bucket,
			Folder:    cfg.Folder,
			Table:     cfg.Table,
		})
		if err != nil {
			logger.Error("load failed", zap.String("run_id", result.RunID), zap.Error(err))
			return 1
		}
		fmt.Printf("Loaded %d rows from %d blobs (%d blobs skipped, %d rows rejected)\n",
			result.Rows, result.Blobs, result.BlobsSkipped, result.RowsFailed)

		if transform && result.Notified {
			if err := comp.Transformer.Run(ctx); err != nil {
				logger.Error("transform failed", zap.Error(err))
				return 1
			}
			fmt.Println("Transform complete")
		}
	}

	fmt.Println("\n========================================")
	fmt.Println("PIPELINE COMPLETE")
	fmt.Println("========================================")
	fmt.Printf("Total time: %s\n", time.Since(startTime).Round(time.Second))
	return 0
}

func ingest(ctx context.Context, comp *bootstrap.Components) error {
	cfg := comp.Config.Pipeline

	r, err := roster.Load(cfg.RosterPath)
	if err != nil {
		return err
	}

	summary, runErr := comp.Collector.Run(ctx, collector.Request{
		ProjectID: cfg.ProjectID,
		Bucket:    cfg.Bucket,
		Folder:    cfg.Folder,
	}, r)

	fmt.Printf("Players: %d  Candidates: %d  Stored: %d  Skipped: %d  Fetch failures: %d  Store failures: %d\n",
		summary.Players, summary.Candidates, summary.Stored, summary.Skipped,
		summary.FetchFailures, summary.StoreFailures)

	if comp.Discord != nil && summary.RunID != "" {
		report := discord.IngestSummary{
			RunID:         summary.RunID,
			Players:       summary.Players,
			Stored:        summary.Stored,
			Skipped:       summary.Skipped,
			FetchFailures: summary.FetchFailures,
			StoreFailures: summary.StoreFailures,
			Duration:      summary.Duration,
		}
		// The run context may already be cancelled
		sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := comp.Discord.SendIngestSummary(sendCtx, report); err != nil {
			comp.Logger.Warn("failed to send ingest summary", zap.Error(err))
		}
	}

	return runErr
}
