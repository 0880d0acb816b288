package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"tft-pipeline/internal/config"
	"tft-pipeline/internal/logging"
	"tft-pipeline/internal/riot"
	"tft-pipeline/internal/roster"
)

func main() {
	input := flag.String("input", "", "YAML file listing players by name, tagline and region")
	riotID := flag.String("riot-id", "", "Single player to resolve (e.g., 'Player#NA1')")
	region := flag.String("region", "", "Region label for --riot-id")
	output := flag.String("output", "", "Roster file to write (defaults to ROSTER_PATH)")
	flag.Parse()

	if path := config.LoadEnvFile(); path != "" {
		fmt.Printf("Loaded .env from: %s\n", path)
	}

	// Only the Riot settings matter here; pipeline validation errors are ignored
	cfg, _ := config.Load()
	if cfg.Riot.APIKey == "" {
		log.Fatal("RIOT_API_KEY environment variable is required")
	}

	logger, err := logging.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	players, err := readInput(*input, *riotID, *region)
	if err != nil {
		logger.Fatal("invalid input", zap.Error(err))
	}

	client, err := riot.NewClient(cfg.Riot.APIKey, logger,
		riot.WithAccountBaseURL(cfg.Riot.AccountBaseURL),
		riot.WithTimeout(cfg.Riot.RequestTimeout),
		riot.WithRateLimit(cfg.Riot.RequestsPerSecond, cfg.Riot.RequestsPer2Min),
	)
	if err != nil {
		logger.Fatal("failed to create riot client", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resolved, err := roster.Resolve(ctx, client, players, logger)
	if err != nil {
		logger.Fatal("resolve interrupted", zap.Error(err))
	}
	if resolved.Len() == 0 {
		logger.Fatal("no players resolved, roster left unchanged")
	}

	dest := *output
	if dest == "" {
		dest = cfg.Pipeline.RosterPath
	}

	r := resolved
	if *riotID != "" {
		// A single lookup adds to the tracked roster instead of replacing it
		r, err = mergeInto(dest, resolved)
		if err != nil {
			logger.Fatal("failed to read existing roster", zap.Error(err))
		}
	}
	if err := r.Save(dest); err != nil {
		logger.Fatal("failed to save roster", zap.Error(err))
	}

	fmt.Printf("Resolved %d of %d players, %d tracked in %s\n", resolved.Len(), len(players), r.Len(), dest)
}

// mergeInto upserts resolved into the roster stored at path. A missing file
// starts an empty roster.
func mergeInto(path string, resolved roster.Roster) (roster.Roster, error) {
	existing, err := roster.ReadPlayers(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return roster.Roster{}, err
	}
	return roster.New(existing).Merge(resolved.Players()), nil
}

func readInput(input, riotID, region string) ([]roster.Player, error) {
	switch {
	case input != "" && riotID != "":
		return nil, fmt.Errorf("use either --input or --riot-id, not both")
	case input != "":
		return roster.ReadPlayers(input)
	case riotID != "":
		parts := strings.SplitN(riotID, "#", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid Riot ID format %q, expected 'Name#Tag'", riotID)
		}
		return []roster.Player{{Name: parts[0], Tagline: parts[1], Region: region}}, nil
	default:
		return nil, fmt.Errorf("--input or --riot-id is required")
	}
}
