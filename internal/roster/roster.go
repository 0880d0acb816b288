package roster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"tft-pipeline/internal/riot"
)

// Player is a tracked account. PUUID is resolved once at setup time.
type Player struct {
	Name    string `yaml:"name"`
	Tagline string `yaml:"tagline"`
	Region  string `yaml:"region"`
	PUUID   string `yaml:"puuid,omitempty"`
}

// RiotID renders the player as name#tagline
func (p Player) RiotID() string {
	return p.Name + "#" + p.Tagline
}

// Roster is an immutable snapshot of tracked players. The zero value is an
// empty roster.
type Roster struct {
	players []Player
}

type rosterFile struct {
	Players []Player `yaml:"players"`
}

// New returns a roster holding a copy of players
func New(players []Player) Roster {
	return Roster{players: append([]Player(nil), players...)}
}

// Players returns a copy of the roster's players in file order
func (r Roster) Players() []Player {
	return append([]Player(nil), r.players...)
}

// Len returns the number of players
func (r Roster) Len() int {
	return len(r.players)
}

// ReadPlayers reads the players listed in a roster file. PUUIDs may be
// missing.
func ReadPlayers(path string) ([]Player, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster: %w", err)
	}

	var f rosterFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse roster %s: %w", path, err)
	}
	return f.Players, nil
}

// Load reads a roster file. Every player must already carry a PUUID.
func Load(path string) (Roster, error) {
	players, err := ReadPlayers(path)
	if err != nil {
		return Roster{}, err
	}

	for i, p := range players {
		if p.PUUID == "" {
			return Roster{}, fmt.Errorf("roster %s: player %d (%s) has no puuid", path, i, p.RiotID())
		}
	}
	return New(players), nil
}

// ErrEmptyRoster is returned when saving a roster with no players
var ErrEmptyRoster = errors.New("roster has no players")

// Merge returns r with players added. A player whose Riot ID matches an
// existing one (case-insensitively) replaces it in place; others are
// appended in order.
func (r Roster) Merge(players []Player) Roster {
	merged := r.Players()
	for _, p := range players {
		replaced := false
		for i := range merged {
			if strings.EqualFold(merged[i].RiotID(), p.RiotID()) {
				merged[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, p)
		}
	}
	return Roster{players: merged}
}

// Save writes the roster as YAML. An empty roster is never written.
func (r Roster) Save(path string) error {
	if len(r.players) == 0 {
		return ErrEmptyRoster
	}
	data, err := yaml.Marshal(rosterFile{Players: r.players})
	if err != nil {
		return fmt.Errorf("failed to encode roster: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write roster: %w", err)
	}
	return nil
}

// AccountResolver looks up an account by Riot ID
type AccountResolver interface {
	GetAccountByRiotID(ctx context.Context, gameName, tagLine string) (*riot.AccountResponse, error)
}

// Resolve fills in PUUIDs for players. Players that cannot be resolved are
// logged and left out of the result.
func Resolve(ctx context.Context, resolver AccountResolver, players []Player, logger *zap.Logger) (Roster, error) {
	resolved := make([]Player, 0, len(players))
	for _, p := range players {
		if err := ctx.Err(); err != nil {
			return Roster{}, err
		}

		account, err := resolver.GetAccountByRiotID(ctx, p.Name, p.Tagline)
		if err != nil {
			logger.Warn("failed to resolve player",
				zap.String("riot_id", p.RiotID()),
				zap.Error(err))
			continue
		}

		p.PUUID = account.PUUID
		resolved = append(resolved, p)
		logger.Info("resolved player", zap.String("riot_id", p.RiotID()))
	}
	return New(resolved), nil
}
