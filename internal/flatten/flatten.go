package flatten

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"tft-pipeline/internal/riot"
)

// Row is one participant of one match, shaped for the warehouse table.
// Column names follow the bigquery tags.
type Row struct {
	MatchID      string         `bigquery:"match_id" json:"match_id"`
	PUUID        string         `bigquery:"puuid" json:"puuid"`
	Placement    int64          `bigquery:"placement" json:"placement"`
	Level        int64          `bigquery:"level" json:"level"`
	GoldLeft     int64          `bigquery:"gold_left" json:"gold_left"`
	LastRound    int64          `bigquery:"last_round" json:"last_round"`
	Augments     []string       `bigquery:"augments" json:"augments"`
	Traits       []Trait        `bigquery:"traits" json:"traits"`
	Units        []Unit         `bigquery:"units" json:"units"`
	GameVersion  string         `bigquery:"game_version" json:"game_version"`
	GameDatetime civil.DateTime `bigquery:"game_datetime" json:"game_datetime"`
}

// Trait keeps only the trait sub-fields the table declares
type Trait struct {
	Name        string `bigquery:"name" json:"name"`
	NumUnits    int64  `bigquery:"num_units" json:"num_units"`
	Style       int64  `bigquery:"style" json:"style"`
	TierCurrent int64  `bigquery:"tier_current" json:"tier_current"`
	TierTotal   int64  `bigquery:"tier_total" json:"tier_total"`
}

// Unit keeps only the unit sub-fields the table declares
type Unit struct {
	CharacterID string   `bigquery:"character_id" json:"character_id"`
	ItemNames   []string `bigquery:"itemNames" json:"itemNames"`
	Name        string   `bigquery:"name" json:"name"`
	Rarity      int64    `bigquery:"rarity" json:"rarity"`
	Tier        int64    `bigquery:"tier" json:"tier"`
}

// MissingFieldError reports a required field absent from the source record
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// Datetime converts epoch milliseconds to a timezone-naive UTC calendar time
func Datetime(ms int64) civil.DateTime {
	return civil.DateTimeOf(time.UnixMilli(ms).UTC())
}

// Participant flattens one participant. puuid, placement, level, gold_left
// and last_round are required; augments, traits and units default to empty.
func Participant(matchID string, gameDatetimeMs int64, gameVersion string, p riot.Participant) (Row, error) {
	switch {
	case p.PUUID == nil:
		return Row{}, &MissingFieldError{Field: "puuid"}
	case p.Placement == nil:
		return Row{}, &MissingFieldError{Field: "placement"}
	case p.Level == nil:
		return Row{}, &MissingFieldError{Field: "level"}
	case p.GoldLeft == nil:
		return Row{}, &MissingFieldError{Field: "gold_left"}
	case p.LastRound == nil:
		return Row{}, &MissingFieldError{Field: "last_round"}
	}

	augments := make([]string, len(p.Augments))
	copy(augments, p.Augments)

	traits := make([]Trait, 0, len(p.Traits))
	for _, t := range p.Traits {
		traits = append(traits, Trait{
			Name:        t.Name,
			NumUnits:    t.NumUnits,
			Style:       t.Style,
			TierCurrent: t.TierCurrent,
			TierTotal:   t.TierTotal,
		})
	}

	units := make([]Unit, 0, len(p.Units))
	for _, u := range p.Units {
		items := make([]string, len(u.ItemNames))
		copy(items, u.ItemNames)
		units = append(units, Unit{
			CharacterID: u.CharacterID,
			ItemNames:   items,
			Name:        u.Name,
			Rarity:      u.Rarity,
			Tier:        u.Tier,
		})
	}

	return Row{
		MatchID:      matchID,
		PUUID:        *p.PUUID,
		Placement:    *p.Placement,
		Level:        *p.Level,
		GoldLeft:     *p.GoldLeft,
		LastRound:    *p.LastRound,
		Augments:     augments,
		Traits:       traits,
		Units:        units,
		GameVersion:  gameVersion,
		GameDatetime: Datetime(gameDatetimeMs),
	}, nil
}

// Match flattens every participant of a record, in source order. Any
// participant failure fails the whole record.
func Match(m riot.Match) ([]Row, error) {
	switch {
	case m.Metadata.MatchID == nil:
		return nil, &MissingFieldError{Field: "metadata.match_id"}
	case m.Info.GameDatetime == nil:
		return nil, &MissingFieldError{Field: "info.game_datetime"}
	case m.Info.GameVersion == nil:
		return nil, &MissingFieldError{Field: "info.game_version"}
	case m.Info.Participants == nil:
		return nil, &MissingFieldError{Field: "info.participants"}
	}

	matchID := *m.Metadata.MatchID
	rows := make([]Row, 0, len(m.Info.Participants))
	for i, p := range m.Info.Participants {
		row, err := Participant(matchID, *m.Info.GameDatetime, *m.Info.GameVersion, p)
		if err != nil {
			return nil, fmt.Errorf("participant %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
