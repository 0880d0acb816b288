package riot

// AccountResponse from account-v1 API
type AccountResponse struct {
	PUUID    string `json:"puuid"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
}

// Match is the typed view of a TFT match-v1 record. Scalar fields are
// pointers so a consumer can tell an absent field from a zero value.
type Match struct {
	Metadata MatchMetadata `json:"metadata"`
	Info     MatchInfo     `json:"info"`
}

// MatchMetadata contains match identification
type MatchMetadata struct {
	MatchID      *string  `json:"match_id"`
	DataVersion  string   `json:"data_version"`
	Participants []string `json:"participants"`
}

// MatchInfo contains the game details
type MatchInfo struct {
	GameDatetime *int64        `json:"game_datetime"`
	GameLength   float64       `json:"game_length"`
	GameVersion  *string       `json:"game_version"`
	QueueID      int           `json:"queue_id"`
	SetNumber    int           `json:"tft_set_number"`
	Participants []Participant `json:"participants"`
}

// Participant is one player's final state in a match
type Participant struct {
	PUUID     *string `json:"puuid"`
	Placement *int64  `json:"placement"`
	Level     *int64  `json:"level"`
	GoldLeft  *int64  `json:"gold_left"`
	LastRound *int64  `json:"last_round"`

	Augments []string `json:"augments"`
	Traits   []Trait  `json:"traits"`
	Units    []Unit   `json:"units"`
}

// Trait is an active synergy on a participant's final board
type Trait struct {
	Name        string `json:"name"`
	NumUnits    int64  `json:"num_units"`
	Style       int64  `json:"style"`
	TierCurrent int64  `json:"tier_current"`
	TierTotal   int64  `json:"tier_total"`
}

// Unit is a champion on a participant's final board
type Unit struct {
	CharacterID string   `json:"character_id"`
	ItemNames   []string `json:"itemNames"`
	Name        string   `json:"name"`
	Rarity      int64    `json:"rarity"`
	Tier        int64    `json:"tier"`
}
