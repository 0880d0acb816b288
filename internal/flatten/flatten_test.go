package flatten

import (
	"errors"
	"fmt"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tft-pipeline/internal/riot"
)

func decodeMatch(t *testing.T, raw string) riot.Match {
	t.Helper()
	var m riot.Match
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return m
}

func participantJSON(puuid string, placement int) string {
	return fmt.Sprintf(`{"puuid":%q,"placement":%d,"level":8,"gold_left":3,"last_round":30,
		"augments":["TFT9_Augment_A"],
		"traits":[{"name":"Set9_Bruiser","num_units":2,"style":1,"tier_current":1,"tier_total":3,"unknown":"x"}],
		"units":[{"character_id":"TFT9_Ahri","itemNames":["Item_A"],"name":"","rarity":4,"tier":2,"chosen":"y"}]}`,
		puuid, placement)
}

func TestDatetime(t *testing.T) {
	got := Datetime(1700000000000)
	want := civil.DateTime{
		Date: civil.Date{Year: 2023, Month: 11, Day: 14},
		Time: civil.Time{Hour: 22, Minute: 13, Second: 20},
	}
	assert.Equal(t, want, got)
}

func TestDatetimeKeepsMilliseconds(t *testing.T) {
	got := Datetime(1700000000123)
	assert.Equal(t, 123000000, got.Time.Nanosecond)
}

func TestMatch_CardinalityAndOrder(t *testing.T) {
	raw := fmt.Sprintf(`{"metadata":{"match_id":"SG2_1"},"info":{"game_datetime":1700000000000,"game_version":"14.1","participants":[%s,%s,%s]}}`,
		participantJSON("p1", 3), participantJSON("p2", 1), participantJSON("p3", 2))

	rows, err := Match(decodeMatch(t, raw))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	for i, want := range []string{"p1", "p2", "p3"} {
		assert.Equal(t, want, rows[i].PUUID)
		assert.Equal(t, "SG2_1", rows[i].MatchID)
		assert.Equal(t, "14.1", rows[i].GameVersion)
		assert.Equal(t, Datetime(1700000000000), rows[i].GameDatetime)
	}
	assert.Equal(t, int64(3), rows[0].Placement)
	assert.Equal(t, int64(8), rows[0].Level)
	assert.Equal(t, int64(3), rows[0].GoldLeft)
	assert.Equal(t, int64(30), rows[0].LastRound)
}

func TestMatch_AllowListDropsUnknownSubFields(t *testing.T) {
	raw := fmt.Sprintf(`{"metadata":{"match_id":"SG2_1"},"info":{"game_datetime":1,"game_version":"v","participants":[%s]}}`,
		participantJSON("p1", 1))

	rows, err := Match(decodeMatch(t, raw))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	out, err := json.Marshal(rows[0].Traits)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"Set9_Bruiser","num_units":2,"style":1,"tier_current":1,"tier_total":3}]`, string(out))

	out, err = json.Marshal(rows[0].Units)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"character_id":"TFT9_Ahri","itemNames":["Item_A"],"name":"","rarity":4,"tier":2}]`, string(out))
}

func TestParticipant_OptionalFieldsDefaultEmpty(t *testing.T) {
	puuid := "p1"
	one := int64(1)
	p := riot.Participant{PUUID: &puuid, Placement: &one, Level: &one, GoldLeft: &one, LastRound: &one}

	row, err := Participant("SG2_1", 0, "v", p)
	require.NoError(t, err)
	assert.NotNil(t, row.Augments)
	assert.NotNil(t, row.Traits)
	assert.NotNil(t, row.Units)
	assert.Empty(t, row.Augments)
}

func TestParticipant_MissingRequiredFields(t *testing.T) {
	for _, field := range []string{"puuid", "placement", "level", "gold_left", "last_round"} {
		t.Run(field, func(t *testing.T) {
			fields := map[string]any{
				"puuid": "p1", "placement": 1, "level": 8, "gold_left": 0, "last_round": 20,
			}
			fields[field] = nil
			data, err := json.Marshal(fields)
			require.NoError(t, err)

			var p riot.Participant
			require.NoError(t, json.Unmarshal(data, &p))

			_, err = Participant("SG2_1", 0, "v", p)
			var mfe *MissingFieldError
			require.True(t, errors.As(err, &mfe))
			assert.Equal(t, field, mfe.Field)
		})
	}
}

func TestParticipant_ZeroValuesArePresent(t *testing.T) {
	var p riot.Participant
	require.NoError(t, json.Unmarshal([]byte(`{"puuid":"","placement":0,"level":0,"gold_left":0,"last_round":0}`), &p))

	_, err := Participant("SG2_1", 0, "v", p)
	assert.NoError(t, err)
}

func TestMatch_MissingParticipantFailsWholeRecord(t *testing.T) {
	bad := `{"puuid":"p2","level":8,"gold_left":3,"last_round":30}`
	raw := fmt.Sprintf(`{"metadata":{"match_id":"SG2_1"},"info":{"game_datetime":1,"game_version":"v","participants":[%s,%s]}}`,
		participantJSON("p1", 1), bad)

	rows, err := Match(decodeMatch(t, raw))
	assert.Nil(t, rows)

	var mfe *MissingFieldError
	require.True(t, errors.As(err, &mfe))
	assert.Equal(t, "placement", mfe.Field)
}

func TestMatch_MissingTopLevelFields(t *testing.T) {
	cases := map[string]string{
		"metadata.match_id":  `{"metadata":{},"info":{"game_datetime":1,"game_version":"v","participants":[]}}`,
		"info.game_datetime": `{"metadata":{"match_id":"m"},"info":{"game_version":"v","participants":[]}}`,
		"info.game_version":  `{"metadata":{"match_id":"m"},"info":{"game_datetime":1,"participants":[]}}`,
		"info.participants":  `{"metadata":{"match_id":"m"},"info":{"game_datetime":1,"game_version":"v"}}`,
	}
	for field, raw := range cases {
		_, err := Match(decodeMatch(t, raw))
		var mfe *MissingFieldError
		require.True(t, errors.As(err, &mfe), field)
		assert.Equal(t, field, mfe.Field)
	}
}

func TestMatch_EmptyParticipants(t *testing.T) {
	rows, err := Match(decodeMatch(t, `{"metadata":{"match_id":"m"},"info":{"game_datetime":1,"game_version":"v","participants":[]}}`))
	require.NoError(t, err)
	assert.Empty(t, rows)
}
