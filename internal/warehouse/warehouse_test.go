package warehouse

import (
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tft-pipeline/internal/flatten"
)

func TestParseTableRef(t *testing.T) {
	cases := []struct {
		in   string
		want TableRef
	}{
		{"proj.tft.staging", TableRef{"proj", "tft", "staging"}},
		{"proj:tft.staging", TableRef{"proj", "tft", "staging"}},
		{"`proj.tft.staging`", TableRef{"proj", "tft", "staging"}},
		{"tft.staging", TableRef{"default", "tft", "staging"}},
	}
	for _, c := range cases {
		got, err := ParseTableRef(c.in, "default")
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}

	for _, bad := range []string{"", "staging", "a.b.c.d", "a..b", ":a.b", "p:a.b.c"} {
		_, err := ParseTableRef(bad, "default")
		assert.Error(t, err, bad)
	}
}

func TestTableRefString(t *testing.T) {
	assert.Equal(t, "p.d.t", TableRef{"p", "d", "t"}.String())
	assert.Equal(t, "d.t", TableRef{Dataset: "d", Table: "t"}.String())
}

func TestPutMultiErrorConversion(t *testing.T) {
	ref := TableRef{"p", "d", "t"}
	multi := bigquery.PutMultiError{
		{InsertID: "m1:p2", RowIndex: 1, Errors: bigquery.MultiError{errors.New("no such field: extra")}},
		{InsertID: "m2:p1", RowIndex: 3, Errors: bigquery.MultiError{errors.New("invalid value")}},
	}

	ie := putMultiToInsertError(ref, 5, multi)

	require.Len(t, ie.RowErrors, 2)
	assert.Equal(t, 1, ie.RowErrors[0].Index)
	assert.Equal(t, "m1:p2", ie.RowErrors[0].InsertID)
	assert.Contains(t, ie.RowErrors[0].Reason, "no such field")
	assert.Equal(t, "insert into p.d.t: 2 of 5 rows rejected", ie.Error())

	var target *InsertError
	assert.True(t, errors.As(error(ie), &target))
}

func TestCopyValuesColumnOrder(t *testing.T) {
	row := flatten.Row{
		MatchID:      "SG2_1",
		PUUID:        "p1",
		Placement:    1,
		Level:        9,
		GoldLeft:     2,
		LastRound:    33,
		Augments:     []string{"A"},
		Traits:       []flatten.Trait{},
		Units:        []flatten.Unit{},
		GameVersion:  "14.1",
		GameDatetime: flatten.Datetime(1700000000000),
	}

	values, err := copyValues(row)
	require.NoError(t, err)
	require.Len(t, values, len(rowColumns))

	assert.Equal(t, "SG2_1", values[0])
	assert.Equal(t, int64(33), values[5])
	assert.Equal(t, `["A"]`, string(values[6].([]byte)))
	assert.Equal(t, `[]`, string(values[7].([]byte)))
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC), values[10])
}

func TestTableIdent(t *testing.T) {
	assert.Equal(t, `"tft"."staging"`, tableIdent(TableRef{Project: "p", Dataset: "tft", Table: "staging"}).Sanitize())
	assert.Equal(t, `"staging"`, tableIdent(TableRef{Table: "staging"}).Sanitize())
}

func TestInsertID(t *testing.T) {
	assert.Equal(t, "SG2_1:p1", InsertID(flatten.Row{MatchID: "SG2_1", PUUID: "p1"}))
}
