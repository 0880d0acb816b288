package warehouse

import (
	"context"
	"fmt"
	"strings"

	"tft-pipeline/internal/flatten"
)

// Inserter bulk-inserts flat rows into one table
type Inserter interface {
	Insert(ctx context.Context, table TableRef, rows []flatten.Row) error
}

// Transformer runs the opaque post-load transform
type Transformer interface {
	Run(ctx context.Context) error
}

// TableRef names a warehouse table
type TableRef struct {
	Project string
	Dataset string
	Table   string
}

func (r TableRef) String() string {
	if r.Project == "" {
		return r.Dataset + "." + r.Table
	}
	return r.Project + "." + r.Dataset + "." + r.Table
}

// ParseTableRef accepts "project.dataset.table", "project:dataset.table" or
// "dataset.table". The two-part form takes defaultProject.
func ParseTableRef(ref, defaultProject string) (TableRef, error) {
	ref = strings.TrimSpace(strings.Trim(ref, "`"))
	if project, rest, ok := strings.Cut(ref, ":"); ok {
		parts := strings.Split(rest, ".")
		if project == "" || len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return TableRef{}, fmt.Errorf("invalid table reference %q", ref)
		}
		return TableRef{Project: project, Dataset: parts[0], Table: parts[1]}, nil
	}

	parts := strings.Split(ref, ".")
	for _, p := range parts {
		if p == "" {
			return TableRef{}, fmt.Errorf("invalid table reference %q", ref)
		}
	}
	switch len(parts) {
	case 3:
		return TableRef{Project: parts[0], Dataset: parts[1], Table: parts[2]}, nil
	case 2:
		return TableRef{Project: defaultProject, Dataset: parts[0], Table: parts[1]}, nil
	default:
		return TableRef{}, fmt.Errorf("invalid table reference %q", ref)
	}
}

// RowError is the warehouse's rejection of one row
type RowError struct {
	Index    int
	InsertID string
	Reason   string
}

// InsertError reports rows the warehouse rejected. Rows not listed were
// accepted.
type InsertError struct {
	Table     TableRef
	Total     int
	RowErrors []RowError
}

func (e *InsertError) Error() string {
	return fmt.Sprintf("insert into %s: %d of %d rows rejected", e.Table, len(e.RowErrors), e.Total)
}

// InsertID identifies a row for best-effort dedup on retried streaming inserts
func InsertID(r flatten.Row) string {
	return r.MatchID + ":" + r.PUUID
}
