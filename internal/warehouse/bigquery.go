package warehouse

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"tft-pipeline/internal/flatten"
)

// BigQuery streams rows into BigQuery tables
type BigQuery struct {
	client *bigquery.Client
}

// NewBigQuery wraps an existing client
func NewBigQuery(client *bigquery.Client) *BigQuery {
	return &BigQuery{client: client}
}

func (b *BigQuery) table(ref TableRef) *bigquery.Table {
	project := ref.Project
	if project == "" {
		project = b.client.Project()
	}
	return b.client.DatasetInProject(project, ref.Dataset).Table(ref.Table)
}

// Insert sends all rows in one streaming insert. Per-row rejections come
// back as *InsertError.
func (b *BigQuery) Insert(ctx context.Context, ref TableRef, rows []flatten.Row) error {
	savers := make([]*bigquery.StructSaver, 0, len(rows))
	for i := range rows {
		savers = append(savers, &bigquery.StructSaver{
			Struct:   &rows[i],
			InsertID: InsertID(rows[i]),
		})
	}

	err := b.table(ref).Inserter().Put(ctx, savers)
	if err == nil {
		return nil
	}

	var multi bigquery.PutMultiError
	if errors.As(err, &multi) {
		return putMultiToInsertError(ref, len(rows), multi)
	}
	return fmt.Errorf("insert into %s: %w", ref, err)
}

func putMultiToInsertError(ref TableRef, total int, multi bigquery.PutMultiError) *InsertError {
	ie := &InsertError{Table: ref, Total: total}
	for _, rowErr := range multi {
		ie.RowErrors = append(ie.RowErrors, RowError{
			Index:    rowErr.RowIndex,
			InsertID: rowErr.InsertID,
			Reason:   rowErr.Errors.Error(),
		})
	}
	return ie
}

// EnsureTable creates the table from the row schema if it does not exist
func (b *BigQuery) EnsureTable(ctx context.Context, ref TableRef) error {
	schema, err := bigquery.InferSchema(flatten.Row{})
	if err != nil {
		return fmt.Errorf("infer schema: %w", err)
	}

	err = b.table(ref).Create(ctx, &bigquery.TableMetadata{Schema: schema})
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusConflict {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create table %s: %w", ref, err)
	}
	return nil
}

// BigQueryTransform runs the configured post-load query as a BigQuery job
type BigQueryTransform struct {
	client *bigquery.Client
	query  string
}

// NewBigQueryTransform returns a transform for query. An empty query makes
// Run a no-op.
func NewBigQueryTransform(client *bigquery.Client, query string) *BigQueryTransform {
	return &BigQueryTransform{client: client, query: query}
}

// Run executes the query and waits for the job to finish
func (t *BigQueryTransform) Run(ctx context.Context) error {
	if t.query == "" {
		return nil
	}

	job, err := t.client.Query(t.query).Run(ctx)
	if err != nil {
		return fmt.Errorf("start transform query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for transform job %s: %w", job.ID(), err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("transform job %s failed: %w", job.ID(), err)
	}
	return nil
}
