package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/w-h-a/pdfrag/index"
	"go.nhat.io/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
)

var DRIVER string

func init() {
	driver, err := otelsql.Register(
		"postgres",
		otelsql.TraceQueryWithoutArgs(),
		otelsql.TraceRowsClose(),
		otelsql.TraceRowsAffected(),
		otelsql.WithSystem(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		detail := "failed to register pg index with otel"
		slog.ErrorContext(context.Background(), detail, "error", err)
		panic(detail)
	}

	DRIVER = driver
}

// postgresIndex keeps vectors in a pgvector column. The column type fixes the
// dimension at configuration time, so unlike the flat index it is never
// unestablished.
type postgresIndex struct {
	options index.Options
	conn    *sql.DB
}

func (p *postgresIndex) Insert(ctx context.Context, records []index.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	for _, rec := range records {
		if len(rec.Embedding) != p.options.Dimension {
			return 0, &index.DimensionError{Want: p.options.Dimension, Got: len(rec.Embedding)}
		}
	}

	tx, err := p.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (
			chunk_id,
			document_id,
			sequence_index,
			content,
			start_offset,
			end_offset,
			embedding
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.options.Collection)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(
			ctx,
			rec.Id,
			rec.DocumentId,
			rec.SequenceIndex,
			rec.Text,
			rec.StartOffset,
			rec.EndOffset,
			pgvector.NewVector(rec.Embedding),
		); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return len(records), nil
}

func (p *postgresIndex) Search(ctx context.Context, vector []float32, k int) ([]index.Record, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	if len(vector) != p.options.Dimension {
		return nil, &index.DimensionError{Want: p.options.Dimension, Got: len(vector)}
	}

	query := fmt.Sprintf(`
		SELECT
			chunk_id,
			document_id,
			sequence_index,
			content,
			start_offset,
			end_offset,
			embedding,
			1 - (embedding <=> $1) AS score,
			created_at
		FROM %s
		ORDER BY embedding <=> $1 ASC, id ASC
		LIMIT $2
	`, p.options.Collection)

	rows, err := p.conn.QueryContext(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []index.Record{}

	for rows.Next() {
		var rec index.Record
		var embedding pgvector.Vector

		if err := rows.Scan(
			&rec.Id,
			&rec.DocumentId,
			&rec.SequenceIndex,
			&rec.Text,
			&rec.StartOffset,
			&rec.EndOffset,
			&embedding,
			&rec.Score,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		rec.Embedding = embedding.Slice()

		results = append(results, rec)
	}

	return results, rows.Err()
}

func (p *postgresIndex) Persist(ctx context.Context) error {
	// rows are durable as soon as the insert transaction commits
	return nil
}

func (p *postgresIndex) Load(ctx context.Context) error {
	return p.conn.PingContext(ctx)
}

func (p *postgresIndex) Reset(ctx context.Context) error {
	_, err := p.conn.ExecContext(ctx, fmt.Sprintf("TRUNCATE %s", p.options.Collection))
	return err
}

func (p *postgresIndex) Count(ctx context.Context) (int, error) {
	var count int
	err := p.conn.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", p.options.Collection)).Scan(&count)
	return count, err
}

func (p *postgresIndex) Dimension() int {
	return p.options.Dimension
}

func (p *postgresIndex) configure() error {
	if _, err := p.conn.Exec("CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return err
	}

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			chunk_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			sequence_index INT NOT NULL,
			content TEXT NOT NULL,
			start_offset INT NOT NULL,
			end_offset INT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`, p.options.Collection, p.options.Dimension)

	_, err := p.conn.Exec(schema)

	return err
}

func NewIndex(opts ...index.Option) index.Index {
	options := index.NewOptions(opts...)

	if len(options.Collection) == 0 {
		options.Collection = "chunks"
	}

	if options.Dimension <= 0 {
		panic("postgres index requires a configured dimension")
	}

	conn, err := sql.Open(DRIVER, options.Location)
	if err != nil {
		panic(err)
	}

	p := &postgresIndex{
		options: options,
		conn:    conn,
	}

	if err := p.configure(); err != nil {
		panic(err)
	}

	return p
}
