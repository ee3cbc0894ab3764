// Package pgvector implements the vector-similarity index on PostgreSQL with
// the pgvector extension, using an HNSW index over cosine distance.
package pgvector

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/aerospike-examples/hybrid-search/internal/storage"
	"github.com/aerospike-examples/hybrid-search/pkg/postgres"
	"github.com/lib/pq"
	pgv "github.com/pgvector/pgvector-go"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Index stores one row per chunk id.
type Index struct {
	client     *postgres.Client
	table      string
	dimensions int
	logger     *slog.Logger
}

var _ storage.VectorIndex = (*Index)(nil)

func New(client *postgres.Client, table string, dimensions int) (*Index, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid vector table name %q", table)
	}
	return &Index{
		client:     client,
		table:      table,
		dimensions: dimensions,
		logger:     slog.Default().With("component", "pgvector"),
	}, nil
}

// CreateIndex creates the extension, table and HNSW index if missing.
func (i *Index) CreateIndex(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL
		)`, i.table, i.dimensions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_hnsw
			ON %s USING hnsw (embedding vector_cosine_ops)`, i.table, i.table),
	}
	for _, stmt := range stmts {
		if _, err := i.client.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating vector index %s: %w", i.table, err)
		}
	}
	i.logger.Info("vector index ready", "table", i.table, "dimensions", i.dimensions)
	return nil
}

func (i *Index) Upsert(ctx context.Context, id string, vec []float32) error {
	if len(vec) != i.dimensions {
		return fmt.Errorf("vector for %s has %d dimensions, want %d", id, len(vec), i.dimensions)
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, embedding) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding`, i.table)
	if _, err := i.client.DB.ExecContext(ctx, query, id, pgv.NewVector(vec)); err != nil {
		return fmt.Errorf("upserting vector %s: %w", id, err)
	}
	return nil
}

func (i *Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, i.table)
	if _, err := i.client.DB.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("deleting %d vectors: %w", len(ids), err)
	}
	return nil
}

func (i *Index) Query(ctx context.Context, vec []float32, limit int) ([]storage.Neighbor, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT id, embedding <=> $1 AS distance
		FROM %s ORDER BY embedding <=> $1 LIMIT $2`, i.table)
	rows, err := i.client.DB.QueryContext(ctx, query, pgv.NewVector(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	hits := make([]storage.Neighbor, 0, limit)
	for rows.Next() {
		var n storage.Neighbor
		if err := rows.Scan(&n.ID, &n.Distance); err != nil {
			return nil, fmt.Errorf("scanning neighbour: %w", err)
		}
		hits = append(hits, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating neighbours: %w", err)
	}
	return hits, nil
}

func (i *Index) Ping(ctx context.Context) error {
	return i.client.Ping(ctx)
}

func (i *Index) Close() error {
	return i.client.Close()
}
