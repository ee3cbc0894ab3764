package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "doc_meta", cfg.Storage.Sets.DocMeta)
	assert.Equal(t, 0.4, cfg.Vector.DistanceThreshold)
	assert.Equal(t, 100, cfg.Search.VectorCandidates)
	assert.Equal(t, 200, cfg.Search.MaxResults)
	assert.Equal(t, 60, cfg.Search.RRFK)
	assert.Equal(t, 10, cfg.Search.DefaultPageSize)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: badger
badger:
  inMemory: true
vector:
  backend: badger
  dimensions: 64
  queryTimeout: 2s
embedding:
  provider: hash
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.True(t, cfg.Badger.InMemory)
	assert.Equal(t, 64, cfg.Vector.Dimensions)
	assert.Equal(t, 2*time.Second, cfg.Vector.QueryTimeout)
	assert.Equal(t, "search", cfg.Storage.Namespace)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HS_STORAGE_BACKEND", "badger")
	t.Setenv("HS_REDIS_ADDR", "redis:6380")
	t.Setenv("HS_INDEXER_WORKERS", "9")
	t.Setenv("HS_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 9, cfg.Indexer.Workers)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_Invalid(t *testing.T) {
	for name, body := range map[string]string{
		"storage backend": "storage:\n  backend: cassandra\n",
		"vector backend":  "vector:\n  backend: faiss\n",
		"provider":        "embedding:\n  provider: bert\n",
		"dimensions":      "vector:\n  dimensions: 0\n",
		"overlap":         "indexer:\n  chunkSize: 10\n  chunkOverlap: 10\n",
		"page size":       "search:\n  defaultPageSize: 50\n  maxPageSize: 10\n",
		"yaml":            "storage: [",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	dsn := Default().Postgres.DSN()
	assert.Equal(t, "host=localhost port=5432 user=hybridsearch password=localdev dbname=hybridsearch sslmode=disable", dsn)
}
