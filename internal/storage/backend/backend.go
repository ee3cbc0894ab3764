// Package backend opens the key-value store and vector index selected by the
// configuration.
package backend

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/aerospike-examples/hybrid-search/internal/storage"
	"github.com/aerospike-examples/hybrid-search/internal/storage/badgerstore"
	"github.com/aerospike-examples/hybrid-search/internal/storage/pgvector"
	"github.com/aerospike-examples/hybrid-search/internal/storage/redisstore"
	badgerdb "github.com/aerospike-examples/hybrid-search/pkg/badger"
	"github.com/aerospike-examples/hybrid-search/pkg/config"
	"github.com/aerospike-examples/hybrid-search/pkg/health"
	"github.com/aerospike-examples/hybrid-search/pkg/postgres"
	redisclient "github.com/aerospike-examples/hybrid-search/pkg/redis"
)

// Backends holds the opened collaborators. Close releases all of them.
type Backends struct {
	Store   storage.Store
	Vectors storage.VectorIndex
	badger  *badgerdb.Backend
}

// Open connects to the configured backends. When both use Badger they share
// one database.
func Open(cfg *config.Config) (*Backends, error) {
	b := &Backends{}
	switch cfg.Storage.Backend {
	case "badger":
		if err := b.openBadger(cfg.Badger); err != nil {
			return nil, err
		}
		b.Store = badgerstore.New(b.badger, cfg.Storage)
	default:
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		b.Store = redisstore.New(client, cfg.Storage)
	}

	switch cfg.Vector.Backend {
	case "badger":
		if err := b.openBadger(cfg.Badger); err != nil {
			b.Close()
			return nil, err
		}
		b.Vectors = badgerstore.NewVectorIndex(b.badger, cfg.Storage.Namespace, cfg.Vector.Index, cfg.Vector.Dimensions)
	default:
		client, err := postgres.New(cfg.Postgres)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		idx, err := pgvector.New(client, cfg.Vector.Index, cfg.Vector.Dimensions)
		if err != nil {
			client.Close()
			b.Close()
			return nil, err
		}
		b.Vectors = idx
	}

	slog.Info("storage backends opened",
		"store", cfg.Storage.Backend,
		"vectors", cfg.Vector.Backend,
		"namespace", cfg.Storage.Namespace,
	)
	return b, nil
}

func (b *Backends) openBadger(cfg config.BadgerConfig) error {
	if b.badger != nil {
		return nil
	}
	db, err := badgerdb.Open(cfg)
	if err != nil {
		return err
	}
	b.badger = db
	return nil
}

// RegisterHealth adds readiness checks for both backends.
func (b *Backends) RegisterHealth(checker *health.Checker) {
	checker.Register("kv_store", health.PingCheck(b.Store, true))
	checker.Register("vector_index", health.PingCheck(b.Vectors, true))
}

func (b *Backends) Close() error {
	var errs []error
	if b.Store != nil {
		errs = append(errs, b.Store.Close())
	}
	if b.Vectors != nil {
		errs = append(errs, b.Vectors.Close())
	}
	if b.badger != nil {
		errs = append(errs, b.badger.Close())
	}
	return errors.Join(errs...)
}
