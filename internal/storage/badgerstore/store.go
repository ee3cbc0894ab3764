// Package badgerstore keeps the search collections in an embedded Badger
// database. Keys are "namespace/set/id"; postings are stored one key per
// (term, chunk) pair so merges and removals never rewrite a whole term.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aerospike-examples/hybrid-search/internal/indexer/index"
	"github.com/aerospike-examples/hybrid-search/internal/storage"
	badgerdb "github.com/aerospike-examples/hybrid-search/pkg/badger"
	"github.com/aerospike-examples/hybrid-search/pkg/config"
	"github.com/dgraph-io/badger/v4"
)

const (
	totalsID = "global"
	scanPage = 1000
)

type metaRecord struct {
	URL    string `json:"url"`
	Hash   string `json:"doc_hash"`
	Active int    `json:"active"`
	Chunks int    `json:"chunks"`
}

// Store implements storage.Store on a Badger backend.
type Store struct {
	backend *badgerdb.Backend
	ns      string
	sets    config.StorageSets
	logger  *slog.Logger
}

var _ storage.Store = (*Store)(nil)

func New(backend *badgerdb.Backend, cfg config.StorageConfig) *Store {
	return &Store{
		backend: backend,
		ns:      cfg.Namespace,
		sets:    cfg.Sets,
		logger:  slog.Default().With("component", "badger-store"),
	}
}

func (s *Store) prefix(set string) []byte {
	return []byte(s.ns + "/" + set + "/")
}

func (s *Store) key(set, id string) []byte {
	return append(s.prefix(set), id...)
}

func (s *Store) postingKey(term, chunkID string) []byte {
	return []byte(s.ns + "/" + s.sets.Keywords + "/" + term + "/" + chunkID)
}

func (s *Store) MarkSeen(ctx context.Context, url, contentHash string) (storage.MarkResult, error) {
	var res storage.MarkResult
	err := s.backend.Update(ctx, func(txn *badger.Txn) error {
		res = storage.MarkResult{}
		rec, _, err := getJSON[metaRecord](txn, s.key(s.sets.DocMeta, url))
		if err != nil {
			return err
		}
		res.Unchanged = rec.Hash == contentHash && rec.Hash != ""
		res.PreviousChunkCount = rec.Chunks
		rec.URL = url
		rec.Hash = contentHash
		rec.Active = 1
		return setJSON(txn, s.key(s.sets.DocMeta, url), rec)
	})
	if err != nil {
		return storage.MarkResult{}, fmt.Errorf("marking %s seen: %w", url, err)
	}
	return res, nil
}

func (s *Store) updateMeta(ctx context.Context, url string, fn func(rec *metaRecord)) error {
	return s.backend.Update(ctx, func(txn *badger.Txn) error {
		rec, _, err := getJSON[metaRecord](txn, s.key(s.sets.DocMeta, url))
		if err != nil {
			return err
		}
		if rec.URL == "" {
			rec.URL = url
		}
		fn(&rec)
		return setJSON(txn, s.key(s.sets.DocMeta, url), rec)
	})
}

func (s *Store) SetChunkCount(ctx context.Context, url string, count int) error {
	if err := s.updateMeta(ctx, url, func(rec *metaRecord) { rec.Chunks = count }); err != nil {
		return fmt.Errorf("setting chunk count of %s: %w", url, err)
	}
	return nil
}

func (s *Store) SetInactive(ctx context.Context, url string) error {
	if err := s.updateMeta(ctx, url, func(rec *metaRecord) { rec.Active = 0 }); err != nil {
		return fmt.Errorf("resetting active flag of %s: %w", url, err)
	}
	return nil
}

func (s *Store) DeleteMeta(ctx context.Context, url string) error {
	err := s.backend.Update(ctx, func(txn *badger.Txn) error {
		return txn.Delete(s.key(s.sets.DocMeta, url))
	})
	if err != nil {
		return fmt.Errorf("deleting meta of %s: %w", url, err)
	}
	return nil
}

func (s *Store) ScanMeta(ctx context.Context, fn func(meta storage.DocumentMeta) error) error {
	prefix := s.prefix(s.sets.DocMeta)
	return s.scan(ctx, prefix, false, func(key, val []byte) error {
		var rec metaRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			s.logger.Warn("skipping corrupt meta record", "key", string(key), "error", err)
			return nil
		}
		url := rec.URL
		if url == "" {
			url = string(key[len(prefix):])
		}
		return fn(storage.DocumentMeta{
			URL:         url,
			ContentHash: rec.Hash,
			Active:      rec.Active == 1,
			ChunkCount:  rec.Chunks,
		})
	})
}

func (s *Store) ResetMeta(ctx context.Context, chunkCounts map[string]int) error {
	for url, count := range chunkCounts {
		err := s.updateMeta(ctx, url, func(rec *metaRecord) {
			rec.Chunks = count
			rec.Active = 0
		})
		if err != nil {
			return fmt.Errorf("resetting meta of %s: %w", url, err)
		}
	}
	return nil
}

func (s *Store) PutChunks(ctx context.Context, chunks []storage.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	wb := s.backend.DB().NewWriteBatch()
	defer wb.Cancel()
	for _, c := range chunks {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encoding chunk %s: %w", c.ID, err)
		}
		if err := wb.Set(s.key(s.sets.Documents, c.ID), data); err != nil {
			return fmt.Errorf("writing chunk %s: %w", c.ID, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("writing %d chunks: %w", len(chunks), err)
	}
	return nil
}

func (s *Store) GetChunks(ctx context.Context, ids []string) (map[string]storage.Chunk, error) {
	out := make(map[string]storage.Chunk, len(ids))
	err := s.backend.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			c, ok, err := getJSON[storage.Chunk](txn, s.key(s.sets.Documents, id))
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			c.ID = id
			out[id] = c
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading %d chunks: %w", len(ids), err)
	}
	return out, nil
}

func (s *Store) DeleteChunks(ctx context.Context, ids []string) error {
	keys := make([][]byte, len(ids))
	for i, id := range ids {
		keys[i] = s.key(s.sets.Documents, id)
	}
	if err := s.deleteKeys(keys); err != nil {
		return fmt.Errorf("deleting %d chunks: %w", len(ids), err)
	}
	return nil
}

func (s *Store) ChunksExist(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	err := s.backend.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			_, err := txn.Get(s.key(s.sets.Documents, id))
			switch {
			case err == nil:
				out[id] = true
			case errors.Is(err, badger.ErrKeyNotFound):
				out[id] = false
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("checking %d chunks: %w", len(ids), err)
	}
	return out, nil
}

func (s *Store) ScanChunks(ctx context.Context, keysOnly bool, fn func(chunk storage.Chunk) error) error {
	prefix := s.prefix(s.sets.Documents)
	return s.scan(ctx, prefix, keysOnly, func(key, val []byte) error {
		id := string(key[len(prefix):])
		if keysOnly {
			return fn(storage.Chunk{ID: id})
		}
		var c storage.Chunk
		if err := json.Unmarshal(val, &c); err != nil {
			s.logger.Warn("skipping corrupt chunk", "chunk_id", id, "error", err)
			return nil
		}
		c.ID = id
		return fn(c)
	})
}

func (s *Store) MergePostings(ctx context.Context, term string, postings map[string]index.Posting) error {
	if len(postings) == 0 {
		return nil
	}
	err := s.backend.Update(ctx, func(txn *badger.Txn) error {
		for chunkID, p := range postings {
			if err := setJSON(txn, s.postingKey(term, chunkID), p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("merging postings of %q: %w", term, err)
	}
	return nil
}

func (s *Store) GetPostings(ctx context.Context, terms []string) (index.TermPostings, error) {
	out := make(index.TermPostings, len(terms))
	err := s.backend.View(func(txn *badger.Txn) error {
		for _, term := range terms {
			prefix := s.postingKey(term, "")
			postings, err := s.readTerm(txn, prefix)
			if err != nil {
				return err
			}
			if len(postings) > 0 {
				out[term] = postings
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading postings of %d terms: %w", len(terms), err)
	}
	return out, nil
}

func (s *Store) readTerm(txn *badger.Txn, prefix []byte) (map[string]index.Posting, error) {
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
	defer it.Close()
	postings := make(map[string]index.Posting)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		chunkID := string(item.Key()[len(prefix):])
		val, err := item.ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		var p index.Posting
		if err := json.Unmarshal(val, &p); err != nil {
			s.logger.Warn("skipping corrupt posting", "key", string(item.Key()), "error", err)
			continue
		}
		postings[chunkID] = p
	}
	return postings, nil
}

func (s *Store) RemovePostings(ctx context.Context, chunkIDs []string) (int, error) {
	if len(chunkIDs) == 0 {
		return 0, nil
	}
	doomed := make(map[string]struct{}, len(chunkIDs))
	for _, id := range chunkIDs {
		doomed[id] = struct{}{}
	}
	prefix := s.prefix(s.sets.Keywords)
	var keys [][]byte
	err := s.scan(ctx, prefix, true, func(key, _ []byte) error {
		_, chunkID, ok := strings.Cut(string(key[len(prefix):]), "/")
		if !ok {
			return nil
		}
		if _, hit := doomed[chunkID]; hit {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scanning postings: %w", err)
	}
	if err := s.deleteKeys(keys); err != nil {
		return 0, fmt.Errorf("removing %d postings: %w", len(keys), err)
	}
	return len(keys), nil
}

func (s *Store) ScanTerms(ctx context.Context, fn func(term string, postings map[string]index.Posting) error) error {
	prefix := s.prefix(s.sets.Keywords)
	var (
		current  string
		postings map[string]index.Posting
	)
	err := s.scan(ctx, prefix, false, func(key, val []byte) error {
		term, chunkID, ok := strings.Cut(string(key[len(prefix):]), "/")
		if !ok {
			return nil
		}
		if term != current {
			if postings != nil {
				if err := fn(current, postings); err != nil {
					return err
				}
			}
			current = term
			postings = make(map[string]index.Posting)
		}
		var p index.Posting
		if err := json.Unmarshal(val, &p); err != nil {
			s.logger.Warn("skipping corrupt posting", "term", term, "chunk_id", chunkID, "error", err)
			return nil
		}
		postings[chunkID] = p
		return nil
	})
	if err != nil {
		return err
	}
	if postings != nil {
		return fn(current, postings)
	}
	return nil
}

func (s *Store) DeleteTerm(ctx context.Context, term string) error {
	var keys [][]byte
	err := s.scan(ctx, s.postingKey(term, ""), true, func(key, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	if err == nil {
		err = s.deleteKeys(keys)
	}
	if err != nil {
		return fmt.Errorf("deleting term %q: %w", term, err)
	}
	return nil
}

func (s *Store) GetTotals(ctx context.Context) (storage.Totals, error) {
	var t storage.Totals
	err := s.backend.View(func(txn *badger.Txn) error {
		var err error
		t, _, err = getJSON[storage.Totals](txn, s.key(s.sets.Totals, totalsID))
		return err
	})
	if err != nil {
		return storage.Totals{}, fmt.Errorf("reading totals: %w", err)
	}
	return t, nil
}

func (s *Store) PutTotals(ctx context.Context, totals storage.Totals) error {
	err := s.backend.Update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, s.key(s.sets.Totals, totalsID), totals)
	})
	if err != nil {
		return fmt.Errorf("writing totals: %w", err)
	}
	return nil
}

func (s *Store) GetEmbedding(ctx context.Context, query string) ([]float32, bool, error) {
	var (
		vec []float32
		ok  bool
	)
	err := s.backend.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(s.sets.QueryCache, query))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		vec, ok = decodeVector(val)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("reading cached embedding: %w", err)
	}
	return vec, ok, nil
}

func (s *Store) PutEmbedding(ctx context.Context, query string, vec []float32) error {
	err := s.backend.Update(ctx, func(txn *badger.Txn) error {
		return txn.Set(s.key(s.sets.QueryCache, query), encodeVector(vec))
	})
	if err != nil {
		return fmt.Errorf("caching embedding: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Close is a no-op; the backend is shared with the vector index and closed by
// its owner.
func (s *Store) Close() error {
	return nil
}

// scan visits every key under prefix in pages. Each page is read in its own
// read transaction and fn runs outside it, so fn may write to the store.
func (s *Store) scan(ctx context.Context, prefix []byte, keysOnly bool, fn func(key, val []byte) error) error {
	type kv struct{ key, val []byte }
	var last []byte
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page := make([]kv, 0, scanPage)
		err := s.backend.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.IteratorOptions{
				Prefix:         prefix,
				PrefetchValues: !keysOnly,
				PrefetchSize:   100,
			})
			defer it.Close()
			start := prefix
			if last != nil {
				start = last
			}
			for it.Seek(start); it.ValidForPrefix(prefix) && len(page) < scanPage; it.Next() {
				item := it.Item()
				if last != nil && string(item.Key()) == string(last) {
					continue
				}
				entry := kv{key: item.KeyCopy(nil)}
				if !keysOnly {
					val, err := item.ValueCopy(nil)
					if err != nil {
						return err
					}
					entry.val = val
				}
				page = append(page, entry)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, e := range page {
			if err := fn(e.key, e.val); err != nil {
				return err
			}
		}
		if len(page) < scanPage {
			return nil
		}
		last = page[len(page)-1].key
	}
}

func (s *Store) deleteKeys(keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	wb := s.backend.DB().NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func getJSON[T any](txn *badger.Txn, key []byte) (T, bool, error) {
	var v T
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return v, false, err
	}
	if err := json.Unmarshal(val, &v); err != nil {
		return v, false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return v, true, nil
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return txn.Set(key, data)
}
