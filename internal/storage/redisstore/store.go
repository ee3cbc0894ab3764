// Package redisstore keeps the search collections in Redis. Every record is a
// hash under "namespace:set:id" except the query cache, which stores the
// embedding as a JSON string.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aerospike-examples/hybrid-search/internal/indexer/index"
	"github.com/aerospike-examples/hybrid-search/internal/storage"
	"github.com/aerospike-examples/hybrid-search/pkg/config"
	redisclient "github.com/aerospike-examples/hybrid-search/pkg/redis"
	"github.com/redis/go-redis/v9"
)

const totalsID = "global"

// markSeenScript sets active=1 and the new hash in one step and returns
// {hash unchanged, previous chunk count}.
var markSeenScript = redis.NewScript(`
local prev = redis.call('HGET', KEYS[1], 'doc_hash')
local c = redis.call('HGET', KEYS[1], 'chunks')
local chunks = 0
if c then chunks = tonumber(c) end
redis.call('HSET', KEYS[1], 'url', ARGV[1], 'doc_hash', ARGV[2], 'active', 1)
local same = 0
if prev == ARGV[2] then same = 1 end
return {same, chunks}
`)

// Store implements storage.Store on top of a Redis client.
type Store struct {
	client *redisclient.Client
	ns     string
	sets   config.StorageSets
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

func New(client *redisclient.Client, cfg config.StorageConfig) *Store {
	return &Store{
		client: client,
		ns:     cfg.Namespace,
		sets:   cfg.Sets,
		logger: slog.Default().With("component", "redis-store"),
	}
}

func (s *Store) key(set, id string) string {
	return s.ns + ":" + set + ":" + id
}

func (s *Store) prefix(set string) string {
	return s.ns + ":" + set + ":"
}

func (s *Store) MarkSeen(ctx context.Context, url, contentHash string) (storage.MarkResult, error) {
	res, err := s.client.RunScript(ctx, markSeenScript, []string{s.key(s.sets.DocMeta, url)}, url, contentHash).Int64Slice()
	if err != nil {
		return storage.MarkResult{}, fmt.Errorf("marking %s seen: %w", url, err)
	}
	if len(res) != 2 {
		return storage.MarkResult{}, fmt.Errorf("marking %s seen: unexpected script reply %v", url, res)
	}
	return storage.MarkResult{
		Unchanged:          res[0] == 1,
		PreviousChunkCount: int(res[1]),
	}, nil
}

func (s *Store) SetChunkCount(ctx context.Context, url string, count int) error {
	if err := s.client.HSet(ctx, s.key(s.sets.DocMeta, url), map[string]any{"chunks": count}); err != nil {
		return fmt.Errorf("setting chunk count of %s: %w", url, err)
	}
	return nil
}

func (s *Store) SetInactive(ctx context.Context, url string) error {
	if err := s.client.HSet(ctx, s.key(s.sets.DocMeta, url), map[string]any{"active": 0}); err != nil {
		return fmt.Errorf("resetting active flag of %s: %w", url, err)
	}
	return nil
}

func (s *Store) DeleteMeta(ctx context.Context, url string) error {
	if err := s.client.Del(ctx, s.key(s.sets.DocMeta, url)); err != nil {
		return fmt.Errorf("deleting meta of %s: %w", url, err)
	}
	return nil
}

func (s *Store) ScanMeta(ctx context.Context, fn func(meta storage.DocumentMeta) error) error {
	prefix := s.prefix(s.sets.DocMeta)
	return s.client.ScanKeys(ctx, prefix+"*", func(keys []string) error {
		records, err := s.hgetAll(ctx, keys)
		if err != nil {
			return err
		}
		for i, fields := range records {
			if len(fields) == 0 {
				continue
			}
			meta := decodeMeta(strings.TrimPrefix(keys[i], prefix), fields)
			if err := fn(meta); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ResetMeta(ctx context.Context, chunkCounts map[string]int) error {
	if len(chunkCounts) == 0 {
		return nil
	}
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for url, count := range chunkCounts {
			p.HSet(ctx, s.key(s.sets.DocMeta, url), map[string]any{
				"url":    url,
				"chunks": count,
				"active": 0,
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("resetting %d meta records: %w", len(chunkCounts), err)
	}
	return nil
}

func decodeMeta(url string, fields map[string]string) storage.DocumentMeta {
	meta := storage.DocumentMeta{
		URL:         url,
		ContentHash: fields["doc_hash"],
		Active:      fields["active"] == "1",
	}
	if v, ok := fields["url"]; ok && v != "" {
		meta.URL = v
	}
	meta.ChunkCount, _ = strconv.Atoi(fields["chunks"])
	return meta
}

func (s *Store) PutChunks(ctx context.Context, chunks []storage.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, c := range chunks {
			p.HSet(ctx, s.key(s.sets.Documents, c.ID), map[string]any{
				"url":        c.URL,
				"title":      c.Title,
				"desc":       c.Description,
				"content":    c.Content,
				"cat":        c.Category,
				"num_tokens": c.NumTokens,
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing %d chunks: %w", len(chunks), err)
	}
	return nil
}

func (s *Store) GetChunks(ctx context.Context, ids []string) (map[string]storage.Chunk, error) {
	out := make(map[string]storage.Chunk, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(s.sets.Documents, id)
	}
	records, err := s.hgetAll(ctx, keys)
	if err != nil {
		return nil, err
	}
	for i, fields := range records {
		if len(fields) == 0 {
			continue
		}
		out[ids[i]] = decodeChunk(ids[i], fields)
	}
	return out, nil
}

func decodeChunk(id string, fields map[string]string) storage.Chunk {
	c := storage.Chunk{
		ID:          id,
		URL:         fields["url"],
		Title:       fields["title"],
		Description: fields["desc"],
		Content:     fields["content"],
		Category:    fields["cat"],
	}
	c.NumTokens, _ = strconv.Atoi(fields["num_tokens"])
	return c
}

func (s *Store) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(s.sets.Documents, id)
	}
	if err := s.client.Del(ctx, keys...); err != nil {
		return fmt.Errorf("deleting %d chunks: %w", len(ids), err)
	}
	return nil
}

func (s *Store) ChunksExist(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cmds := make([]*redis.IntCmd, len(ids))
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.Exists(ctx, s.key(s.sets.Documents, id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("checking %d chunks: %w", len(ids), err)
	}
	for i, cmd := range cmds {
		out[ids[i]] = cmd.Val() > 0
	}
	return out, nil
}

func (s *Store) ScanChunks(ctx context.Context, keysOnly bool, fn func(chunk storage.Chunk) error) error {
	prefix := s.prefix(s.sets.Documents)
	return s.client.ScanKeys(ctx, prefix+"*", func(keys []string) error {
		if keysOnly {
			for _, k := range keys {
				if err := fn(storage.Chunk{ID: strings.TrimPrefix(k, prefix)}); err != nil {
					return err
				}
			}
			return nil
		}
		records, err := s.hgetAll(ctx, keys)
		if err != nil {
			return err
		}
		for i, fields := range records {
			if len(fields) == 0 {
				continue
			}
			if err := fn(decodeChunk(strings.TrimPrefix(keys[i], prefix), fields)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) MergePostings(ctx context.Context, term string, postings map[string]index.Posting) error {
	if len(postings) == 0 {
		return nil
	}
	fields := make(map[string]any, len(postings))
	for chunkID, p := range postings {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding posting %s/%s: %w", term, chunkID, err)
		}
		fields[chunkID] = data
	}
	if err := s.client.HSet(ctx, s.key(s.sets.Keywords, term), fields); err != nil {
		return fmt.Errorf("merging postings of %q: %w", term, err)
	}
	return nil
}

func (s *Store) GetPostings(ctx context.Context, terms []string) (index.TermPostings, error) {
	out := make(index.TermPostings, len(terms))
	if len(terms) == 0 {
		return out, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(terms))
	_, pipeErr := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, term := range terms {
			cmds[i] = p.HGetAll(ctx, s.key(s.sets.Keywords, term))
		}
		return nil
	})

	var failed []string
	var lastErr error
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		// A connection failure fails the whole pipeline but can leave the
		// individual commands without an error of their own.
		if err == nil && pipeErr != nil {
			err = pipeErr
		}
		if err != nil {
			failed = append(failed, terms[i])
			lastErr = err
			continue
		}
		if len(fields) == 0 {
			continue
		}
		out[terms[i]] = s.decodePostings(terms[i], fields)
	}
	switch {
	case len(failed) == len(terms):
		return nil, fmt.Errorf("reading postings of %d terms: %w", len(terms), lastErr)
	case len(failed) > 0:
		s.logger.Warn("partial posting read", "failed_terms", failed, "error", lastErr)
		return out, fmt.Errorf("reading postings of %v: %w: %w", failed, storage.ErrPartialBatch, lastErr)
	}
	return out, nil
}

func (s *Store) decodePostings(term string, fields map[string]string) map[string]index.Posting {
	postings := make(map[string]index.Posting, len(fields))
	for chunkID, raw := range fields {
		var p index.Posting
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			s.logger.Warn("skipping corrupt posting", "term", term, "chunk_id", chunkID, "error", err)
			continue
		}
		postings[chunkID] = p
	}
	return postings
}

func (s *Store) RemovePostings(ctx context.Context, chunkIDs []string) (int, error) {
	if len(chunkIDs) == 0 {
		return 0, nil
	}
	var removed int
	err := s.client.ScanKeys(ctx, s.prefix(s.sets.Keywords)+"*", func(keys []string) error {
		cmds := make([]*redis.IntCmd, len(keys))
		_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
			for i, k := range keys {
				cmds[i] = p.HDel(ctx, k, chunkIDs...)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("removing postings from %d terms: %w", len(keys), err)
		}
		for _, cmd := range cmds {
			removed += int(cmd.Val())
		}
		return nil
	})
	return removed, err
}

func (s *Store) ScanTerms(ctx context.Context, fn func(term string, postings map[string]index.Posting) error) error {
	prefix := s.prefix(s.sets.Keywords)
	return s.client.ScanKeys(ctx, prefix+"*", func(keys []string) error {
		records, err := s.hgetAll(ctx, keys)
		if err != nil {
			return err
		}
		for i, fields := range records {
			term := strings.TrimPrefix(keys[i], prefix)
			if err := fn(term, s.decodePostings(term, fields)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) DeleteTerm(ctx context.Context, term string) error {
	if err := s.client.Del(ctx, s.key(s.sets.Keywords, term)); err != nil {
		return fmt.Errorf("deleting term %q: %w", term, err)
	}
	return nil
}

func (s *Store) GetTotals(ctx context.Context) (storage.Totals, error) {
	fields, err := s.client.HGetAll(ctx, s.key(s.sets.Totals, totalsID))
	if err != nil {
		return storage.Totals{}, fmt.Errorf("reading totals: %w", err)
	}
	var t storage.Totals
	t.Docs, _ = strconv.ParseInt(fields["docs"], 10, 64)
	t.Tokens, _ = strconv.ParseInt(fields["tokens"], 10, 64)
	return t, nil
}

func (s *Store) PutTotals(ctx context.Context, totals storage.Totals) error {
	err := s.client.HSet(ctx, s.key(s.sets.Totals, totalsID), map[string]any{
		"docs":   totals.Docs,
		"tokens": totals.Tokens,
	})
	if err != nil {
		return fmt.Errorf("writing totals: %w", err)
	}
	return nil
}

func (s *Store) GetEmbedding(ctx context.Context, query string) ([]float32, bool, error) {
	raw, err := s.client.Get(ctx, s.key(s.sets.QueryCache, query))
	if err != nil {
		if redisclient.IsNilError(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading cached embedding: %w", err)
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		s.logger.Warn("dropping corrupt cached embedding", "query", query, "error", err)
		return nil, false, nil
	}
	return vec, true, nil
}

func (s *Store) PutEmbedding(ctx context.Context, query string, vec []float32) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("encoding embedding: %w", err)
	}
	if err := s.client.Set(ctx, s.key(s.sets.QueryCache, query), data, 0); err != nil {
		return fmt.Errorf("caching embedding: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *Store) Close() error {
	return s.client.Close()
}

// hgetAll reads several hashes in one round trip. Missing keys yield empty
// maps at their index.
func (s *Store) hgetAll(ctx context.Context, keys []string) ([]map[string]string, error) {
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = p.HGetAll(ctx, k)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading %d hashes: %w", len(keys), err)
	}
	out := make([]map[string]string, len(cmds))
	for i, cmd := range cmds {
		out[i] = cmd.Val()
	}
	return out, nil
}
