package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aerospike-examples/hybrid-search/internal/indexer/index"
	"github.com/aerospike-examples/hybrid-search/internal/storage"
	"github.com/aerospike-examples/hybrid-search/pkg/metrics"
)

// SweepReport summarises one mark-and-sweep pass.
type SweepReport struct {
	Scanned       int  `json:"scanned"`
	Reset         int  `json:"reset"`
	Removed       int  `json:"removed"`
	ChunksDeleted int  `json:"chunksDeleted"`
	Failures      int  `json:"failures"`
	Skipped       bool `json:"skipped"`
}

// Manager owns the per-document lifecycle: change detection on crawl,
// mark-and-sweep of documents that disappeared, and cascade deletion of their
// chunks from the document store, the postings and the vector index.
type Manager struct {
	store   storage.Store
	vectors storage.VectorIndex
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewManager wires the lifecycle manager. m may be nil.
func NewManager(store storage.Store, vectors storage.VectorIndex, m *metrics.Metrics) *Manager {
	return &Manager{
		store:   store,
		vectors: vectors,
		metrics: m,
		logger:  slog.Default().With("component", "lifecycle"),
	}
}

// ContentHash fingerprints everything that feeds a document's index entries.
func ContentHash(url, title, desc, body string) string {
	sum := sha256.Sum256([]byte(url + "\n" + title + "\n" + desc + "\n" + body))
	return hex.EncodeToString(sum[:])
}

// ProcessDocument marks url as seen in the current crawl and reports whether
// its content changed since it was last indexed. previousChunkCount is the
// chunk count recorded by the last successful index of url.
func (m *Manager) ProcessDocument(ctx context.Context, url, title, desc, body string) (shouldIndex bool, previousChunkCount int, err error) {
	res, err := m.store.MarkSeen(ctx, url, ContentHash(url, title, desc, body))
	if err != nil {
		m.countDoc("failed")
		return false, 0, fmt.Errorf("processing document %s: %w", url, err)
	}
	if res.Unchanged {
		m.countDoc("unchanged")
		m.logger.Debug("document unchanged, skipping", "url", url)
		return false, res.PreviousChunkCount, nil
	}
	m.logger.Info("new or changed document", "url", url, "previous_chunks", res.PreviousChunkCount)
	return true, res.PreviousChunkCount, nil
}

// Sweep removes every document not seen since the previous sweep and resets
// the seen flag of the others. It must only run once all documents of the
// crawl have been processed; a document still being processed would be
// removed.
//
// When no document was seen since the previous sweep nothing is removed, so
// back-to-back sweeps are harmless.
func (m *Manager) Sweep(ctx context.Context) (SweepReport, error) {
	var (
		report SweepReport
		metas  []storage.DocumentMeta
		active int
	)
	err := m.store.ScanMeta(ctx, func(meta storage.DocumentMeta) error {
		metas = append(metas, meta)
		if meta.Active {
			active++
		}
		return nil
	})
	if err != nil {
		m.countSweep("failed")
		return report, fmt.Errorf("scanning document meta: %w", err)
	}
	report.Scanned = len(metas)
	if len(metas) > 0 && active == 0 {
		m.logger.Warn("no document was seen since the last sweep, skipping removal",
			"documents", len(metas),
		)
		report.Skipped = true
		m.countSweep("skipped")
		return report, nil
	}

	var doomed []string
	for _, meta := range metas {
		if err := ctx.Err(); err != nil {
			m.countSweep("failed")
			return report, err
		}
		if meta.Active {
			if err := m.store.SetInactive(ctx, meta.URL); err != nil {
				m.logger.Error("resetting active flag failed", "url", meta.URL, "error", err)
				report.Failures++
				continue
			}
			report.Reset++
			continue
		}
		if err := m.store.DeleteMeta(ctx, meta.URL); err != nil {
			m.logger.Error("deleting stale document meta failed", "url", meta.URL, "error", err)
			report.Failures++
			continue
		}
		m.logger.Info("removing stale document", "url", meta.URL, "chunks", meta.ChunkCount)
		report.Removed++
		doomed = append(doomed, index.ChunkIDs(meta.URL, 0, meta.ChunkCount)...)
	}

	deleted, failures := m.cascadeDelete(ctx, doomed, "sweep")
	report.ChunksDeleted = deleted
	report.Failures += failures
	status := "ok"
	if report.Failures > 0 {
		status = "partial"
	}
	m.countSweep(status)
	m.logger.Info("sweep complete",
		"scanned", report.Scanned,
		"reset", report.Reset,
		"removed", report.Removed,
		"chunks_deleted", report.ChunksDeleted,
		"failures", report.Failures,
	)
	return report, nil
}

// CleanupExcessChunks deletes chunks [newCount, oldCount) of url after the
// document was re-indexed into fewer chunks. It returns the number of chunk
// ids it attempted to delete.
func (m *Manager) CleanupExcessChunks(ctx context.Context, url string, oldCount, newCount int) int {
	if newCount >= oldCount {
		return 0
	}
	ids := index.ChunkIDs(url, newCount, oldCount)
	m.logger.Info("removing excess chunks", "url", url, "old_count", oldCount, "new_count", newCount)
	deleted, _ := m.cascadeDelete(ctx, ids, "shrink")
	return deleted
}

// cascadeDelete removes chunk ids from the vector index, the postings and the
// document store. Each step is attempted even if an earlier one failed;
// failures are logged and counted but not retried.
func (m *Manager) cascadeDelete(ctx context.Context, ids []string, reason string) (deleted, failures int) {
	if len(ids) == 0 {
		return 0, 0
	}
	if err := m.vectors.Delete(ctx, ids); err != nil {
		failures++
		m.cascadeFailed("vector", ids, err)
	}
	removed, err := m.store.RemovePostings(ctx, ids)
	if err != nil {
		failures++
		m.cascadeFailed("postings", ids, err)
	}
	if err := m.store.DeleteChunks(ctx, ids); err != nil {
		failures++
		m.cascadeFailed("documents", ids, err)
	}
	if m.metrics != nil {
		m.metrics.ChunksDeletedTotal.WithLabelValues(reason).Add(float64(len(ids)))
	}
	m.logger.Debug("cascade delete", "reason", reason, "chunks", len(ids), "postings_removed", removed)
	return len(ids), failures
}

func (m *Manager) cascadeFailed(target string, ids []string, err error) {
	m.logger.Warn("cascade delete failed, entries may be orphaned",
		"target", target,
		"chunks", len(ids),
		"first_chunk", ids[0],
		"error", err,
	)
	if m.metrics != nil {
		m.metrics.CascadeFailuresTotal.WithLabelValues(target).Inc()
	}
}

// RecomputeTotals rebuilds the corpus totals from the chunk records.
func (m *Manager) RecomputeTotals(ctx context.Context) (storage.Totals, error) {
	var totals storage.Totals
	err := m.store.ScanChunks(ctx, false, func(c storage.Chunk) error {
		totals.Docs++
		totals.Tokens += int64(c.NumTokens)
		return nil
	})
	if err != nil {
		return storage.Totals{}, fmt.Errorf("scanning chunks: %w", err)
	}
	if err := m.store.PutTotals(ctx, totals); err != nil {
		return storage.Totals{}, err
	}
	if m.metrics != nil {
		m.metrics.CorpusDocs.Set(float64(totals.Docs))
		m.metrics.CorpusTokens.Set(float64(totals.Tokens))
	}
	m.logger.Info("corpus totals updated", "docs", totals.Docs, "tokens", totals.Tokens)
	return totals, nil
}

// SyncMeta rebuilds the chunk counts in doc_meta from the chunk records and
// clears every active flag. It restores a lost or damaged doc_meta collection;
// the next crawl then re-marks every live document.
func (m *Manager) SyncMeta(ctx context.Context) (int, error) {
	counts := make(map[string]int)
	err := m.store.ScanChunks(ctx, true, func(c storage.Chunk) error {
		counts[index.DocumentURL(c.ID)]++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scanning chunk keys: %w", err)
	}
	if err := m.store.ResetMeta(ctx, counts); err != nil {
		return 0, err
	}
	m.logger.Info("document meta resynced", "documents", len(counts))
	return len(counts), nil
}

// KeywordSyncReport summarises a SyncKeywords pass.
type KeywordSyncReport struct {
	Terms           int `json:"terms"`
	OrphanChunks    int `json:"orphanChunks"`
	PostingsRemoved int `json:"postingsRemoved"`
	TermsDeleted    int `json:"termsDeleted"`
}

// SyncKeywords removes postings that reference chunks missing from the
// document store, then drops term entries that were left empty. This is the
// reconciliation for orphans left by failed cascade deletes; sweeps never
// run it.
func (m *Manager) SyncKeywords(ctx context.Context) (KeywordSyncReport, error) {
	var (
		report    KeywordSyncReport
		known     = make(map[string]bool)
		orphans   = make(map[string]struct{})
		emptyTerm []string
	)
	err := m.store.ScanTerms(ctx, func(term string, postings map[string]index.Posting) error {
		report.Terms++
		var unknown []string
		for id := range postings {
			if _, seen := known[id]; !seen {
				unknown = append(unknown, id)
			}
		}
		if len(unknown) > 0 {
			exists, err := m.store.ChunksExist(ctx, unknown)
			if err != nil {
				return err
			}
			for _, id := range unknown {
				known[id] = exists[id]
			}
		}
		live := 0
		for id := range postings {
			if known[id] {
				live++
				continue
			}
			orphans[id] = struct{}{}
		}
		if live == 0 {
			emptyTerm = append(emptyTerm, term)
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("scanning terms: %w", err)
	}

	report.OrphanChunks = len(orphans)
	if len(orphans) > 0 {
		ids := make([]string, 0, len(orphans))
		for id := range orphans {
			ids = append(ids, id)
		}
		m.logger.Warn("orphaned postings found", "chunks", len(ids))
		removed, err := m.store.RemovePostings(ctx, ids)
		if err != nil {
			return report, fmt.Errorf("removing orphaned postings: %w", err)
		}
		report.PostingsRemoved = removed
	}

	var errs []error
	for _, term := range emptyTerm {
		if err := m.store.DeleteTerm(ctx, term); err != nil {
			errs = append(errs, err)
			continue
		}
		report.TermsDeleted++
	}
	m.logger.Info("keyword index resynced",
		"terms", report.Terms,
		"orphan_chunks", report.OrphanChunks,
		"postings_removed", report.PostingsRemoved,
		"terms_deleted", report.TermsDeleted,
	)
	return report, errors.Join(errs...)
}

func (m *Manager) countDoc(outcome string) {
	if m.metrics != nil {
		m.metrics.DocsProcessedTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Manager) countSweep(status string) {
	if m.metrics != nil {
		m.metrics.SweepsTotal.WithLabelValues(status).Inc()
	}
}
