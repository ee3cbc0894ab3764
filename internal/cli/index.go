package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aerospike-examples/hybrid-search/internal/indexer"
	"github.com/spf13/cobra"
)

const maxLineSize = 16 << 20

var (
	indexSweep     bool
	indexBatchSize int
)

var indexCmd = &cobra.Command{
	Use:   "index [file.jsonl]",
	Short: "Index pages from a JSONL file",
	Long: `Indexes one crawled page per line ({"url", "title", "desc", "body"}) on the
worker pool, then recomputes the corpus totals. With --sweep the file is
treated as a complete crawl: documents missing from it are removed.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexSweep, "sweep", false, "sweep documents not present in the file")
	indexCmd.Flags().IntVar(&indexBatchSize, "batch-size", 200, "pages submitted to the worker pool at a time")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening %s: %w", args[0], err)
	}
	defer f.Close()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	unlock, err := lockMaintenance(a.cfg)
	if err != nil {
		return err
	}
	defer unlock()
	engine, err := a.engine()
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := cmd.Context()
	if err := a.backends.Vectors.CreateIndex(ctx); err != nil {
		return err
	}

	var (
		total indexer.BatchResult
		batch []indexer.Page
	)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		summary, _ := engine.IndexBatch(ctx, batch)
		total.Indexed += summary.Indexed
		total.Unchanged += summary.Unchanged
		total.Ignored += summary.Ignored
		total.Failed += summary.Failed
		batch = batch[:0]
	}
	err = readPages(f, func(p indexer.Page) {
		batch = append(batch, p)
		if len(batch) >= indexBatchSize {
			flush()
		}
	})
	if err != nil {
		return err
	}
	flush()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "indexed %d, unchanged %d, ignored %d, failed %d\n",
		total.Indexed, total.Unchanged, total.Ignored, total.Failed)

	if indexSweep {
		report, err := engine.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "swept: removed %d documents (%d chunks)\n", report.Removed, report.ChunksDeleted)
	}
	totals, err := a.lifecycle.RecomputeTotals(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "corpus: %d chunks, %d tokens\n", totals.Docs, totals.Tokens)
	if total.Failed > 0 {
		return fmt.Errorf("%d pages failed to index", total.Failed)
	}
	return nil
}

// readPages decodes one page per non-empty line.
func readPages(r io.Reader, fn func(indexer.Page)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var p indexer.Page
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if p.URL == "" {
			return fmt.Errorf("line %d: url is required", line)
		}
		fn(p)
	}
	return scanner.Err()
}
