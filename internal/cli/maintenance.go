package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var outputJSON bool

var createIndexCmd = &cobra.Command{
	Use:   "create-index",
	Short: "Create the vector index if it does not exist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.backends.Vectors.CreateIndex(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "vector index %q ready (%d dimensions, cosine)\n",
			a.cfg.Vector.Index, a.cfg.Vector.Dimensions)
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove documents not seen since the previous sweep",
	Long: `Removes every document whose active flag was not set since the previous
sweep, together with its chunks, postings and vectors, and resets the flag of
the others. Run it only after every page of a crawl has been indexed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
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
		report, err := a.lifecycle.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		if _, err := a.lifecycle.RecomputeTotals(cmd.Context()); err != nil {
			return err
		}
		if report.Skipped {
			return printResult(cmd.OutOrStdout(), report, "no document was seen since the last sweep; nothing removed (%d documents)\n", report.Scanned)
		}
		return printResult(cmd.OutOrStdout(), report, "scanned %d, reset %d, removed %d documents (%d chunks), %d failures\n",
			report.Scanned, report.Reset, report.Removed, report.ChunksDeleted, report.Failures)
	},
}

var totalsCmd = &cobra.Command{
	Use:   "totals",
	Short: "Recompute corpus totals used by BM25",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		totals, err := a.lifecycle.RecomputeTotals(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), totals, "docs: %d\ntokens: %d\n", totals.Docs, totals.Tokens)
	},
}

var syncMetaCmd = &cobra.Command{
	Use:   "sync-meta",
	Short: "Rebuild document meta from the stored chunks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
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
		n, err := a.lifecycle.SyncMeta(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), map[string]int{"documents": n}, "document meta rebuilt for %d documents\n", n)
	},
}

var syncKeywordsCmd = &cobra.Command{
	Use:   "sync-keywords",
	Short: "Remove postings that reference missing chunks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
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
		report, err := a.lifecycle.SyncKeywords(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), report, "terms %d, orphan chunks %d, postings removed %d, terms deleted %d\n",
			report.Terms, report.OrphanChunks, report.PostingsRemoved, report.TermsDeleted)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print results as JSON")
	rootCmd.AddCommand(createIndexCmd, sweepCmd, totalsCmd, syncMetaCmd, syncKeywordsCmd)
}

// printResult writes v as JSON with --json and the formatted text otherwise.
func printResult(w io.Writer, v any, format string, args ...any) error {
	if outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
