package cli

import (
	"fmt"

	"github.com/aerospike-examples/hybrid-search/internal/searcher"
	"github.com/aerospike-examples/hybrid-search/internal/searcher/assembler"
	"github.com/spf13/cobra"
)

var (
	searchType     string
	searchPage     int
	searchPageSize int
	searchFilters  string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Query the index",
	Long: `Runs a query the way the search service does. The default hybrid type
fuses BM25 keyword ranking with semantic vector search.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchType, "type", "t", "hybrid", "search type (hybrid, vector, keyword)")
	searchCmd.Flags().IntVar(&searchPage, "page", 0, "0-based result page")
	searchCmd.Flags().IntVarP(&searchPageSize, "page-size", "n", 10, "results per page")
	searchCmd.Flags().StringVar(&searchFilters, "filters", "", "comma-separated categories to keep")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	st, err := searcher.ParseSearchType(searchType)
	if err != nil {
		return err
	}
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.searchService().Search(cmd.Context(), searcher.Request{
		Query:    args[0],
		Type:     st,
		Page:     searchPage,
		PageSize: searchPageSize,
		Filters:  assembler.ParseFilters(searchFilters),
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return printResult(out, resp, "")
	}
	if len(resp.Results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}
	fmt.Fprintf(out, "%d documents, page %d of %d (%.1f ms)\n\n", resp.Count, resp.Page+1, resp.NPages, resp.Time["total"])
	for i, r := range resp.Results {
		fmt.Fprintf(out, "  [%d] %s\n", searchPage*searchPageSize+i+1, r.Title)
		fmt.Fprintf(out, "      %s", r.URL)
		if r.Category != "" {
			fmt.Fprintf(out, " (%s)", r.Category)
		}
		fmt.Fprintln(out)
		if len(r.Clients) > 0 {
			fmt.Fprintf(out, "      clients: %v\n", r.Clients)
		}
	}
	return nil
}
