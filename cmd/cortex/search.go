package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	cerr "cortex/internal/errors"

	"cortex/internal/search"
)

var (
	searchMode  string
	searchLimit int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed symbols",
	Long: `Searches the local store. Modes:

  lexical   full-text match on names and paths
  semantic  nearest stored embeddings to the query embedding
  hybrid    both, fused with reciprocal rank fusion

Semantic and hybrid fall back to lexical with an explicit reason when
embeddings are unavailable.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchMode, "mode", "lexical", "Search mode: lexical, semantic, or hybrid")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum number of results (1-100)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Emit the full result envelope as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	mode := search.Mode(searchMode)
	switch mode {
	case search.ModeLexical, search.ModeSemantic, search.ModeHybrid:
	default:
		return cerr.Newf(cerr.Validation, "unknown search mode %q", searchMode)
	}

	e, err := loadEnv(false)
	if err != nil {
		return err
	}
	defer e.close()

	eng, err := newSearchEngine(e)
	if err != nil {
		return err
	}

	env, err := eng.Search(cmd.Context(), strings.Join(args, " "), mode, searchLimit)
	if err != nil {
		return err
	}

	if searchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(env)
	}

	if env.FallbackReason != "" {
		fmt.Printf("note: %s mode unavailable (%s), showing %s results\n",
			env.ModeRequested, env.FallbackReason, env.ModeUsed)
	}
	if len(env.Matches) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for i, m := range env.Matches {
		fmt.Printf("%2d. %-40s %s:%s (%.3f)\n", i+1, m.QualifiedName, m.FilePath, m.Kind, m.Score)
		if m.Summary != "" {
			fmt.Printf("    %s\n", m.Summary)
		}
	}
	return nil
}
