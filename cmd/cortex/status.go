package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"cortex/internal/provider"
	"cortex/internal/sir"
	"cortex/internal/store"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store and enrichment status",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Emit status as JSON")
	rootCmd.AddCommand(statusCmd)
}

type statusView struct {
	Initialized    bool   `json:"initialized"`
	Symbols        int    `json:"symbols"`
	FreshSummaries int    `json:"freshSummaries"`
	StaleSummaries int    `json:"staleSummaries"`
	Embeddings     int    `json:"embeddings"`
	TokensUsed     int64  `json:"tokensUsedToday"`
	TokenBudget    int64  `json:"dailyTokenBudget"`
	LastIndexedAt  string `json:"lastIndexedAt,omitempty"`
	Provider       string `json:"provider"`
	Model          string `json:"model"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(false)
	if err != nil {
		return err
	}
	defer e.close()

	view := statusView{
		Provider:    e.cfg.Inference.Provider,
		Model:       e.cfg.Inference.Model,
		TokenBudget: e.cfg.Pipeline.DailyTokenBudget,
	}

	if e.store == nil {
		if statusJSON {
			return json.NewEncoder(os.Stdout).Encode(view)
		}
		fmt.Println("Not initialized. Run 'cortex init' then 'cortex index'.")
		return nil
	}
	view.Initialized = true

	ctx := cmd.Context()
	if view.Symbols, err = e.store.CountSymbols(ctx); err != nil {
		return err
	}
	if view.FreshSummaries, err = e.store.CountSIRByStatus(ctx, sir.StatusFresh); err != nil {
		return err
	}
	if view.StaleSummaries, err = e.store.CountSIRByStatus(ctx, sir.StatusStale); err != nil {
		return err
	}

	if emb, embErr := provider.NewEmbedder(e.cfg); embErr == nil && emb != nil {
		if view.Embeddings, err = e.store.CountEmbeddings(ctx, emb.Name(), emb.Model()); err != nil {
			return err
		}
	}

	day := time.Now().UTC().Format("2006-01-02")
	if view.TokensUsed, err = e.store.TokensUsed(ctx, day); err != nil {
		return err
	}
	view.LastIndexedAt, _ = e.store.GetMeta(ctx, store.MetaLastIndexedAt)

	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	fmt.Printf("Symbols:          %d\n", view.Symbols)
	fmt.Printf("Summaries:        %d fresh, %d stale\n", view.FreshSummaries, view.StaleSummaries)
	fmt.Printf("Embeddings:       %d\n", view.Embeddings)
	fmt.Printf("Tokens today:     %d / %d\n", view.TokensUsed, view.TokenBudget)
	fmt.Printf("Provider:         %s (%s)\n", view.Provider, view.Model)
	if view.LastIndexedAt != "" {
		fmt.Printf("Last indexed:     %s\n", view.LastIndexedAt)
	}
	return nil
}
