package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	cerr "cortex/internal/errors"

	"cortex/internal/core"
	"cortex/internal/sir"
)

var symbolJSON bool

var symbolCmd = &cobra.Command{
	Use:   "symbol <id-or-qualified-name>",
	Short: "Show one symbol with its summary and enrichment state",
	Args:  cobra.ExactArgs(1),
	RunE:  runSymbol,
}

func init() {
	symbolCmd.Flags().BoolVar(&symbolJSON, "json", false, "Emit the symbol record as JSON")
	rootCmd.AddCommand(symbolCmd)
}

type symbolView struct {
	Symbol  core.Symbol `json:"symbol"`
	Summary *sir.SIR    `json:"summary,omitempty"`
	Meta    *sir.Meta   `json:"meta,omitempty"`
}

func runSymbol(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(true)
	if err != nil {
		return err
	}
	defer e.close()

	ctx := cmd.Context()
	ref := args[0]

	sym, err := e.store.GetSymbol(ctx, ref)
	if err != nil {
		if !strings.HasPrefix(ref, "sym:") {
			// Fall back to a qualified-name lookup.
			candidates, searchErr := e.store.SearchLexical(ctx, ref, 10)
			if searchErr != nil {
				return searchErr
			}
			for i := range candidates {
				if candidates[i].QualifiedName == ref {
					sym = &candidates[i]
					break
				}
			}
		}
		if sym == nil {
			return cerr.Newf(cerr.SymbolNotFound, "no symbol matches %q", ref)
		}
	}

	view := symbolView{Symbol: *sym}
	if summary, err := e.store.ReadSIR(ctx, sym.ID); err == nil {
		view.Summary = summary
	}
	if meta, err := e.store.GetSIRMeta(ctx, sym.ID); err == nil {
		view.Meta = meta
	}

	if symbolJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	fmt.Printf("%s\n", sym.QualifiedName)
	fmt.Printf("  id:        %s\n", sym.ID)
	fmt.Printf("  kind:      %s (%s)\n", sym.Kind, sym.Language)
	fmt.Printf("  location:  %s:%d-%d\n", sym.FilePath, sym.StartLine, sym.EndLine)
	fmt.Printf("  signature: %s\n", sym.Signature)

	if view.Summary != nil {
		fmt.Printf("\n  intent: %s\n", view.Summary.Intent)
		if len(view.Summary.SideEffects) > 0 {
			fmt.Printf("  side effects: %s\n", strings.Join(view.Summary.SideEffects, ", "))
		}
		fmt.Printf("  confidence: %.2f\n", view.Summary.Confidence)
	}
	if view.Meta != nil {
		fmt.Printf("\n  enrichment: %s via %s/%s at %s\n",
			view.Meta.Status, view.Meta.Provider, view.Meta.Model, view.Meta.UpdatedAt)
		if view.Meta.LastError != "" {
			fmt.Printf("  last error: %s\n", view.Meta.LastError)
		}
	}
	return nil
}
