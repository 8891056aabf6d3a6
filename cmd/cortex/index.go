package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"cortex/internal/core"
	"cortex/internal/extract"
	"cortex/internal/identity"
	"cortex/internal/pipeline"
	"cortex/internal/store"
	"cortex/internal/watch"
)

var indexScipPath string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the current directory into the local store",
	Long: `Walks the project, extracts symbols from eligible source files, and
enriches new or changed symbols. Unchanged symbols are never re-sent to
a provider. With --scip, definitions are imported from an existing SCIP
index instead of parsing sources.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexScipPath, "scip", "", "Import symbols from a SCIP index file instead of parsing sources")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(true)
	if err != nil {
		return err
	}
	defer e.close()

	p, err := newPipeline(e)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	start := time.Now()

	var total pipeline.Stats
	if indexScipPath != "" {
		err = importSCIP(ctx, e, p, indexScipPath, &total)
	} else {
		err = indexTree(ctx, e, p, &total)
	}
	if err != nil {
		return err
	}

	if err := e.store.SetMeta(ctx, store.MetaLastIndexedAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}

	fmt.Printf("Indexed in %s: %d upserted, %d enriched, %d skipped, %d removed, %d failed\n",
		time.Since(start).Round(time.Millisecond),
		total.Upserted, total.Enriched, total.Skipped, total.Removed, total.Failed)
	return nil
}

// indexTree walks the project, processes every eligible file, and
// retires symbols of files that no longer exist.
func indexTree(ctx context.Context, e *env, p *pipeline.Pipeline, total *pipeline.Stats) error {
	ex := extract.New(e.langs)
	seen := make(map[string]bool)

	err := filepath.Walk(e.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(e.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if rel != "." && watch.Ignored(e.cfg.Watch.IgnorePatterns, rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if watch.Ignored(e.cfg.Watch.IgnorePatterns, rel) {
			return nil
		}
		if _, ok := e.langs.Detect(rel); !ok {
			return nil
		}
		if max := e.cfg.Watch.MaxFileSize; max > 0 && info.Size() > max {
			e.logger.Info("skipping oversized file", map[string]interface{}{
				"path":    rel,
				"size":    info.Size(),
				"maxSize": max,
			})
			return nil
		}

		src, readErr := os.ReadFile(path)
		if readErr != nil {
			e.logger.Warn("skipping unreadable file", map[string]interface{}{
				"path":  rel,
				"error": readErr.Error(),
			})
			return nil
		}

		seen[identity.NormalizePath(rel)] = true
		stats, procErr := p.ProcessFile(ctx, ex, rel, src)
		if procErr != nil {
			e.logger.Warn("file failed to index", map[string]interface{}{
				"path":  rel,
				"error": procErr.Error(),
			})
			return nil
		}
		mergeStats(total, stats)
		return nil
	})
	if err != nil {
		return err
	}

	// Files that were indexed before but are gone now.
	indexed, err := e.store.ListFiles(ctx)
	if err != nil {
		return err
	}
	for _, rel := range indexed {
		if seen[rel] {
			continue
		}
		stats, err := p.ProcessRemovedFile(ctx, rel)
		if err != nil {
			return err
		}
		mergeStats(total, stats)
	}
	return nil
}

// importSCIP feeds definitions from a SCIP index through the normal
// change-set path, so enrichment and caching behave as for parsed code.
func importSCIP(ctx context.Context, e *env, p *pipeline.Pipeline, path string, total *pipeline.Stats) error {
	byFile, err := extract.LoadSCIP(path, e.langs)
	if err != nil {
		return err
	}

	for rel, syms := range byFile {
		previous, err := e.store.ListSymbolsForFile(ctx, identity.NormalizePath(rel))
		if err != nil {
			return err
		}
		lang := core.LangUnknown
		if len(syms) > 0 {
			lang = syms[0].Language
		}
		cs := identity.Diff(identity.NormalizePath(rel), lang, previous, syms)
		stats, err := p.ProcessChangeSet(ctx, cs)
		if err != nil {
			return err
		}
		mergeStats(total, stats)
	}

	e.logger.Info("SCIP import complete", map[string]interface{}{
		"path":  path,
		"files": len(byFile),
	})
	return nil
}

func mergeStats(total, part *pipeline.Stats) {
	total.Upserted += part.Upserted
	total.Removed += part.Removed
	total.Enriched += part.Enriched
	total.Skipped += part.Skipped
	total.Failed += part.Failed
}
