package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cortex/internal/extract"
	"cortex/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the current directory and index changes continuously",
	Long: `Watches the project for source file changes. Edits are debounced per
file, then extracted, diffed, and enriched. Ctrl-C stops the watcher.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(true)
	if err != nil {
		return err
	}
	defer e.close()

	p, err := newPipeline(e)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	ex := extract.New(e.langs)
	handler := func(changed []string, removed []string) {
		for _, rel := range changed {
			src, err := os.ReadFile(filepath.Join(e.root, rel))
			if err != nil {
				e.logger.Warn("changed file unreadable", map[string]interface{}{
					"path":  rel,
					"error": err.Error(),
				})
				continue
			}
			stats, err := p.ProcessFile(ctx, ex, rel, src)
			if err != nil {
				e.logger.Warn("file failed to index", map[string]interface{}{
					"path":  rel,
					"error": err.Error(),
				})
				continue
			}
			if stats.Upserted > 0 || stats.Removed > 0 {
				e.logger.Info("indexed", map[string]interface{}{
					"path":     rel,
					"upserted": stats.Upserted,
					"enriched": stats.Enriched,
					"removed":  stats.Removed,
				})
			}
		}
		for _, rel := range removed {
			stats, err := p.ProcessRemovedFile(ctx, rel)
			if err != nil {
				e.logger.Warn("file removal failed", map[string]interface{}{
					"path":  rel,
					"error": err.Error(),
				})
				continue
			}
			if stats.Removed > 0 {
				e.logger.Info("file removed", map[string]interface{}{
					"path":    rel,
					"removed": stats.Removed,
				})
			}
		}
	}

	w, err := watch.New(e.root, e.cfg.Watch.DebounceMs, e.cfg.Watch.MaxFileSize, e.cfg.Watch.IgnorePatterns, e.langs, e.logger, handler)
	if err != nil {
		return err
	}
	defer w.Close()

	// Catch up on edits made while no watcher was running.
	if err := w.Seed(time.Now()); err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}

	fmt.Println("Watching for changes. Press Ctrl-C to stop.")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}

	fmt.Println("Stopping watcher.")
	return nil
}
