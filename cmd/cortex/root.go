package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	cerr "cortex/internal/errors"

	"cortex/internal/config"
	"cortex/internal/extract"
	"cortex/internal/logging"
	"cortex/internal/store"
	"cortex/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "cortex",
	Short: "cortex - incremental symbol intelligence for codebases",
	Long: `cortex watches a codebase, extracts symbols with stable identities,
enriches changed symbols with provider-generated summaries, and serves
lexical, semantic, and hybrid search over the result.`,
	Version: version.Info(),
}

func init() {
	rootCmd.SetVersionTemplate("cortex version {{.Version}}\n")
}

// env bundles everything a command needs against one project root.
type env struct {
	root   string
	cfg    *config.Config
	logger *logging.Logger
	store  *store.Store
	langs  *extract.LanguageMap
}

// loadEnv resolves the project root and configuration. The store is
// opened only when requireStore is set or already initialized on disk.
func loadEnv(requireStore bool) (*env, error) {
	root, err := os.Getwd()
	if err != nil {
		return nil, cerr.New(cerr.InternalError, "resolve working directory", err)
	}

	cfg, err := config.LoadConfig(root)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(logging.Config{
		Format: logging.Format(cfg.Logging.Format),
		Level:  logging.LogLevel(cfg.Logging.Level),
	})

	langs := extract.DefaultLanguages()
	if err := langs.LoadOverrides(root); err != nil {
		logger.Warn("ignoring invalid language overrides", map[string]interface{}{
			"error": err.Error(),
		})
	}

	e := &env{root: root, cfg: cfg, logger: logger, langs: langs}

	if requireStore || initialized(root) {
		st, err := store.Open(root, cfg, logger)
		if err != nil {
			return nil, err
		}
		e.store = st
	}
	return e, nil
}

func (e *env) close() {
	if e.store != nil {
		e.store.Close()
	}
}

// initialized reports whether a local store exists under root.
func initialized(root string) bool {
	_, err := os.Stat(filepath.Join(root, config.Dir, store.DBFile))
	return err == nil
}
