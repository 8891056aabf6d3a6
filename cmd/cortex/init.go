package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	cerr "cortex/internal/errors"

	"cortex/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize cortex in the current directory",
	Long:  "Creates a .cortex/ directory with a default config.toml in the current project root",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Rewrite configuration even if it already exists")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := os.Getwd()
	if err != nil {
		return cerr.New(cerr.InternalError, "resolve working directory", err)
	}

	configPath := filepath.Join(root, config.Dir, "config.toml")
	if _, statErr := os.Stat(configPath); statErr == nil && !initForce {
		// Re-running init is a no-op so CI setup scripts stay simple.
		fmt.Println("cortex already initialized.")
		fmt.Printf("Configuration at: %s\n", configPath)
		fmt.Println("\nRun 'cortex init --force' to rewrite the default configuration.")
		return nil
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(root); err != nil {
		return err
	}

	fmt.Println("cortex initialized.")
	fmt.Printf("Configuration written to: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Run 'cortex index' to build the symbol store")
	fmt.Println("  2. Run 'cortex search <query>' to query it")
	return nil
}
