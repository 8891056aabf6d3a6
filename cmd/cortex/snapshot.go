package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cerr "cortex/internal/errors"

	"cortex/internal/store"
)

var (
	exportOut string
	importIn  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the local store as a compressed snapshot",
	Long:  "Writes the symbol store and a manifest into a zstd-compressed tar archive.",
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Restore the local store from a snapshot",
	Long:  "Replaces the local store with the contents of a snapshot produced by 'cortex export'.",
	RunE:  runImport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "cortex-snapshot.tar.zst", "Snapshot file to write")
	importCmd.Flags().StringVarP(&importIn, "in", "i", "", "Snapshot file to read")
	importCmd.MarkFlagRequired("in")
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(true)
	if err != nil {
		return err
	}
	defer e.close()

	f, err := os.Create(exportOut)
	if err != nil {
		return cerr.New(cerr.Storage, "create snapshot file", err)
	}
	defer f.Close()

	manifest, err := e.store.Export(cmd.Context(), f)
	if err != nil {
		os.Remove(exportOut)
		return err
	}

	fmt.Printf("Exported %d symbols, %d summaries, %d embeddings to %s\n",
		manifest.Symbols, manifest.Summaries, manifest.Embeddings, exportOut)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	root, err := os.Getwd()
	if err != nil {
		return cerr.New(cerr.InternalError, "resolve working directory", err)
	}

	f, err := os.Open(importIn)
	if err != nil {
		return cerr.New(cerr.Storage, "open snapshot file", err)
	}
	defer f.Close()

	manifest, err := store.ImportSnapshot(root, f)
	if err != nil {
		return err
	}

	fmt.Printf("Imported %d symbols, %d summaries, %d embeddings from %s\n",
		manifest.Symbols, manifest.Summaries, manifest.Embeddings, importIn)
	return nil
}
