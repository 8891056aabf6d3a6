package store

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"cortex/internal/config"
	cerr "cortex/internal/errors"
)

// SnapshotManifest describes an exported snapshot
type SnapshotManifest struct {
	Version    int    `yaml:"version"`
	CreatedAt  string `yaml:"created_at"`
	Symbols    int    `yaml:"symbols"`
	Summaries  int    `yaml:"summaries"`
	Embeddings int    `yaml:"embeddings"`
}

// Export writes a zstd-compressed tar snapshot of the database plus a yaml
// manifest. The WAL is checkpointed first so the single database file is
// complete.
func (s *Store) Export(ctx context.Context, w io.Writer) (*SnapshotManifest, error) {
	if _, err := s.conn.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return nil, cerr.New(cerr.Storage, "failed to checkpoint WAL", err)
	}

	symbols, err := s.CountSymbols(ctx)
	if err != nil {
		return nil, err
	}
	var summaries int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sir_blobs`).Scan(&summaries); err != nil {
		return nil, cerr.New(cerr.Storage, "failed to count summaries", err)
	}
	var embeddings int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&embeddings); err != nil {
		return nil, cerr.New(cerr.Storage, "failed to count embeddings", err)
	}

	manifest := &SnapshotManifest{
		Version:    schemaVersion,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		Symbols:    symbols,
		Summaries:  summaries,
		Embeddings: embeddings,
	}
	manifestData, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, cerr.New(cerr.InternalError, "failed to encode manifest", err)
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return nil, cerr.New(cerr.InternalError, "failed to create compressor", err)
	}
	tw := tar.NewWriter(zw)

	if err := writeTarFile(tw, "manifest.yaml", manifestData); err != nil {
		return nil, err
	}
	dbData, err := os.ReadFile(filepath.Join(s.dir, DBFile))
	if err != nil {
		return nil, cerr.New(cerr.Storage, "failed to read database file", err)
	}
	if err := writeTarFile(tw, DBFile, dbData); err != nil {
		return nil, err
	}

	if err := tw.Close(); err != nil {
		return nil, cerr.New(cerr.Storage, "failed to finalize archive", err)
	}
	if err := zw.Close(); err != nil {
		return nil, cerr.New(cerr.Storage, "failed to finalize compression", err)
	}
	return manifest, nil
}

// ImportSnapshot restores a snapshot into the state directory. The target
// database must not be open; callers import before Open.
func ImportSnapshot(root string, r io.Reader) (*SnapshotManifest, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, cerr.New(cerr.Storage, "failed to open compressed snapshot", err)
	}
	defer zr.Close()

	dir := filepath.Join(root, config.Dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, cerr.New(cerr.Storage, "failed to create state directory", err)
	}

	var manifest *SnapshotManifest
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, cerr.New(cerr.Storage, "corrupt snapshot archive", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, cerr.New(cerr.Storage, "failed to read snapshot entry", err)
		}
		switch hdr.Name {
		case "manifest.yaml":
			var m SnapshotManifest
			if err := yaml.Unmarshal(data, &m); err != nil {
				return nil, cerr.New(cerr.Storage, "corrupt snapshot manifest", err)
			}
			manifest = &m
		case DBFile:
			if err := os.WriteFile(filepath.Join(dir, DBFile), data, 0o644); err != nil {
				return nil, cerr.New(cerr.Storage, "failed to restore database", err)
			}
		}
	}
	if manifest == nil {
		return nil, cerr.Newf(cerr.Storage, "snapshot carries no manifest")
	}
	return manifest, nil
}

func writeTarFile(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return cerr.New(cerr.Storage, "failed to write archive header", err)
	}
	if _, err := tw.Write(data); err != nil {
		return cerr.New(cerr.Storage, "failed to write archive entry", err)
	}
	return nil
}
