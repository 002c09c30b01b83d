package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// SaveSnapshot writes the full registry to path as a zstd-compressed export
// document. The write is atomic — temp file then rename — so a crash mid-write
// can never leave a partial snapshot where a loader would see it.
func (r *Registry) SaveSnapshot(ctx context.Context, path string) error {
	data, err := r.Export(ctx)
	if err != nil {
		return fmt.Errorf("SaveSnapshot: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("SaveSnapshot: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	enc, err := zstd.NewWriter(tmp)
	if err != nil {
		return fmt.Errorf("SaveSnapshot: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return fmt.Errorf("SaveSnapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("SaveSnapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("SaveSnapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("SaveSnapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("SaveSnapshot: %w", err)
	}
	return nil
}

// LoadSnapshot restores entries from a snapshot file into the store. A
// missing file is not an error: the registry simply starts empty.
func (r *Registry) LoadSnapshot(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("LoadSnapshot: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("LoadSnapshot: %w", err)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return 0, fmt.Errorf("LoadSnapshot: %w", err)
	}

	entries, err := decodeEntries(data)
	if err != nil {
		return 0, fmt.Errorf("LoadSnapshot: %w", err)
	}
	for _, e := range entries {
		if err := r.store.Put(ctx, Key(e.Command), e); err != nil {
			return 0, fmt.Errorf("LoadSnapshot: %w", err)
		}
	}
	return len(entries), nil
}
