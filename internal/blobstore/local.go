package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Local stores blobs as plain files on the local filesystem. Paths are
// absolute or relative to the process working directory, exactly as the
// blog configuration names them.
type Local struct{}

// NewLocal returns a filesystem-backed store.
func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Read(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func (l *Local) Write(_ context.Context, path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (l *Local) List(_ context.Context, path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", path, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(path, entry.Name()))
	}
	return paths, nil
}

// LastModified stats path. For a directory it reports the newest child
// file, since a touched post should make the whole blog look newer.
func (l *Local) LastModified(ctx context.Context, path string) (time.Time, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("stat %s: %w", path, err)
	}

	if !info.IsDir() {
		return info.ModTime().UTC(), nil
	}

	newest := info.ModTime()
	children, err := l.List(ctx, path)
	if err != nil {
		return time.Time{}, err
	}
	for _, child := range children {
		ci, err := os.Stat(child)
		if err != nil {
			continue
		}
		if ci.ModTime().After(newest) {
			newest = ci.ModTime()
		}
	}
	return newest.UTC(), nil
}
