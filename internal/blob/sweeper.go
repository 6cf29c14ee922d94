package blob

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sumire/tracker/internal/metrics"
)

// Sweep deletes blobs that are not in referenced and were last modified
// before cutoff. Leftover temp files older than cutoff go too. It returns the
// number of files removed.
func (s *Store) Sweep(ctx context.Context, referenced map[string]bool, cutoff time.Time) (int, error) {
	removed := 0
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if referenced[rel] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", rel, err)
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("sweep %s: %w", s.dir, err)
	}
	return removed, nil
}

// TextSource yields stored rich text containing marker.
type TextSource interface {
	Containing(ctx context.Context, marker string) ([]string, error)
}

// Sweeper periodically removes blobs no longer referenced by any issue
// description or comment body. It runs as a supervised service.
type Sweeper struct {
	store    *Store
	source   TextSource
	interval time.Duration
	grace    time.Duration
	now      func() time.Time
}

// NewSweeper creates a Sweeper. Blobs younger than grace are kept so that
// images written for an in-flight request survive until it commits.
func NewSweeper(store *Store, source TextSource, interval, grace time.Duration) *Sweeper {
	return &Sweeper{store: store, source: source, interval: interval, grace: grace, now: time.Now}
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	texts, err := s.source.Containing(ctx, URLPrefix)
	if err != nil {
		return 0, fmt.Errorf("load references: %w", err)
	}
	removed, err := s.store.Sweep(ctx, References(texts...), s.now().Add(-s.grace))
	metrics.BlobsSwept.Add(float64(removed))
	return removed, err
}

// Serve implements suture.Service.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			removed, err := s.RunOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Error("blob sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("blob sweep finished", "removed", removed)
			}
		}
	}
}

func (s *Sweeper) String() string {
	return "blob-sweeper"
}

