package staging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultSweepInterval = 15 * time.Minute

	// DefaultStaleAfter only applies to directories no live request holds.
	// Attachments of a slow relay stay on disk until Remove releases them.
	DefaultStaleAfter = time.Hour
)

// StartSweeper removes request directories older than staleAfter on every
// tick until ctx is done. It catches uploads orphaned by a crash between
// staging and cleanup.
func (store *Store) StartSweeper(ctx context.Context, interval time.Duration, staleAfter time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	sweepTicker := time.NewTicker(interval)
	defer sweepTicker.Stop()

	store.logger.Info("Starting staging sweeper", "directory", store.rootDir, "interval", interval.String(), "stale_after", staleAfter.String())
	for {
		select {
		case <-ctx.Done():
			store.logger.Info("Staging sweeper shutting down")
			return
		case <-sweepTicker.C:
			removed, err := store.SweepStale(time.Now().Add(-staleAfter))
			if err != nil {
				store.logger.Error("Staging sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				store.logger.Info("staging_sweep_completed", "removed", removed)
			}
		}
	}
}

// SweepStale deletes request directories last modified before cutoff and
// returns how many were removed. Directories still in flight are skipped.
func (store *Store) SweepStale(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(store.rootDir)
	if err != nil {
		return 0, fmt.Errorf("staging: read %s: %w", store.rootDir, err)
	}
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, infoErr := entry.Info()
		if infoErr != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) || store.isInFlight(entry.Name()) {
			continue
		}
		stalePath := filepath.Join(store.rootDir, entry.Name())
		if removeErr := os.RemoveAll(stalePath); removeErr != nil {
			store.logger.Error("staging_sweep_remove_failed", "directory", stalePath, "error", removeErr)
			continue
		}
		removed++
	}
	return removed, nil
}
