package archiver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/electric-organ/packager/internal/config"
	"github.com/electric-organ/packager/internal/logger"
)

const (
	// markerSuffix names the per-archive marker file in the output directory.
	markerSuffix = ".packaging-marker"

	// markerLifetime is the period after which a marker without a live
	// owner process is considered abandoned even if the PID is unreadable.
	markerLifetime = 10 * time.Minute

	// markerFileMode restricts the marker to the owning user.
	markerFileMode os.FileMode = 0o600
)

// errPackagingInProgress indicates another run is already producing the same archive.
var errPackagingInProgress = errors.New("packaging already in progress for this archive name")

// acquireMarker claims the per-archive-name marker in the output directory.
// Two runs moving archives with the same name into the same directory would
// interleave their writes; the marker turns that race into an error. The
// returned release function removes the marker.
func acquireMarker(ctx context.Context, cfg *config.Config) (func(), error) {
	path := filepath.Join(cfg.OutputDir, cfg.ArchiveName+markerSuffix)

	if err := reclaimStaleMarker(ctx, path); err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), markerFileMode); err != nil {
		return nil, fmt.Errorf("write packaging marker: %w", err)
	}

	release := func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.WarnKV(ctx, "Failed to remove packaging marker", "path", path, "error", err)
		}
	}

	return release, nil
}

// reclaimStaleMarker removes a leftover marker whose owning process is gone.
// A marker with a live owner aborts the run.
func reclaimStaleMarker(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("stat packaging marker: %w", err)
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read packaging marker: %w", err)
	}

	pid, parseErr := strconv.Atoi(strings.TrimSpace(string(contents)))
	if parseErr != nil {
		// Unreadable owner; fall back to age.
		if time.Since(info.ModTime()) <= markerLifetime {
			return fmt.Errorf("%w: %s", errPackagingInProgress, path)
		}
	} else if pid != os.Getpid() {
		process, findErr := ps.FindProcess(pid)
		if findErr != nil {
			return fmt.Errorf("inspect marker owner: %w", findErr)
		}

		if process != nil {
			return fmt.Errorf("%w: held by pid %d", errPackagingInProgress, pid)
		}
	}

	logger.InfoKV(ctx, "Reclaiming abandoned packaging marker", "path", path)

	if err = os.Remove(path); err != nil {
		return fmt.Errorf("remove stale marker: %w", err)
	}

	return nil
}
