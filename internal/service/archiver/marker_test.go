package archiver

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/electric-organ/packager/internal/config"
)

func markerConfig(dir string) *config.Config {
	return &config.Config{
		Mode:        "release",
		ArchiveName: "organ",
		OutputDir:   dir,
	}
}

// TestAcquireMarkerRoundtrip claims and releases the marker.
func TestAcquireMarkerRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	release, err := acquireMarker(ctx, markerConfig(dir))
	require.NoError(t, err)

	path := filepath.Join(dir, "organ"+markerSuffix)
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), string(contents))

	release()

	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestAcquireMarkerLiveOwner rejects a marker held by a running process.
func TestAcquireMarkerLiveOwner(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "organ"+markerSuffix)

	// PID 1 is always alive.
	require.NoError(t, os.WriteFile(path, []byte("1"), markerFileMode))

	_, err := acquireMarker(context.Background(), markerConfig(dir))
	require.ErrorIs(t, err, errPackagingInProgress)
}

// TestAcquireMarkerReclaimsDeadOwner removes a marker whose process is gone.
func TestAcquireMarkerReclaimsDeadOwner(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "organ"+markerSuffix)

	// Far beyond any real pid_max.
	require.NoError(t, os.WriteFile(path, []byte("99999999"), markerFileMode))

	release, err := acquireMarker(context.Background(), markerConfig(dir))
	require.NoError(t, err)

	release()
}
