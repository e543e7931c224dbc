package integration

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"crypto/sha512"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/electric-organ/packager/internal/service/archiver"
)

const (
	testMode        = "release"
	testArchiveName = "electric-organ-test"
)

// setupFixtures builds a minimal project tree (build output plus extras) in a
// fresh directory and makes it the working directory.
func setupFixtures(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		require.NoError(t, os.Chdir(prev))
	})

	binaries := filepath.Join("target", testMode)
	require.NoError(t, os.MkdirAll(binaries, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(binaries, "frontend_wgpu"), []byte("graphical binary"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(binaries, "frontend_ansi_terminal"), []byte("terminal binary"), 0o755))

	extras := filepath.Join("extras", "unix")
	require.NoError(t, os.MkdirAll(extras, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(extras, "play.sh"), []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(extras, "README.md"), []byte("# electric organ\n"), 0o644))

	return dir
}

// runPackager executes a packaging run with a timeout context.
func runPackager(t *testing.T, opts *archiver.Options) error {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return archiver.Run(ctx, opts)
}

func defaultOptions() *archiver.Options {
	return &archiver.Options{
		Mode:        testMode,
		ArchiveName: testArchiveName,
	}
}

// TestPackager_ProducesArchives verifies both archives appear in the working
// directory and carry a single top-level payload directory with the renamed
// binaries and every extras file.
func TestPackager_ProducesArchives(t *testing.T) {
	setupFixtures(t)

	require.NoError(t, runPackager(t, defaultOptions()))

	wantMembers := []string{
		testArchiveName + "/",
		testArchiveName + "/README.md",
		testArchiveName + "/electric-organ-graphical",
		testArchiveName + "/electric-organ-terminal",
		testArchiveName + "/play.sh",
	}

	// Zip contents.
	zipReader, err := zip.OpenReader(testArchiveName + ".zip")
	require.NoError(t, err)

	defer func() {
		_ = zipReader.Close()
	}()

	zipMembers := make([]string, 0, len(zipReader.File))

	for _, member := range zipReader.File {
		zipMembers = append(zipMembers, member.Name)

		switch member.Name {
		case testArchiveName + "/electric-organ-graphical",
			testArchiveName + "/electric-organ-terminal",
			testArchiveName + "/play.sh":
			require.Equal(t, os.FileMode(0o755), member.Mode().Perm(), member.Name)
		}
	}

	sort.Strings(zipMembers)
	require.Equal(t, wantMembers, zipMembers)

	// The binary content survives packaging byte for byte.
	graphical, err := zipReader.Open(testArchiveName + "/electric-organ-graphical")
	require.NoError(t, err)

	contents, err := io.ReadAll(graphical)
	require.NoError(t, err)
	require.Equal(t, []byte("graphical binary"), contents)
	require.NoError(t, graphical.Close())

	// Tar contents: same member list, same modes.
	tarFile, err := os.Open(testArchiveName + ".tar.gz")
	require.NoError(t, err)

	defer func() {
		_ = tarFile.Close()
	}()

	tarMembers := make([]string, 0, len(wantMembers))
	reader := tar.NewReader(tarFile)

	for {
		header, readErr := reader.Next()
		if readErr == io.EOF {
			break
		}

		require.NoError(t, readErr)
		tarMembers = append(tarMembers, header.Name)

		if header.Name == testArchiveName+"/electric-organ-terminal" {
			require.Equal(t, int64(0o755), header.Mode&0o777)
		}
	}

	sort.Strings(tarMembers)
	require.Equal(t, wantMembers, tarMembers)

	// No marker is left behind.
	_, err = os.Stat(testArchiveName + ".packaging-marker")
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestPackager_TarIsNotGzipped pins the historical quirk: the .tar.gz output
// is a plain tar stream.
func TestPackager_TarIsNotGzipped(t *testing.T) {
	setupFixtures(t)

	require.NoError(t, runPackager(t, defaultOptions()))

	tarFile, err := os.Open(testArchiveName + ".tar.gz")
	require.NoError(t, err)

	defer func() {
		_ = tarFile.Close()
	}()

	_, err = gzip.NewReader(tarFile)
	require.Error(t, err)
}

// TestPackager_MissingBinaryFails aborts without producing output when a
// frontend binary is absent.
func TestPackager_MissingBinaryFails(t *testing.T) {
	setupFixtures(t)

	require.NoError(t, os.Remove(filepath.Join("target", testMode, "frontend_ansi_terminal")))

	err := runPackager(t, defaultOptions())
	require.Error(t, err)
	require.ErrorIs(t, err, os.ErrNotExist)

	for _, name := range []string{testArchiveName + ".zip", testArchiveName + ".tar.gz"} {
		_, statErr := os.Stat(name)
		require.ErrorIs(t, statErr, os.ErrNotExist, name)
	}
}

// TestPackager_MissingModeFails rejects an empty mode before touching the filesystem.
func TestPackager_MissingModeFails(t *testing.T) {
	setupFixtures(t)

	opts := defaultOptions()
	opts.Mode = ""

	err := runPackager(t, opts)
	require.Error(t, err)
	require.Contains(t, err.Error(), "build mode")

	_, statErr := os.Stat(testArchiveName + ".zip")
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

// TestPackager_CleansStaging verifies no staging directory survives a run,
// successful or failed.
func TestPackager_CleansStaging(t *testing.T) {
	setupFixtures(t)

	stagingRoot := filepath.Join(t.TempDir(), "staging-root")
	require.NoError(t, os.Mkdir(stagingRoot, 0o755))
	t.Setenv("TMPDIR", stagingRoot)

	// Success case.
	require.NoError(t, runPackager(t, defaultOptions()))

	entries, err := os.ReadDir(stagingRoot)
	require.NoError(t, err)
	require.Empty(t, entries)

	// Failure case: extras directory removed after the binaries are in place.
	require.NoError(t, os.RemoveAll("extras"))
	require.Error(t, runPackager(t, defaultOptions()))

	entries, err = os.ReadDir(stagingRoot)
	require.NoError(t, err)
	require.Empty(t, entries)
}

// TestPackager_ExtrasCollisionFails rejects an extras file named like a
// packaged binary.
func TestPackager_ExtrasCollisionFails(t *testing.T) {
	setupFixtures(t)

	collision := filepath.Join("extras", "unix", "electric-organ-terminal")
	require.NoError(t, os.WriteFile(collision, []byte("imposter"), 0o644))

	err := runPackager(t, defaultOptions())
	require.Error(t, err)
	require.Contains(t, err.Error(), "electric-organ-terminal")

	_, statErr := os.Stat(testArchiveName + ".zip")
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

// TestPackager_MarkerBlocksConcurrentRun fails fast when another live process
// holds the marker, and reclaims markers from dead processes.
func TestPackager_MarkerBlocksConcurrentRun(t *testing.T) {
	setupFixtures(t)

	marker := testArchiveName + ".packaging-marker"

	// PID 1 is always alive.
	require.NoError(t, os.WriteFile(marker, []byte("1"), 0o600))

	err := runPackager(t, defaultOptions())
	require.Error(t, err)
	require.Contains(t, err.Error(), "in progress")

	// A dead owner is reclaimed and the run proceeds.
	require.NoError(t, os.WriteFile(marker, []byte("99999999"), 0o600))
	require.NoError(t, runPackager(t, defaultOptions()))
}

// TestPackager_OverwritesExistingArchives replaces stale outputs of the same name.
func TestPackager_OverwritesExistingArchives(t *testing.T) {
	setupFixtures(t)

	require.NoError(t, os.WriteFile(testArchiveName+".zip", []byte("not a zip"), 0o644))
	require.NoError(t, os.WriteFile(testArchiveName+".tar.gz", []byte("not a tar"), 0o644))

	require.NoError(t, runPackager(t, defaultOptions()))

	zipReader, err := zip.OpenReader(testArchiveName + ".zip")
	require.NoError(t, err)
	require.NoError(t, zipReader.Close())
}

// TestPackager_WritesManifest checks the optional checksum manifest against
// independently computed digests.
func TestPackager_WritesManifest(t *testing.T) {
	setupFixtures(t)

	opts := defaultOptions()
	opts.WriteManifest = true

	require.NoError(t, runPackager(t, opts))

	contents, err := os.ReadFile(testArchiveName + archiver.ManifestSuffix)
	require.NoError(t, err)

	var manifest archiver.Manifest
	require.NoError(t, yaml.Unmarshal(contents, &manifest))
	require.NotEmpty(t, manifest.VersionNumber)
	require.Len(t, manifest.Files, 2)

	for _, name := range []string{testArchiveName + ".zip", testArchiveName + ".tar.gz"} {
		data, readErr := os.ReadFile(name)
		require.NoError(t, readErr)

		digest := sha512.Sum512(data)
		require.Equal(t, base64.StdEncoding.EncodeToString(digest[:]), manifest.Files[name], name)
	}
}

// TestPackager_Idempotent runs twice and expects identical member lists.
func TestPackager_Idempotent(t *testing.T) {
	setupFixtures(t)

	memberList := func() []string {
		zipReader, err := zip.OpenReader(testArchiveName + ".zip")
		require.NoError(t, err)

		defer func() {
			_ = zipReader.Close()
		}()

		names := make([]string, 0, len(zipReader.File))
		for _, member := range zipReader.File {
			names = append(names, member.Name)
		}

		sort.Strings(names)

		return names
	}

	require.NoError(t, runPackager(t, defaultOptions()))
	first := memberList()

	require.NoError(t, runPackager(t, defaultOptions()))
	require.Equal(t, first, memberList())
}
