package archiver

import (
	"context"
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/electric-organ/packager/internal/logger"
	"github.com/electric-organ/packager/internal/version"

	// Ensure SHA512 available for checksum calculation.
	_ "crypto/sha512"
)

const (
	// ManifestSuffix names the optional checksum manifest written next to the archives.
	ManifestSuffix = ".checksums.yaml"

	// DefaultChecksumFunction is used to calculate archive hashes.
	DefaultChecksumFunction crypto.Hash = crypto.SHA512

	// manifestFileMode matches the distribution artifacts.
	manifestFileMode os.FileMode = 0o644
)

var errHashUnavailable = errors.New("hash function unavailable")

// Manifest describes the produced archives for release verification.
type Manifest struct {
	// VersionNumber is the packager version that produced the archives.
	VersionNumber string `yaml:"version"`
	// Files maps archive filenames to their base64-encoded checksums.
	Files map[string]string `yaml:"files"`
}

// writeManifest hashes both finished archives and writes the manifest into
// the output directory.
func (a *archiver) writeManifest(ctx context.Context) error {
	manifest := &Manifest{
		VersionNumber: version.Short(),
		Files:         make(map[string]string, 2),
	}

	for _, suffix := range []string{zipSuffix, tarSuffix} {
		name := a.cfg.ArchiveName + suffix

		checksum, err := fileChecksum(filepath.Join(a.cfg.OutputDir, name))
		if err != nil {
			return err
		}

		manifest.Files[name] = base64.StdEncoding.EncodeToString(checksum)
	}

	contents, err := yaml.Marshal(manifest)
	if err != nil {
		return err
	}

	path := filepath.Join(a.cfg.OutputDir, a.cfg.ArchiveName+ManifestSuffix)
	if err = os.WriteFile(path, contents, manifestFileMode); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Wrote checksum manifest", "path", path)

	return nil
}

// fileChecksum streams a file through DefaultChecksumFunction and returns the digest.
func fileChecksum(path string) ([]byte, error) {
	if !DefaultChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	// Best-effort cleanup.
	defer func() {
		_ = file.Close()
	}()

	hasher := DefaultChecksumFunction.New()
	if _, err = io.Copy(hasher, file); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}
