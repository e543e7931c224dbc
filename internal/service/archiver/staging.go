package archiver

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/electric-organ/packager/internal/logger"
)

const (
	// payloadDirMode is the permission for the payload directory itself.
	payloadDirMode os.FileMode = 0o755
)

// stageExtras copies the top-level files of the extras directory into the
// payload. Subdirectories are skipped; a file that would shadow one of the
// renamed binaries aborts the run.
func (a *archiver) stageExtras(ctx context.Context, payload string) error {
	entries, err := os.ReadDir(a.cfg.ExtrasDir)
	if err != nil {
		return fmt.Errorf("read extras directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			logger.DebugKV(ctx, "Skipping extras subdirectory", "name", entry.Name())
			continue
		}

		name := entry.Name()
		if name == graphicalTargetName || name == terminalTargetName {
			return fmt.Errorf("extras file %q collides with a packaged binary name", name)
		}

		source := filepath.Join(a.cfg.ExtrasDir, name)
		if err = copyFile(source, filepath.Join(payload, name)); err != nil {
			return err
		}
	}

	return nil
}

// copyFile copies a regular file, carrying over the source's permission bits.
func copyFile(source, destination string) error {
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("stat %s: %w", source, err)
	}

	in, err := os.Open(filepath.Clean(source))
	if err != nil {
		return fmt.Errorf("open %s: %w", source, err)
	}

	// Best-effort cleanup.
	defer func() {
		_ = in.Close()
	}()

	out, err := os.OpenFile(filepath.Clean(destination), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", destination, err)
	}

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()

		return fmt.Errorf("copy %s: %w", source, err)
	}

	if err = out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", destination, err)
	}

	return nil
}

// moveFile renames a file into place, falling back to copy-and-remove when
// source and destination live on different filesystems. An existing
// destination is overwritten.
func moveFile(source, destination string) error {
	if err := os.Rename(source, destination); err == nil {
		return nil
	}

	if err := copyFile(source, destination); err != nil {
		return err
	}

	return os.Remove(source)
}
