package archiver

import (
	"archive/tar"
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/electric-organ/packager/internal/logger"
)

const (
	// zipSuffix and tarSuffix name the two produced archives.
	zipSuffix = ".zip"
	// The release script has always shipped an uncompressed tar under the
	// .tar.gz name; downstream tooling keys on the filename, so both the
	// suffix and the lack of compression are preserved.
	tarSuffix = ".tar.gz"
)

// buildZip writes a zip archive of the payload directory. Every entry is
// prefixed with the archive name so extraction yields a single top-level
// directory.
func buildZip(ctx context.Context, staging, archiveName, zipPath string) error {
	out, err := os.Create(filepath.Clean(zipPath))
	if err != nil {
		return fmt.Errorf("create %s: %w", zipPath, err)
	}

	writer := zip.NewWriter(out)

	count := 0
	err = walkPayload(staging, archiveName, func(entryName string, info fs.FileInfo, path string) error {
		header, headerErr := zip.FileInfoHeader(info)
		if headerErr != nil {
			return headerErr
		}

		header.Name = entryName
		if info.IsDir() {
			header.Name += "/"
		} else {
			header.Method = zip.Deflate
			count++
		}

		entry, entryErr := writer.CreateHeader(header)
		if entryErr != nil {
			return entryErr
		}

		if info.IsDir() {
			return nil
		}

		return writeFileContents(entry, path)
	})
	if err != nil {
		_ = writer.Close()
		_ = out.Close()

		return err
	}

	if err = writer.Close(); err != nil {
		_ = out.Close()

		return fmt.Errorf("finalize zip: %w", err)
	}

	if err = out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", zipPath, err)
	}

	logger.DebugKV(ctx, "Built zip archive", "path", zipPath, "files", count)

	return nil
}

// buildTar writes a tar archive of the payload directory with the same
// entry layout as the zip.
func buildTar(ctx context.Context, staging, archiveName, tarPath string) error {
	out, err := os.Create(filepath.Clean(tarPath))
	if err != nil {
		return fmt.Errorf("create %s: %w", tarPath, err)
	}

	writer := tar.NewWriter(out)

	count := 0
	err = walkPayload(staging, archiveName, func(entryName string, info fs.FileInfo, path string) error {
		header, headerErr := tar.FileInfoHeader(info, "")
		if headerErr != nil {
			return headerErr
		}

		header.Name = entryName
		if info.IsDir() {
			header.Name += "/"
		} else {
			count++
		}

		if writeErr := writer.WriteHeader(header); writeErr != nil {
			return writeErr
		}

		if info.IsDir() {
			return nil
		}

		return writeFileContents(writer, path)
	})
	if err != nil {
		_ = writer.Close()
		_ = out.Close()

		return err
	}

	if err = writer.Close(); err != nil {
		_ = out.Close()

		return fmt.Errorf("finalize tar: %w", err)
	}

	if err = out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tarPath, err)
	}

	logger.DebugKV(ctx, "Built tar archive", "path", tarPath, "files", count)

	return nil
}

// walkPayload visits the payload directory and its contents in lexical
// order, handing each visitor a slash-separated entry name rooted at the
// archive name.
func walkPayload(staging, archiveName string, visit func(entryName string, info fs.FileInfo, path string) error) error {
	payload := filepath.Join(staging, archiveName)

	return filepath.WalkDir(payload, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relative, err := filepath.Rel(staging, path)
		if err != nil {
			return err
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		return visit(filepath.ToSlash(relative), info, path)
	})
}

// writeFileContents streams a file into an archive entry writer.
func writeFileContents(destination io.Writer, path string) error {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	// Best-effort cleanup.
	defer func() {
		_ = file.Close()
	}()

	if _, err = io.Copy(destination, file); err != nil {
		return fmt.Errorf("archive %s: %w", path, err)
	}

	return nil
}
