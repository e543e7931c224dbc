package archiver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/electric-organ/packager/internal/config"
	"github.com/electric-organ/packager/internal/logger"
)

// Options contains inputs for the packager entry point.
type Options struct {
	// ConfigPath is an optional path to a saved settings file; flags and
	// environment values override anything loaded from it.
	ConfigPath string
	// Mode is the build profile whose binaries get packaged.
	Mode string
	// ArchiveName is the payload directory and archive base name.
	ArchiveName string
	// TargetRoot overrides the build output root (default "target").
	TargetRoot string
	// ExtrasDir overrides the auxiliary file directory (default "extras/unix").
	ExtrasDir string
	// OutputDir overrides where archives are placed (default the working directory).
	OutputDir string
	// WriteManifest requests a checksum manifest next to the archives.
	WriteManifest bool
}

// Distribution names inside the payload. The sources are what the build
// step emits under target/<mode>/; the targets are what ships.
const (
	graphicalSourceName = "frontend_wgpu"
	terminalSourceName  = "frontend_ansi_terminal"

	graphicalTargetName = "electric-organ-graphical"
	terminalTargetName  = "electric-organ-terminal"
)

// archiver carries the validated configuration through one packaging run.
// It is unexported—callers should use Run, which encapsulates setup and validation.
type archiver struct {
	cfg *config.Config
}

// Run executes the packaging workflow.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "organ-packager")

	cfg, err := resolveConfig(opts)
	if err != nil {
		return err
	}

	release, err := acquireMarker(ctx, cfg)
	if err != nil {
		return err
	}
	defer release()

	arch := &archiver{cfg: cfg}

	if err = arch.Run(ctx); err != nil {
		return fmt.Errorf("packaging failed: %w", err)
	}

	logger.InfoKV(ctx, "Packaging completed successfully",
		"zip", cfg.ArchiveName+zipSuffix, "tar", cfg.ArchiveName+tarSuffix)

	return nil
}

// resolveConfig merges an optional settings file with explicit options and
// validates the result before any filesystem work starts.
func resolveConfig(opts *Options) (*config.Config, error) {
	cfg := new(config.Config)

	if opts.ConfigPath != "" {
		if _, err := os.Stat(opts.ConfigPath); err == nil {
			loaded, loadErr := config.Load(opts.ConfigPath)
			if loadErr != nil {
				return nil, fmt.Errorf("load settings: %w", loadErr)
			}

			cfg = loaded
		}
	}

	if opts.Mode != "" {
		cfg.Mode = opts.Mode
	}

	if opts.ArchiveName != "" {
		cfg.ArchiveName = opts.ArchiveName
	}

	if opts.TargetRoot != "" {
		cfg.TargetRoot = opts.TargetRoot
	}

	if opts.ExtrasDir != "" {
		cfg.ExtrasDir = opts.ExtrasDir
	}

	if opts.OutputDir != "" {
		cfg.OutputDir = opts.OutputDir
	}

	cfg.WriteManifest = opts.WriteManifest

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Run stages the payload, builds both archives in the staging directory and
// only then moves them into the output directory.
func (a *archiver) Run(ctx context.Context) error {
	staging, err := os.MkdirTemp("", "organ-packager-")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}

	// The staging directory goes away on every exit path.
	defer func() {
		if removeErr := os.RemoveAll(staging); removeErr != nil {
			logger.WarnKV(ctx, "Failed to remove staging directory",
				"path", staging, "error", removeErr)
		}
	}()

	logger.DebugKV(ctx, "Created staging directory", "path", staging)

	payload := filepath.Join(staging, a.cfg.ArchiveName)
	if err = os.Mkdir(payload, payloadDirMode); err != nil {
		return fmt.Errorf("create payload directory: %w", err)
	}

	if err = a.stagePayload(ctx, payload); err != nil {
		return err
	}

	// The payload is complete from here on; both archives snapshot the
	// same unchanging directory.
	zipPath := filepath.Join(staging, a.cfg.ArchiveName+zipSuffix)
	if err = buildZip(ctx, staging, a.cfg.ArchiveName, zipPath); err != nil {
		return fmt.Errorf("build zip archive: %w", err)
	}

	tarPath := filepath.Join(staging, a.cfg.ArchiveName+tarSuffix)
	if err = buildTar(ctx, staging, a.cfg.ArchiveName, tarPath); err != nil {
		return fmt.Errorf("build tar archive: %w", err)
	}

	for _, archivePath := range []string{zipPath, tarPath} {
		destination := filepath.Join(a.cfg.OutputDir, filepath.Base(archivePath))
		if err = moveFile(archivePath, destination); err != nil {
			return fmt.Errorf("move %s: %w", filepath.Base(archivePath), err)
		}

		logger.InfoKV(ctx, "Archive ready", "path", destination)
	}

	if a.cfg.WriteManifest {
		if err = a.writeManifest(ctx); err != nil {
			return fmt.Errorf("write checksum manifest: %w", err)
		}
	}

	return nil
}

// stagePayload copies the renamed binaries and the extras into the payload directory.
func (a *archiver) stagePayload(ctx context.Context, payload string) error {
	binaries := a.cfg.BinariesDir()

	logger.InfoKV(ctx, "Staging frontend binaries", "source", binaries)

	sources := map[string]string{
		graphicalSourceName: graphicalTargetName,
		terminalSourceName:  terminalTargetName,
	}

	for _, sourceName := range []string{graphicalSourceName, terminalSourceName} {
		source := filepath.Join(binaries, sourceName)
		if _, err := os.Stat(source); errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w (build mode %q)", source, os.ErrNotExist, a.cfg.Mode)
		} else if err != nil {
			return fmt.Errorf("stat %s: %w", source, err)
		}

		if err := copyFile(source, filepath.Join(payload, sources[sourceName])); err != nil {
			return err
		}
	}

	logger.InfoKV(ctx, "Staging extras", "source", a.cfg.ExtrasDir)

	return a.stageExtras(ctx, payload)
}
