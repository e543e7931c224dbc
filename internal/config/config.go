package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the packaging parameters for a single run.
type Config struct {
	// Mode is the build profile subdirectory under TargetRoot that
	// contains the frontend binaries (e.g. "release").
	Mode string `yaml:"mode"`
	// ArchiveName is the payload directory name and the base filename
	// of both output archives.
	ArchiveName string `yaml:"archive_name"`
	// TargetRoot is the directory holding per-mode build output.
	TargetRoot string `yaml:"target_root"`
	// ExtrasDir is the directory whose top-level files are bundled
	// alongside the binaries.
	ExtrasDir string `yaml:"extras_dir"`
	// OutputDir is where the finished archives are placed.
	OutputDir string `yaml:"output_dir"`
	// WriteManifest enables the checksum manifest next to the archives.
	// It is a per-run switch and is not persisted to YAML.
	WriteManifest bool `yaml:"-"`
}

const (
	// DefaultConfigFilename is the default filename for packaging settings.
	DefaultConfigFilename = "organ-packager-settings.yaml"

	// DefaultTargetRoot is where the build step leaves per-mode binaries.
	DefaultTargetRoot = "target"

	// DefaultExtrasDir holds the auxiliary files shipped with every archive.
	DefaultExtrasDir = "extras/unix"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errModeRequired is returned when the build mode is missing.
	errModeRequired = errors.New("build mode must be provided (--mode flag or MODE environment variable)")
	// errArchiveNameRequired is returned when the archive name is missing.
	errArchiveNameRequired = errors.New(
		"archive name must be provided (--archive-name flag or ARCHIVE_NAME environment variable)")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided configuration for required fields
// and fills defaults for the optional directories.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.Mode == "" {
		return errModeRequired
	}

	if cfg.ArchiveName == "" {
		return errArchiveNameRequired
	}

	// Mode and archive name are used as single path elements; a separator
	// would silently relocate the payload or the source lookup.
	if strings.ContainsAny(cfg.Mode, `/\`) {
		return fmt.Errorf("build mode %q must not contain path separators", cfg.Mode)
	}

	if strings.ContainsAny(cfg.ArchiveName, `/\`) {
		return fmt.Errorf("archive name %q must not contain path separators", cfg.ArchiveName)
	}

	if cfg.TargetRoot == "" {
		cfg.TargetRoot = DefaultTargetRoot
	}

	if cfg.ExtrasDir == "" {
		cfg.ExtrasDir = DefaultExtrasDir
	}

	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}

	return nil
}

// BinariesDir returns the directory containing the frontend binaries
// for the configured mode.
func (c *Config) BinariesDir() string {
	return filepath.Join(c.TargetRoot, c.Mode)
}
