package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/electric-organ/packager/internal/config"
	"github.com/electric-organ/packager/internal/logger"
	"github.com/electric-organ/packager/internal/service/archiver"
	"github.com/electric-organ/packager/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// buildMode selects the target/<mode>/ directory holding the binaries.
	buildMode string
	// archiveName is the payload directory and archive base name.
	archiveName string
	// targetRoot, extrasDir and outputDir override the standard layout.
	targetRoot string
	extrasDir  string
	outputDir  string
	// writeManifest requests a checksum manifest next to the archives.
	writeManifest bool
	// logLevel sets the minimum level for console output.
	logLevel string

	// rootCmd represents the base command for building release archives.
	rootCmd = &cobra.Command{
		Use:   "organ-packager",
		Short: "Assemble electric-organ release archives from build artifacts.",
		Long: `Stages the graphical and terminal frontend binaries from target/<mode>/
under their distribution names together with the extras/unix/ files, then
produces <archive-name>.zip and <archive-name>.tar.gz in the output directory.

Mode and archive name are read from the --mode and --archive-name flags;
the MODE and ARCHIVE_NAME environment variables are honored as defaults so
existing CI invocations keep working.`,
		Args: cobra.NoArgs,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &archiver.Options{
				ConfigPath:    configPath,
				Mode:          buildMode,
				ArchiveName:   archiveName,
				TargetRoot:    targetRoot,
				ExtrasDir:     extrasDir,
				OutputDir:     outputDir,
				WriteManifest: writeManifest,
			}

			return archiver.Run(ctx, options)
		},
	}
)

// Execute runs the organ-packager CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&buildMode, "mode", "m", os.Getenv("MODE"), "build profile under target/ to package")
	rootCmd.Flags().
		StringVarP(&archiveName, "archive-name", "n", os.Getenv("ARCHIVE_NAME"), "base name for the payload directory and archives")
	rootCmd.Flags().StringVar(&targetRoot, "target-root", "", "build output root (default \"target\")")
	rootCmd.Flags().StringVar(&extrasDir, "extras-dir", "", "auxiliary files directory (default \"extras/unix\")")
	rootCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "where to place the archives (default current directory)")
	rootCmd.Flags().BoolVar(&writeManifest, "manifest", false, "write a SHA-512 checksum manifest next to the archives")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "minimum log level (debug, info, warn, error)")
}
