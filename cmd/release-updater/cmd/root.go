package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/release-updater/internal/config"
	"github.com/oshokin/release-updater/internal/domain/update"
	"github.com/oshokin/release-updater/internal/service/updater"
	"github.com/oshokin/release-updater/internal/version"
)

// Process exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitBusy  = 2
)

// exitStatus carries the exit code of a finished run out of RunE.
type exitStatus struct {
	code int
}

func (e *exitStatus) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

var (
	// configPath to the configuration YAML file.
	configPath string
	// installDir overrides install_dir of the configuration.
	installDir string
	// logLevel overrides log_level of the configuration.
	logLevel string

	// rootCmd runs a single update of the install directory.
	rootCmd = &cobra.Command{
		Use:           "release-updater",
		Short:         "Update an installed tree to the latest published release",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			res, err := updater.Run(ctx, options())
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), describe(res))

			if code := exitCode(res.Status); code != exitOK {
				return &exitStatus{code: code}
			}

			return nil
		},
	}
)

func options() *updater.Options {
	return &updater.Options{
		ConfigPath: configPath,
		InstallDir: installDir,
		LogLevel:   logLevel,
	}
}

// describe renders the one-line summary printed after a run.
func describe(res *updater.Result) string {
	line := fmt.Sprintf("%s (%d)", res.Status, int(res.Status))

	if res.Tag != "" {
		line += " release " + res.Tag
	}

	if res.CleanupFailed {
		line += ", cleanup failed"
	}

	if res.Err != nil {
		line += ": " + res.Err.Error()
	}

	return line
}

func exitCode(status update.Status) int {
	switch {
	case status.Succeeded():
		return exitOK
	case status == update.StatusBusy:
		return exitBusy
	default:
		return exitError
	}
}

// Execute runs the release-updater CLI and exits with non-zero status on failure.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	err := rootCmd.Execute()
	if err == nil {
		return
	}

	if status, ok := err.(*exitStatus); ok { //nolint:errorlint // exitStatus is never wrapped.
		os.Exit(status.code)
	}

	_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(exitError)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVarP(&installDir, "dir", "d", "", "install directory, overrides install_dir")
	flags.StringVar(&logLevel, "log-level", "", "console log level: debug, info, warn or error")

	rootCmd.AddCommand(checkCmd, packCmd)
}
