package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/release-updater/internal/domain/update"
	"github.com/oshokin/release-updater/internal/service/updater"
)

func TestExitCode(t *testing.T) {
	t.Parallel()

	require.Equal(t, exitOK, exitCode(update.StatusUpdated))
	require.Equal(t, exitOK, exitCode(update.StatusLatest))
	require.Equal(t, exitError, exitCode(update.StatusError))
	require.Equal(t, exitBusy, exitCode(update.StatusBusy))
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	require.Equal(t, "UPDATED (200) release v1.3.0",
		describe(&updater.Result{Status: update.StatusUpdated, Tag: "v1.3.0"}))
	require.Equal(t, "LATEST (204) release v1.2.0, cleanup failed",
		describe(&updater.Result{Status: update.StatusLatest, Tag: "v1.2.0", CleanupFailed: true}))
	require.Equal(t, "BUSY (504): update lock unavailable",
		describe(&updater.Result{Status: update.StatusBusy, Err: update.ErrLockUnavailable}))
}

// TestPackCommand drives the pack subcommand through the root command.
func TestPackCommand(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "shop.zip")

	require.NoError(t, os.WriteFile(filepath.Join(src, "index.php"), []byte("index"), 0o600))

	var stdout bytes.Buffer

	rootCmd.SetOut(&stdout)
	rootCmd.SetArgs([]string{"pack", src, out, "--name", "shop"})

	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	require.Contains(t, stdout.String(), "1 entries under shop/")
	require.FileExists(t, out)
}

func TestPackCommand_Args(t *testing.T) {
	rootCmd.SetArgs([]string{"pack", "only-one"})

	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	require.Error(t, err)

	var status *exitStatus
	require.False(t, errors.As(err, &status))
}
