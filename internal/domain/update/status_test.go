package update

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestStatusString verifies names and numeric codes of every status.
func TestStatusString(t *testing.T) {
	t.Parallel()

	cases := map[Status]string{
		StatusStarted: "STARTED",
		StatusUpdated: "UPDATED",
		StatusLatest:  "LATEST",
		StatusError:   "ERROR",
		StatusBusy:    "BUSY",
		Status(42):    "Status(42)",
	}
	for status, name := range cases {
		require.Equal(t, name, status.String())
	}

	require.Equal(t, 504, int(StatusBusy))
	require.True(t, StatusLatest.Succeeded())
	require.False(t, StatusBusy.Succeeded())
}

// TestStatusFor maps wrapped taxonomy errors to statuses.
func TestStatusFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, StatusUpdated, StatusFor(nil))
	require.Equal(t, StatusBusy, StatusFor(fmt.Errorf("acquire: %w", ErrLockUnavailable)))
	require.Equal(t, StatusError, StatusFor(fmt.Errorf("download: %w", ErrRemoteFetch)))
	require.Equal(t, StatusError, StatusFor(fmt.Errorf("apply: %w", ErrApply)))
}
