package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/oshokin/release-updater/internal/domain/update"
	"github.com/oshokin/release-updater/internal/logger"
)

const (
	// DefaultMarkerName is the marker file created under the install root.
	DefaultMarkerName = "update.lock"
	// DefaultAttempts is how many times the marker creation is tried.
	DefaultAttempts = 3
	// DefaultDelay is the pause between two attempts.
	DefaultDelay = 10 * time.Second

	dirMode    os.FileMode = 0o755
	markerMode os.FileMode = 0o644
)

// State of the lock manager.
type State int

// Lock states. A manager starts and ends in StateIdle.
const (
	StateIdle State = iota
	StateAcquiring
	StateHeld
	StateReleasing
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAcquiring:
		return "ACQUIRING"
	case StateHeld:
		return "HELD"
	case StateReleasing:
		return "RELEASING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrBusy is returned when every attempt found the marker in place.
	ErrBusy = fmt.Errorf("%w: another run holds the marker", update.ErrLockUnavailable)

	errNotIdle = errors.New("lock is not idle")
	errNotHeld = errors.New("lock is not held")
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// CleanupFunc runs while the lock is still held, right before the marker is removed.
type CleanupFunc func(ctx context.Context) error

// Manager acquires and releases the marker lock of one install root.
type Manager struct {
	fs      afero.Fs
	marker  string
	folders []string

	attempts int
	delay    time.Duration
	sleep    SleepFunc

	mu    sync.Mutex
	state State
}

// Option configures a Manager.
type Option func(*Manager)

// WithAttempts sets the number of acquisition attempts.
func WithAttempts(attempts int) Option {
	return func(m *Manager) {
		if attempts > 0 {
			m.attempts = attempts
		}
	}
}

// WithDelay sets the pause between attempts.
func WithDelay(delay time.Duration) Option {
	return func(m *Manager) {
		if delay >= 0 {
			m.delay = delay
		}
	}
}

// WithFolders lists staging folders that must exist before the marker is created.
func WithFolders(folders ...string) Option {
	return func(m *Manager) {
		m.folders = append(m.folders, folders...)
	}
}

// WithSleep replaces the wait between attempts.
func WithSleep(sleep SleepFunc) Option {
	return func(m *Manager) {
		if sleep != nil {
			m.sleep = sleep
		}
	}
}

// New creates a manager for the marker DefaultMarkerName under root.
func New(fsys afero.Fs, root string, opts ...Option) *Manager {
	m := &Manager{
		fs:       fsys,
		marker:   filepath.Join(filepath.Clean(root), DefaultMarkerName),
		attempts: DefaultAttempts,
		delay:    DefaultDelay,
		sleep:    Sleep,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Marker returns the absolute marker path.
func (m *Manager) Marker() string {
	return m.marker
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Acquire ensures the staging folders exist and then creates the marker.
// A folder failure is returned at once wrapped in update.ErrStagingIO.
// When every attempt finds the marker in place, ErrBusy is returned.
func (m *Manager) Acquire(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()

		return fmt.Errorf("acquire %s: %w (state %s)", m.marker, errNotIdle, m.state)
	}

	m.state = StateAcquiring
	m.mu.Unlock()

	if err := m.ensureFolders(ctx); err != nil {
		m.setState(StateIdle)

		return err
	}

	for attempt := 1; attempt <= m.attempts; attempt++ {
		created, err := m.createMarker()
		if err != nil {
			m.setState(StateIdle)

			return fmt.Errorf("%w: create lock marker %s: %w", update.ErrStagingIO, m.marker, err)
		}

		if created {
			m.setState(StateHeld)
			logger.InfoKV(ctx, "Lock acquired", "marker", m.marker, "attempt", attempt)

			return nil
		}

		logger.WarnKV(ctx, "Lock is busy", "marker", m.marker, "attempt", attempt, "attempts", m.attempts)

		if attempt == m.attempts {
			break
		}

		if err = m.sleep(ctx, m.delay); err != nil {
			m.setState(StateIdle)

			return fmt.Errorf("%w: waiting for %s: %w", update.ErrLockUnavailable, m.marker, err)
		}
	}

	m.setState(StateIdle)

	return ErrBusy
}

// Release runs cleanup and removes the marker. The marker is removed even
// when cleanup fails; both failures are reported together.
func (m *Manager) Release(ctx context.Context, cleanup CleanupFunc) error {
	m.mu.Lock()
	if m.state != StateHeld {
		m.mu.Unlock()

		return fmt.Errorf("release %s: %w (state %s)", m.marker, errNotHeld, m.state)
	}

	m.state = StateReleasing
	m.mu.Unlock()

	defer m.setState(StateIdle)

	var cleanupErr error
	if cleanup != nil {
		cleanupErr = cleanup(ctx)
	}

	var markerErr error
	if err := m.fs.Remove(m.marker); err != nil && !errors.Is(err, os.ErrNotExist) {
		markerErr = fmt.Errorf("%w: remove lock marker %s: %w", update.ErrStagingIO, m.marker, err)
	}

	if markerErr == nil {
		logger.InfoKV(ctx, "Lock released", "marker", m.marker)
	}

	return errors.Join(cleanupErr, markerErr)
}

func (m *Manager) ensureFolders(ctx context.Context) error {
	for _, folder := range m.folders {
		if info, err := m.fs.Stat(folder); err == nil && info.IsDir() {
			continue
		}

		if err := m.fs.MkdirAll(folder, dirMode); err != nil {
			return fmt.Errorf("%w: create folder %s: %w", update.ErrStagingIO, folder, err)
		}

		logger.InfoKV(ctx, "Folder created", "path", folder)
	}

	return nil
}

// createMarker reports false without error when the marker already exists.
func (m *Manager) createMarker() (bool, error) {
	f, err := m.fs.OpenFile(m.marker, os.O_WRONLY|os.O_CREATE|os.O_EXCL, markerMode)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}

		return false, err
	}

	return true, f.Close()
}

// Sleep waits for d unless ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
