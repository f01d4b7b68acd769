package hook

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mitchellh/go-ps"
	"github.com/samber/lo"

	"github.com/oshokin/release-updater/internal/logger"
)

// ProcessLister returns the running processes.
type ProcessLister func() ([]ps.Process, error)

// KillFunc terminates a process by pid.
type KillFunc func(pid int) error

// ProcessStopper kills running processes by executable name before files are replaced.
type ProcessStopper struct {
	names []string
	list  ProcessLister
	kill  KillFunc
	self  int
}

// NewProcessStopper creates a stopper for the given executable names.
// On Windows a missing ".exe" suffix is added.
func NewProcessStopper(names []string) *ProcessStopper {
	normalized := lo.Uniq(lo.FilterMap(names, func(name string, _ int) (string, bool) {
		name = strings.TrimSpace(name)
		if name == "" {
			return "", false
		}

		if runtime.GOOS == "windows" && filepath.Ext(name) == "" {
			name += ".exe"
		}

		return name, true
	}))

	return &ProcessStopper{
		names: normalized,
		list:  ps.Processes,
		kill:  killProcess,
		self:  os.Getpid(),
	}
}

// Names returns the executable names the stopper looks for.
func (s *ProcessStopper) Names() []string {
	return s.names
}

// Stop kills every matching process except the current one and returns how many were stopped.
func (s *ProcessStopper) Stop(ctx context.Context) (int, error) {
	if len(s.names) == 0 {
		return 0, nil
	}

	processes, err := s.list()
	if err != nil {
		return 0, fmt.Errorf("list processes: %w", err)
	}

	wanted := lo.Keyify(s.names)
	stopped := 0

	for _, p := range processes {
		if p.Pid() == s.self {
			continue
		}

		if _, ok := wanted[p.Executable()]; !ok {
			continue
		}

		if err = s.kill(p.Pid()); err != nil {
			return stopped, fmt.Errorf("kill %s (pid %d): %w", p.Executable(), p.Pid(), err)
		}

		stopped++

		logger.InfoKV(ctx, "Process stopped", "name", p.Executable(), "pid", p.Pid())
	}

	return stopped, nil
}

func killProcess(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}

	return p.Kill()
}
