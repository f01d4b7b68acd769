package hook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/oshokin/release-updater/internal/logger"
)

// DefaultTimeout bounds a post-upgrade command.
const DefaultTimeout = 10 * time.Minute

var errNoCommand = errors.New("hook command is empty")

// Hook runs after a successful apply, inside the install directory.
type Hook interface {
	Run(ctx context.Context, installDir string) error
}

// Func adapts a function to Hook.
type Func func(ctx context.Context, installDir string) error

// Run implements Hook.
func (f Func) Run(ctx context.Context, installDir string) error {
	return f(ctx, installDir)
}

// Command runs an executable with an argument vector. No shell is involved,
// so arguments are passed verbatim.
type Command struct {
	Name    string
	Args    []string
	Timeout time.Duration
}

// NewCommand creates a command hook.
func NewCommand(name string, args []string, timeout time.Duration) (*Command, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errNoCommand
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Command{Name: name, Args: args, Timeout: timeout}, nil
}

// Run implements Hook.
func (c *Command) Run(ctx context.Context, installDir string) error {
	cmdCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, c.Name, c.Args...)
	cmd.Dir = installDir

	var output bytes.Buffer

	cmd.Stdout = &output
	cmd.Stderr = &output

	logger.InfoKV(ctx, "Running post-upgrade command", "command", c.Name, "args", c.Args, "dir", installDir)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("post-upgrade command %s: %w: %s", c.Name, err, strings.TrimSpace(output.String()))
	}

	if out := strings.TrimSpace(output.String()); out != "" {
		logger.InfoKV(ctx, "Post-upgrade command finished", "output", out)
	}

	return nil
}
