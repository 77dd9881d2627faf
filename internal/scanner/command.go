package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// Runner executes an argv somewhere and streams its output.
//
// Run returns the exit code with a nil error when the process ran to
// completion, whatever the code. It returns an error when the process could
// not be started or when ctx ended first.
type Runner interface {
	Run(ctx context.Context, argv []string, stdout, stderr io.Writer) (int, error)
}

// CommandRunner runs tools as local child processes.
type CommandRunner struct {
	WorkDir string
	Env     []string

	// WaitDelay bounds how long Run waits for output pipes after the
	// process is killed.
	WaitDelay time.Duration
}

var _ Runner = (*CommandRunner)(nil)

func (r *CommandRunner) Run(ctx context.Context, argv []string, stdout, stderr io.Writer) (int, error) {
	if len(argv) == 0 {
		return -1, fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.WorkDir
	cmd.Env = append(os.Environ(), r.Env...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 5 * time.Second
	}
	// Wrapper scripts spawn the real tool; kill the whole group on timeout.
	setProcessGroup(cmd)

	err := cmd.Run()
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, fmt.Errorf("run %s: %w", argv[0], err)
	}
	return 0, nil
}
