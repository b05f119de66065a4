// Package executor is the only place where sing-l2tp talks to the host's
// administrative tools (ip, systemctl, modprobe, journalctl, ...).
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/igor04091968/sing-l2tp/logger"
	"github.com/igor04091968/sing-l2tp/metrics"
)

const DefaultTimeout = 30 * time.Second

// pipeWaitDelay bounds how long Run waits for output pipes after the
// command itself has exited. Daemons forked by the command can hold them
// open forever.
const pipeWaitDelay = 2 * time.Second

// Executor runs one administrative command and reports whether it exited
// zero together with its output. Implementations never return errors:
// failures to spawn or time out become (false, reason).
type Executor interface {
	Run(ctx context.Context, name string, args ...string) (bool, string)
}

// Shell runs commands on the local host.
type Shell struct {
	Timeout time.Duration
}

func NewShell(timeout time.Duration) *Shell {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Shell{Timeout: timeout}
}

func (s *Shell) Run(ctx context.Context, name string, args ...string) (bool, string) {
	cmdCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = pipeWaitDelay

	err := cmd.Run()
	if errors.Is(err, exec.ErrWaitDelay) {
		// exited zero, a child kept the pipes
		err = nil
	}
	output := strings.TrimSpace(stdout.String())
	if output == "" {
		output = strings.TrimSpace(stderr.String())
	}

	ok := err == nil
	if !ok {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(cmdCtx.Err(), context.DeadlineExceeded):
			output = fmt.Sprintf("command timed out after %s", s.Timeout)
		case !errors.As(err, &exitErr):
			// never started
			output = err.Error()
		}
	}

	metrics.ObserveCommand(name, ok)
	logger.Debugf("exec %s: ok=%t output=%q", CommandLine(name, args...), ok, output)
	return ok, output
}

// CommandLine renders a command the way an operator would type it.
func CommandLine(name string, args ...string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
