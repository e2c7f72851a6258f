// Package cli runs an external command-line agent as the generation backend. The prompt is piped
// to the process on stdin and never passes through a shell.
package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultPath is the agent binary looked up on PATH.
const DefaultPath = "claude"

// DefaultArgs make the agent print a plain-text answer and exit.
var DefaultArgs = []string{"--print", "--output-format", "text"}

// ErrEmptyOutput is returned when the process exits cleanly without writing anything.
var ErrEmptyOutput = errors.New("agent produced no output")

// maxStderr bounds how much stderr is carried into an error message.
const maxStderr = 512

// Config holds the command to run.
type Config struct {
	Path string
	Args []string
}

// Completer executes one process per call.
type Completer struct {
	path string
	args []string
}

// New builds a Completer, falling back to DefaultPath and DefaultArgs.
func New(cfg Config) *Completer {
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	args := cfg.Args
	if len(args) == 0 {
		args = DefaultArgs
	}
	return &Completer{path: path, args: append([]string(nil), args...)}
}

// Name identifies the backend in logs and metrics.
func (c *Completer) Name() string {
	return "cli"
}

// Complete runs the agent with prompt on stdin. The process is killed when ctx ends.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	cmd := exec.CommandContext(ctx, c.path, c.args...)
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("agent %s: %w", c.path, ctxErr)
		}
		return "", fmt.Errorf("agent %s: %w: %s", c.path, err, clip(stderr.String()))
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", ErrEmptyOutput
	}
	return out, nil
}

func clip(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		return s[:maxStderr]
	}
	return s
}
