// Package engine wraps the external computation engines the benchmarks
// offload to. Engines are opaque binaries: each call runs one process and
// its standard output is the result.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// EngineError reports a failed engine invocation.
type EngineError struct {
	Engine string
	Err    error
	Stderr string
}

func (e *EngineError) Error() string {
	msg := fmt.Sprintf("engine %s: %s", e.Engine, e.Err.Error())
	if e.Stderr != "" {
		msg += "\nstderr: " + e.Stderr
	}

	return msg
}

func (e *EngineError) Unwrap() error { return e.Err }

// Command launches one engine binary per invocation.
type Command struct {
	Name       string
	BinaryPath string
	Env        []string
	Logger     *slog.Logger
}

// NewCommand creates a Command for the named engine. Env is appended to
// the inherited environment.
func NewCommand(name, binaryPath string, env []string, logger *slog.Logger) *Command {
	return &Command{
		Name:       name,
		BinaryPath: binaryPath,
		Env:        env,
		Logger:     logger.With(slog.String("engine", name)),
	}
}

// Run executes the binary with args and returns its standard output.
func (c *Command) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.BinaryPath, args...)

	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()

	if err := cmd.Run(); err != nil {
		return "", &EngineError{
			Engine: c.Name,
			Err:    err,
			Stderr: strings.TrimSpace(stderr.String()),
		}
	}

	c.Logger.Debug("engine finished",
		slog.String("binary", c.BinaryPath),
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("stdout_bytes", stdout.Len()),
	)

	return stdout.String(), nil
}
