package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"slidecast/config"
)

var (
	// ErrNotFound is returned when no encoder executable can be resolved.
	ErrNotFound = errors.New("ffmpeg executable not found")
	// ErrEncoding marks every failed encoder invocation.
	ErrEncoding = errors.New("encoding failed")
)

const maxErrorOutput = 2000

// EncodeError carries the encoder's diagnostic stream for a failed invocation.
type EncodeError struct {
	Op       Op
	ExitCode int
	TimedOut bool
	Output   string
	Err      error
}

func (e *EncodeError) Error() string {
	out := strings.TrimSpace(e.Output)
	if len(out) > maxErrorOutput {
		out = "..." + out[len(out)-maxErrorOutput:]
	}
	if e.TimedOut {
		return fmt.Sprintf("ffmpeg %s timed out: %s", e.Op, out)
	}
	return fmt.Sprintf("ffmpeg %s failed (exit %d): %s", e.Op, e.ExitCode, out)
}

func (e *EncodeError) Unwrap() error { return e.Err }

func (e *EncodeError) Is(target error) bool { return target == ErrEncoding }

// Runner executes encoder commands one at a time per call, with no retry.
type Runner struct {
	bin      string
	timeout  time.Duration
	throttle Throttle
	logger   *slog.Logger
}

// ResolveBinary prefers an explicit override and falls back to a PATH lookup.
func ResolveBinary(override string) (string, error) {
	if override = strings.TrimSpace(override); override != "" {
		path, err := exec.LookPath(override)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrNotFound, override)
		}
		return path, nil
	}
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("%w: install ffmpeg or set FF_BIN", ErrNotFound)
	}
	return path, nil
}

func NewRunner(cfg *config.Config, logger *slog.Logger) (*Runner, error) {
	bin, err := ResolveBinary(cfg.FFBin)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("encoder resolved", "path", bin)
	return &Runner{
		bin:     bin,
		timeout: cfg.FFTimeout,
		throttle: Throttle{
			CPUIdlePercent: cfg.ThrottleCPU,
			FreeMem:        cfg.ThrottleFreeMem,
			FreeDisk:       cfg.ThrottleFreeDisk,
		},
		logger: logger,
	}, nil
}

// Binary returns the resolved executable path.
func (r *Runner) Binary() string {
	return r.bin
}

// Run executes cmd and returns the combined stdout/stderr output.
func (r *Runner) Run(ctx context.Context, cmd Command) (string, error) {
	if err := r.throttle.Check(filepath.Dir(cmd.Output), r.logger); err != nil {
		return "", &EncodeError{Op: cmd.Op, ExitCode: -1, Output: err.Error(), Err: err}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	proc := exec.CommandContext(ctx, r.bin, cmd.Args...)
	var outputBuf bytes.Buffer
	proc.Stdout = &outputBuf
	proc.Stderr = &outputBuf
	proc.WaitDelay = 5 * time.Second

	r.logger.Debug("executing encoder", "op", cmd.Op, "args", strings.Join(cmd.Args, " "))
	started := time.Now()
	err := proc.Run()
	output := outputBuf.String()
	if err == nil {
		r.logger.Info("encoder pass finished", "op", cmd.Op, "elapsed", time.Since(started).Round(time.Millisecond))
		return output, nil
	}

	encErr := &EncodeError{Op: cmd.Op, ExitCode: -1, Output: output, Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		encErr.ExitCode = exitErr.ExitCode()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		encErr.TimedOut = true
	}
	r.logger.Error("encoder pass failed", "op", cmd.Op, "exit_code", encErr.ExitCode, "timed_out", encErr.TimedOut)
	return output, encErr
}
