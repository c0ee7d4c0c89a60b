package fallback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/eleven-am/dictation/internal/protocol"
	"github.com/eleven-am/dictation/internal/shared"
)

const defaultTimeout = 60 * time.Second

// Invoker runs the one-shot process for a single file.
type Invoker struct {
	Binary  string
	Args    []string
	Timeout time.Duration
	Logger  *slog.Logger
}

func (i Invoker) Transcribe(ctx context.Context, audioPath string) protocol.Result {
	logger := i.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "fallback")

	if info, err := os.Stat(audioPath); err != nil || !info.Mode().IsRegular() {
		logger.Warn("audio file not found", "path", audioPath)
		return protocol.Result{Err: fmt.Sprintf("audio file not found: %s", audioPath)}
	}

	timeout := i.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, i.Args...), audioPath)
	cmd := exec.CommandContext(ctx, i.Binary, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = shared.NewLogWriter(logger, "fallback stderr")

	start := time.Now()
	runErr := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		logger.Warn("fallback timed out", "timeout", timeout)
		return protocol.Failure(fmt.Errorf("%w: fallback exceeded %s", shared.ErrTimeout, timeout))
	}

	rec, parseErr := ParseRecord(stdout.Bytes())
	if parseErr != nil {
		if runErr != nil {
			logger.Warn("fallback process failed", "error", runErr)
			return protocol.Failure(fmt.Errorf("%w: fallback process: %w", shared.ErrCapability, runErr))
		}
		logger.Warn("fallback output unreadable", "error", parseErr)
		return protocol.Failure(parseErr)
	}
	if rec.Error != "" {
		logger.Warn("fallback reported error", "error", rec.Error)
		return protocol.Result{Err: rec.Error}
	}
	if runErr != nil {
		return protocol.Failure(fmt.Errorf("%w: fallback process: %w", shared.ErrCapability, runErr))
	}

	logger.Debug("fallback transcription done", "duration_ms", time.Since(start).Milliseconds())
	return protocol.Success(strings.TrimSpace(rec.Text))
}
