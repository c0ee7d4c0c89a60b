package dictation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/eleven-am/dictation/internal/audio"
	"github.com/eleven-am/dictation/internal/capability"
	"github.com/eleven-am/dictation/internal/protocol"
	"github.com/eleven-am/dictation/internal/shared"
)

// WorkerClient is the fast path: a running worker. *client.Client and
// *socket.Client both satisfy it.
type WorkerClient interface {
	IsReachable(ctx context.Context) bool
	Transcribe(ctx context.Context, audioPath string, timeout time.Duration) protocol.Result
}

// FileTranscriber is the slow path, normally a fallback.Invoker.
type FileTranscriber interface {
	Transcribe(ctx context.Context, audioPath string) protocol.Result
}

type Options struct {
	UseAPI            bool
	FallbackOnTimeout bool
	RequestTimeout    time.Duration
	TempDir           string

	RemoveTrailingPeriod bool
	AddTrailingSpace     bool
	RemoveCapitalization bool
}

type Service struct {
	worker   WorkerClient
	fallback FileTranscriber
	api      capability.Capability
	opts     Options
	logger   *slog.Logger
}

// New wires the available paths. Any of worker, fallback and api may be nil.
func New(worker WorkerClient, fallback FileTranscriber, api capability.Capability, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		worker:   worker,
		fallback: fallback,
		api:      api,
		opts:     opts,
		logger:   logger.With("component", "dictation"),
	}
}

// Transcribe persists clip as a temporary WAV, transcribes it and removes the
// file again.
func (s *Service) Transcribe(ctx context.Context, clip audio.Clip) protocol.Result {
	if clip.Empty() {
		return protocol.Result{Err: "no audio recorded"}
	}

	path, err := audio.WriteTempWAV(s.opts.TempDir, clip)
	if err != nil {
		s.logger.Error("write temp wav failed", "error", err)
		return protocol.Failure(fmt.Errorf("%w: %w", shared.ErrTransport, err))
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("remove temp wav failed", "path", path, "error", err)
		}
	}()

	s.logger.Debug("clip saved", "path", path, "duration_ms", clip.Duration().Milliseconds())
	return s.TranscribeFile(ctx, path)
}

func (s *Service) TranscribeFile(ctx context.Context, path string) protocol.Result {
	res := s.route(ctx, path)
	if res.OK {
		res.Text = s.postProcess(res.Text)
	}
	return res
}

func (s *Service) route(ctx context.Context, path string) protocol.Result {
	if s.opts.UseAPI {
		if s.api == nil {
			return protocol.Failure(fmt.Errorf("%w: api mode without an api client", shared.ErrCapability))
		}
		text, err := s.api.Transcribe(ctx, path)
		if err != nil {
			s.logger.Warn("api transcription failed", "error", err)
			return protocol.Failure(err)
		}
		return protocol.Success(text)
	}

	if s.worker != nil && s.worker.IsReachable(ctx) {
		res := s.worker.Transcribe(ctx, path, s.opts.RequestTimeout)
		if !res.Retryable() || !s.opts.FallbackOnTimeout || s.fallback == nil {
			return res
		}
		s.logger.Warn("worker did not answer, using fallback", "error", res.Err, "kind", res.Kind)
	} else {
		s.logger.Info("worker not reachable, using fallback")
	}

	if s.fallback == nil {
		return protocol.Failure(fmt.Errorf("%w: no worker and no fallback configured", shared.ErrTransport))
	}
	return s.fallback.Transcribe(ctx, path)
}

func (s *Service) postProcess(text string) string {
	text = strings.TrimSpace(text)
	if s.opts.RemoveTrailingPeriod {
		text = strings.TrimSuffix(text, ".")
	}
	if s.opts.AddTrailingSpace {
		text += " "
	}
	if s.opts.RemoveCapitalization {
		text = strings.ToLower(text)
	}
	return text
}
