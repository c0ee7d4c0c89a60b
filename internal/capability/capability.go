package capability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eleven-am/dictation/internal/shared"
)

type Capability interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
	Close() error
}

type Loader interface {
	Load(ctx context.Context) (Capability, error)
}

type Func func(ctx context.Context, audioPath string) (string, error)

func (f Func) Transcribe(ctx context.Context, audioPath string) (string, error) {
	return f(ctx, audioPath)
}

func (f Func) Close() error { return nil }

type LoaderFunc func(ctx context.Context) (Capability, error)

func (f LoaderFunc) Load(ctx context.Context) (Capability, error) {
	return f(ctx)
}

const (
	BackendProcess = "process"
	BackendOpenAI  = "openai"
)

type Config struct {
	Backend string

	Command        string
	Args           []string
	WorkDir        string
	LoadTimeout    time.Duration
	RequestTimeout time.Duration

	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string
	Language      string
}

// New returns the loader selected by cfg.Backend.
func New(cfg Config, logger *slog.Logger) (Loader, error) {
	switch cfg.Backend {
	case BackendProcess, "":
		return NewProcessLoader(ProcessConfig{
			Command:        cfg.Command,
			Args:           cfg.Args,
			WorkDir:        cfg.WorkDir,
			LoadTimeout:    cfg.LoadTimeout,
			RequestTimeout: cfg.RequestTimeout,
		}, logger), nil
	case BackendOpenAI:
		return NewOpenAILoader(OpenAIConfig{
			APIKey:   cfg.OpenAIKey,
			Model:    cfg.OpenAIModel,
			BaseURL:  cfg.OpenAIBaseURL,
			Language: cfg.Language,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q (supported: process, openai)", shared.ErrCapability, cfg.Backend)
	}
}
