package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eleven-am/dictation/internal/capability"
	"github.com/eleven-am/dictation/internal/client"
	"github.com/eleven-am/dictation/internal/dictation"
	"github.com/eleven-am/dictation/internal/fallback"
	"github.com/eleven-am/dictation/internal/mailbox"
	"github.com/eleven-am/dictation/internal/socket"
	"github.com/eleven-am/dictation/internal/supervisor"
)

// Caller bundles what the caller-side commands need to reach a worker.
type Caller struct {
	Config *Config
	Logger *slog.Logger
	Pair   mailbox.Pair
	Client *client.Client
	Socket *socket.Client
}

func NewCaller(cfg *Config) (*Caller, error) {
	logger := ProvideLogger(cfg)
	pair, err := NewMailboxPair(cfg)
	if err != nil {
		return nil, err
	}
	c := &Caller{
		Config: cfg,
		Logger: logger,
		Pair:   pair,
		Client: client.New(pair, cfg.ClientConfig(), logger),
	}
	if cfg.SocketPath != "" {
		sc, err := socket.Dial(cfg.SocketPath)
		if err != nil {
			return nil, fmt.Errorf("dial socket: %w", err)
		}
		c.Socket = sc
	}
	return c, nil
}

func (c *Caller) Close() error {
	if c.Socket != nil {
		return c.Socket.Close()
	}
	return nil
}

// WorkerClient prefers the socket bridge when one is configured.
func (c *Caller) WorkerClient() dictation.WorkerClient {
	if c.Socket != nil {
		return c.Socket
	}
	return c.Client
}

func (c *Caller) Invoker() fallback.Invoker {
	return fallback.Invoker{
		Binary:  c.Config.FallbackBinary,
		Timeout: c.Config.FallbackTimeout,
		Logger:  c.Logger,
	}
}

// Service builds the dictation facade. In API mode the OpenAI capability is
// loaded up front and the worker is not consulted.
func (c *Caller) Service(ctx context.Context) (*dictation.Service, error) {
	opts := c.Config.DictationOptions()
	if opts.UseAPI {
		cc := c.Config.CapabilityConfig()
		api, err := capability.NewOpenAILoader(capability.OpenAIConfig{
			APIKey:   cc.OpenAIKey,
			Model:    cc.OpenAIModel,
			BaseURL:  cc.OpenAIBaseURL,
			Language: cc.Language,
		}).Load(ctx)
		if err != nil {
			return nil, err
		}
		return dictation.New(nil, nil, api, opts, c.Logger), nil
	}
	return dictation.New(c.WorkerClient(), c.Invoker(), nil, opts, c.Logger), nil
}

func (c *Caller) Supervisor() *supervisor.Supervisor {
	launcher := supervisor.ExecLauncher{
		Binary:  c.Config.WorkerBinary,
		Args:    c.Config.WorkerArgs,
		LogPath: c.Config.WorkerLog,
		Logger:  c.Logger,
	}
	return supervisor.New(c.Config.SupervisorConfig(), c.Client, launcher, c.Pair, c.Logger)
}

// NewFallbackLoader is the capability the one-shot process loads. The
// one-shot path never talks to a worker, so the OpenAI backend is honoured
// here too.
func NewFallbackLoader(cfg *Config, logger *slog.Logger) (capability.Loader, error) {
	return capability.New(cfg.CapabilityConfig(), logger)
}
