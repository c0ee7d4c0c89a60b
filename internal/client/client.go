package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/eleven-am/dictation/internal/mailbox"
	"github.com/eleven-am/dictation/internal/protocol"
	"github.com/eleven-am/dictation/internal/shared"
)

const cleanupTimeout = 2 * time.Second

type Config struct {
	PollInterval time.Duration
	Timeout      time.Duration
	PingTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 100 * time.Millisecond,
		Timeout:      30 * time.Second,
		PingTimeout:  3 * time.Second,
	}
}

type Client struct {
	pair   mailbox.Pair
	cfg    Config
	logger *slog.Logger
}

func New(pair mailbox.Pair, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	d := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = d.PollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = d.PingTimeout
	}
	return &Client{
		pair:   pair,
		cfg:    cfg,
		logger: logger.With("component", "client"),
	}
}

// IsReachable reports whether both mailboxes exist and accept writes. It says
// nothing about whether a worker is consuming them.
func (c *Client) IsReachable(ctx context.Context) bool {
	if err := c.pair.Probe(ctx); err != nil {
		c.logger.Debug("mailboxes unreachable", "error", err)
		return false
	}
	return true
}

// Ping reports whether a worker answered a liveness request within the ping
// timeout.
func (c *Client) Ping(ctx context.Context) bool {
	if !c.IsReachable(ctx) {
		return false
	}
	resp, err := c.Do(ctx, protocol.NewPing(), c.cfg.PingTimeout)
	if err != nil {
		c.logger.Debug("ping failed", "error", err, "kind", shared.Classify(err))
		return false
	}
	return resp.Status == protocol.StatusSuccess && resp.Text == protocol.PongText
}

// Transcribe asks the worker to transcribe audioPath, waiting at most timeout
// (the configured default when zero). Failures yield a Result with empty text.
func (c *Client) Transcribe(ctx context.Context, audioPath string, timeout time.Duration) protocol.Result {
	info, err := os.Stat(audioPath)
	if err != nil || !info.Mode().IsRegular() {
		c.logger.Warn("audio file not found", "path", audioPath)
		return protocol.Result{Err: fmt.Sprintf("audio file not found: %s", audioPath)}
	}
	if abs, err := filepath.Abs(audioPath); err == nil {
		audioPath = abs
	}
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}

	start := time.Now()
	resp, err := c.Do(ctx, protocol.NewRequest(audioPath), timeout)
	if err != nil {
		c.logger.Warn("transcription request failed", "path", audioPath, "error", err, "kind", shared.Classify(err))
		return protocol.Failure(err)
	}
	if resp.Status != protocol.StatusSuccess {
		c.logger.Warn("worker reported error", "request_id", resp.RequestID, "error", resp.Error)
	} else {
		c.logger.Debug("transcription received", "request_id", resp.RequestID, "duration_ms", time.Since(start).Milliseconds())
	}
	return resp.Result()
}

// Do publishes req and polls for its response until timeout elapses or ctx is
// done, both of which yield shared.ErrTimeout. A request that times out is
// withdrawn if the worker has not claimed it yet.
func (c *Client) Do(ctx context.Context, req protocol.Request, timeout time.Duration) (protocol.Response, error) {
	data, err := protocol.EncodeRequest(req)
	if err != nil {
		return protocol.Response{}, err
	}
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.pair.Requests.Publish(ctx, req.RequestID, data); err != nil {
		return protocol.Response{}, fmt.Errorf("publish request: %w", err)
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if resp, ok := c.collect(ctx, req.RequestID); ok {
			return resp, nil
		}
		select {
		case <-ctx.Done():
			c.withdraw(req.RequestID)
			return protocol.Response{}, fmt.Errorf("%w: no response for %s within %s", shared.ErrTimeout, req.RequestID, timeout)
		case <-ticker.C:
		}
	}
}

// collect returns the response for id once it is complete. Missing and
// undecodable responses both mean "not yet".
func (c *Client) collect(ctx context.Context, id string) (protocol.Response, bool) {
	data, err := c.pair.Responses.Read(ctx, id)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			c.logger.Debug("read response failed", "request_id", id, "error", err)
		}
		return protocol.Response{}, false
	}
	resp, err := protocol.DecodeResponse(data)
	if err != nil {
		return protocol.Response{}, false
	}

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if _, err := c.pair.Responses.Delete(cleanupCtx, id); err != nil {
		c.logger.Debug("delete response failed", "request_id", id, "error", err)
	}
	return resp, true
}

func (c *Client) withdraw(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	removed, err := c.pair.Requests.Delete(ctx, id)
	if err != nil {
		c.logger.Debug("withdraw request failed", "request_id", id, "error", err)
		return
	}
	if removed {
		c.logger.Debug("withdrew unclaimed request", "request_id", id)
	}
}
