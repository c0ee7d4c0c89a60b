package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/dictation/internal/capability"
	"github.com/eleven-am/dictation/internal/mailbox"
	"github.com/eleven-am/dictation/internal/protocol"
	"github.com/eleven-am/dictation/internal/shared"
)

type Config struct {
	PollInterval  time.Duration
	ErrorInterval time.Duration
	ReadGrace     time.Duration
	ReadRetry     shared.BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		PollInterval:  50 * time.Millisecond,
		ErrorInterval: time.Second,
		ReadGrace:     50 * time.Millisecond,
		ReadRetry: shared.BackoffConfig{
			Initial:     100 * time.Millisecond,
			MaxAttempts: 3,
			MaxDelay:    100 * time.Millisecond,
		},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ErrorInterval <= 0 {
		c.ErrorInterval = d.ErrorInterval
	}
	if c.ReadGrace < 0 {
		c.ReadGrace = 0
	}
	if c.ReadRetry.MaxAttempts <= 0 {
		c.ReadRetry = d.ReadRetry
	}
	return c
}

// Outcome describes one claimed request after it has been answered.
type Outcome struct {
	RequestID string
	AudioFile string
	Status    protocol.Status
	Error     string
	Text      string
	Duration  time.Duration
	At        time.Time
}

// Journal receives an Outcome for every claimed transcription request.
type Journal interface {
	RecordOutcome(ctx context.Context, o Outcome) error
}

type Stats struct {
	Processed    uint64    `json:"processed"`
	Failed       uint64    `json:"failed"`
	Dropped      uint64    `json:"dropped"`
	Pings        uint64    `json:"pings"`
	LastActivity time.Time `json:"last_activity,omitempty"`
}

type Option func(*Server)

func WithJournal(j Journal) Option {
	return func(s *Server) { s.journal = j }
}

type Server struct {
	pair    mailbox.Pair
	loader  capability.Loader
	cfg     Config
	journal Journal
	logger  *slog.Logger

	state   atomic.Int32
	running atomic.Bool
	model   capability.Capability
	claims  *claimSet

	lifeMu    sync.Mutex
	stopping  bool
	stopCh    chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once

	statsMu sync.Mutex
	stats   Stats
}

func New(pair mailbox.Pair, loader capability.Loader, cfg Config, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		pair:   pair,
		loader: loader,
		cfg:    cfg.withDefaults(),
		logger: logger.With("component", "worker"),
		claims: newClaimSet(claimHistory),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) State() State {
	return State(s.state.Load())
}

func (s *Server) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// Done is closed once the worker has reached StateStopped.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Load brings the capability up. A failure is terminal: the worker moves to
// StateStopped and cannot be loaded again.
func (s *Server) Load(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateUnstarted), int32(StateLoading)) {
		return fmt.Errorf("worker cannot load from state %s", s.State())
	}
	s.logger.Info("loading capability")
	start := time.Now()

	if err := s.pair.Ensure(); err != nil {
		s.finish()
		return fmt.Errorf("prepare mailboxes: %w", err)
	}

	model, err := s.loader.Load(ctx)
	if err != nil {
		s.finish()
		s.logger.Error("capability load failed", "error", err, "kind", shared.Classify(err))
		return fmt.Errorf("load capability: %w", err)
	}

	s.lifeMu.Lock()
	s.model = model
	stopping := s.stopping
	if !stopping {
		s.state.Store(int32(StateReady))
	}
	s.lifeMu.Unlock()

	if stopping {
		s.finish()
		return errors.New("worker stopped during load")
	}
	s.logger.Info("capability ready", "load_ms", time.Since(start).Milliseconds())
	return nil
}

// Run serves requests until ctx is cancelled or Stop is called. It returns
// once the loop has exited and the capability has been released.
func (s *Server) Run(ctx context.Context) error {
	s.lifeMu.Lock()
	if s.stopping || s.State() != StateReady || s.running.Load() {
		s.lifeMu.Unlock()
		return fmt.Errorf("worker cannot run from state %s", s.State())
	}
	s.running.Store(true)
	s.lifeMu.Unlock()

	defer s.finish()

	s.logger.Info("serving requests")
	for s.running.Load() && ctx.Err() == nil {
		ids, err := s.pair.Requests.List(ctx)
		if err != nil {
			s.logger.Warn("list requests failed", "error", err, "kind", shared.Classify(err))
			// The mailboxes may have been purged under a live worker.
			if errors.Is(err, shared.ErrTransport) {
				if err := s.pair.Ensure(); err != nil {
					s.logger.Warn("recreate mailboxes failed", "error", err)
				}
			}
			s.sleep(ctx, s.cfg.ErrorInterval)
			continue
		}

		for _, id := range ids {
			if !s.running.Load() || ctx.Err() != nil {
				break
			}
			s.handle(ctx, id)
		}

		s.sleep(ctx, s.cfg.PollInterval)
	}

	s.state.CompareAndSwap(int32(StateReady), int32(StateShuttingDown))
	s.logger.Info("request loop exited")
	return nil
}

// Stop asks the loop to exit at the next iteration boundary. A worker that is
// not running is stopped immediately.
func (s *Server) Stop() {
	s.lifeMu.Lock()
	s.stopping = true
	wasRunning := s.running.Swap(false)
	s.state.CompareAndSwap(int32(StateReady), int32(StateShuttingDown))
	s.state.CompareAndSwap(int32(StateUnstarted), int32(StateShuttingDown))
	s.lifeMu.Unlock()

	s.stopOnce.Do(func() { close(s.stopCh) })

	if !wasRunning && s.State() == StateShuttingDown {
		s.finish()
	}
}

// Wait blocks until the worker has stopped or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) finish() {
	s.closeOnce.Do(func() {
		s.lifeMu.Lock()
		model := s.model
		s.model = nil
		s.lifeMu.Unlock()

		if model != nil {
			if err := model.Close(); err != nil {
				s.logger.Warn("close capability failed", "error", err)
			}
		}
		s.state.Store(int32(StateStopped))
		close(s.done)
		s.logger.Info("worker stopped")
	})
}

func (s *Server) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-s.stopCh:
	}
}

func (s *Server) handle(ctx context.Context, id string) {
	s.sleep(ctx, s.cfg.ReadGrace)

	req, ok := s.readRequest(ctx, id)
	if !ok {
		return
	}
	if req.RequestID != id {
		s.drop(ctx, id, "request id does not match its file name", "embedded_id", req.RequestID)
		return
	}
	if s.claims.Has(id) {
		s.drop(ctx, id, "request already answered")
		return
	}

	claimed, err := s.pair.Requests.Delete(ctx, id)
	if err != nil {
		s.logger.Warn("claim request failed", "request_id", id, "error", err)
		return
	}
	if !claimed {
		s.logger.Debug("request claimed elsewhere", "request_id", id)
		return
	}
	s.claims.Add(id)

	start := time.Now()
	var resp protocol.Response
	if req.IsPing() {
		resp = protocol.Pong(req.RequestID)
	} else {
		text, err := s.transcribe(ctx, req.AudioFile)
		if err != nil {
			s.logger.Warn("transcription failed", "request_id", req.RequestID, "error", err, "kind", shared.Classify(err))
			resp = protocol.Failed(req.RequestID, err)
		} else {
			resp = protocol.Succeeded(req.RequestID, text)
		}
	}
	elapsed := time.Since(start)

	// The answer is owed even when shutdown began mid-request.
	pubCtx := context.WithoutCancel(ctx)
	if err := s.respond(pubCtx, resp); err != nil {
		s.logger.Error("publish response failed", "request_id", req.RequestID, "error", err)
	}

	s.record(req, resp, elapsed)
	if !req.IsPing() && s.journal != nil {
		outcome := Outcome{
			RequestID: req.RequestID,
			AudioFile: req.AudioFile,
			Status:    resp.Status,
			Error:     resp.Error,
			Text:      resp.Text,
			Duration:  elapsed,
			At:        start,
		}
		if err := s.journal.RecordOutcome(pubCtx, outcome); err != nil {
			s.logger.Warn("journal write failed", "request_id", req.RequestID, "error", err)
		}
	}
}

// readRequest reads and decodes id, retrying while the writer may still be
// mid-write. Requests that never decode are deleted without a response.
func (s *Server) readRequest(ctx context.Context, id string) (protocol.Request, bool) {
	var lastErr error
	for attempt := 0; attempt < s.cfg.ReadRetry.MaxAttempts; attempt++ {
		if attempt > 0 {
			s.sleep(ctx, s.cfg.ReadRetry.Delay(attempt-1))
		}

		data, err := s.pair.Requests.Read(ctx, id)
		if errors.Is(err, shared.ErrNotFound) {
			return protocol.Request{}, false
		}
		if err != nil {
			lastErr = err
			continue
		}

		req, err := protocol.DecodeRequest(data)
		if err == nil {
			return req, true
		}
		lastErr = err
	}
	if ctx.Err() != nil {
		return protocol.Request{}, false
	}

	s.drop(ctx, id, "request unreadable", "error", lastErr)
	return protocol.Request{}, false
}

// drop deletes id without answering it.
func (s *Server) drop(ctx context.Context, id, reason string, attrs ...any) {
	s.logger.Warn("dropping request", append([]any{"request_id", id, "reason", reason}, attrs...)...)
	if _, err := s.pair.Requests.Delete(ctx, id); err != nil {
		s.logger.Warn("delete dropped request failed", "request_id", id, "error", err)
	}
	s.statsMu.Lock()
	s.stats.Dropped++
	s.stats.LastActivity = time.Now()
	s.statsMu.Unlock()
}

func (s *Server) transcribe(ctx context.Context, audioPath string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", shared.ErrCapability, r)
		}
	}()

	s.lifeMu.Lock()
	model := s.model
	s.lifeMu.Unlock()
	if model == nil {
		return "", fmt.Errorf("%w: capability not loaded", shared.ErrCapability)
	}
	return model.Transcribe(ctx, audioPath)
}

func (s *Server) respond(ctx context.Context, resp protocol.Response) error {
	data, err := protocol.EncodeResponse(resp)
	if err != nil {
		return err
	}
	return s.pair.Responses.Publish(ctx, resp.RequestID, data)
}

func (s *Server) record(req protocol.Request, resp protocol.Response, elapsed time.Duration) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.LastActivity = time.Now()
	switch {
	case req.IsPing():
		s.stats.Pings++
	case resp.Status == protocol.StatusSuccess:
		s.stats.Processed++
		s.logger.Debug("request served", "request_id", req.RequestID, "duration_ms", elapsed.Milliseconds())
	default:
		s.stats.Failed++
	}
}
