package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

type Mode int

const (
	// ModeFallback means no worker is serving; callers use the one-shot
	// process per request.
	ModeFallback Mode = iota
	ModeServer
)

func (m Mode) String() string {
	if m == ModeServer {
		return "server"
	}
	return "fallback"
}

// ModeEnv tells the supervised application which mode was established.
const ModeEnv = "DICTATION_MODE"

type Prober interface {
	IsReachable(ctx context.Context) bool
	Ping(ctx context.Context) bool
}

type Purger interface {
	Purge(ctx context.Context) error
}

type Config struct {
	ProbeInterval  time.Duration
	StartupTimeout time.Duration
	StopGrace      time.Duration
}

func DefaultConfig() Config {
	return Config{
		ProbeInterval:  time.Second,
		StartupTimeout: 30 * time.Second,
		StopGrace:      5 * time.Second,
	}
}

type Supervisor struct {
	cfg      Config
	prober   Prober
	launcher Launcher
	purger   Purger
	logger   *slog.Logger

	mu       sync.Mutex
	proc     Process
	owned    bool
	launched bool
}

func New(cfg Config, prober Prober, launcher Launcher, purger Purger, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	d := DefaultConfig()
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = d.ProbeInterval
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = d.StartupTimeout
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = d.StopGrace
	}
	return &Supervisor{
		cfg:      cfg,
		prober:   prober,
		launcher: launcher,
		purger:   purger,
		logger:   logger.With("component", "supervisor"),
	}
}

func (s *Supervisor) alive(ctx context.Context) bool {
	return s.prober.IsReachable(ctx) && s.prober.Ping(ctx)
}

// Owned reports whether this supervisor started the serving worker.
func (s *Supervisor) Owned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owned
}

// Ensure reuses a live worker or starts one, falling back when none comes up
// within the startup timeout.
func (s *Supervisor) Ensure(ctx context.Context) Mode {
	if s.alive(ctx) {
		s.logger.Info("worker already running")
		return ModeServer
	}

	proc, err := s.launcher.Launch(ctx)
	if err != nil {
		s.logger.Warn("could not start worker, using fallback", "error", err)
		return ModeFallback
	}
	s.mu.Lock()
	s.launched = true
	s.mu.Unlock()

	deadline := time.NewTimer(s.cfg.StartupTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.cfg.ProbeInterval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-proc.Exited():
			s.logger.Warn("worker exited during startup, using fallback", "pid", proc.Pid())
			return ModeFallback
		case <-deadline.C:
			s.logger.Warn("worker did not become ready, using fallback", "pid", proc.Pid(), "timeout", s.cfg.StartupTimeout)
			s.stop(proc)
			return ModeFallback
		case <-ctx.Done():
			s.stop(proc)
			return ModeFallback
		case <-ticker.C:
		}

		if s.alive(ctx) {
			s.mu.Lock()
			s.proc = proc
			s.owned = true
			s.mu.Unlock()
			s.logger.Info("worker ready", "pid", proc.Pid(), "startup_ms", time.Since(start).Milliseconds())
			return ModeServer
		}
	}
}

// Shutdown stops the worker if this supervisor started it and removes the
// mailboxes so later liveness checks start from a clean state. A worker some
// other session started is left alone, mailboxes included.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	proc, owned, launched := s.proc, s.owned, s.launched
	s.proc, s.owned, s.launched = nil, false, false
	s.mu.Unlock()

	if owned && proc != nil {
		s.stop(proc)
	}
	if !launched {
		return
	}
	if s.purger != nil {
		if err := s.purger.Purge(ctx); err != nil {
			s.logger.Warn("purge mailboxes failed", "error", err)
		}
	}
}

func (s *Supervisor) stop(proc Process) {
	s.logger.Info("stopping worker", "pid", proc.Pid())
	if err := proc.Terminate(); err != nil {
		s.logger.Debug("terminate failed", "pid", proc.Pid(), "error", err)
	}

	select {
	case <-proc.Exited():
		return
	case <-time.After(s.cfg.StopGrace):
	}

	s.logger.Warn("worker ignored terminate, killing", "pid", proc.Pid())
	if err := proc.Kill(); err != nil {
		s.logger.Debug("kill failed", "pid", proc.Pid(), "error", err)
	}
	select {
	case <-proc.Exited():
	case <-time.After(s.cfg.StopGrace):
		s.logger.Error("worker did not exit after kill", "pid", proc.Pid())
	}
}

// Supervise runs argv with inherited stdio between Ensure and Shutdown and
// returns its exit code. Cancelling ctx forwards a terminate to the child.
func (s *Supervisor) Supervise(ctx context.Context, argv []string) int {
	if len(argv) == 0 {
		s.logger.Error("no command to supervise")
		return 2
	}

	mode := s.Ensure(ctx)
	s.logger.Info("starting application", "mode", mode.String(), "command", argv[0])

	shutdownCtx := context.WithoutCancel(ctx)
	defer s.Shutdown(shutdownCtx)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), ModeEnv+"="+mode.String())

	if err := cmd.Start(); err != nil {
		s.logger.Error("start application failed", "error", err)
		return 127
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	var err error
	select {
	case err = <-waitErr:
	case <-ctx.Done():
		s.logger.Info("interrupted, stopping application")
		_ = cmd.Process.Signal(os.Interrupt)
		select {
		case err = <-waitErr:
		case <-time.After(s.cfg.StopGrace):
			_ = cmd.Process.Kill()
			err = <-waitErr
		}
	}

	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
	}
	return 1
}
