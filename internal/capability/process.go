package capability

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/eleven-am/dictation/internal/shared"
)

const (
	defaultLoadTimeout    = 5 * time.Minute
	defaultRequestTimeout = 2 * time.Minute
	closeGrace            = 3 * time.Second
	maxLineSize           = 4 * 1024 * 1024
)

// ProcessConfig describes a model-host helper. The helper keeps the model
// resident and speaks newline-delimited JSON:
//
//	helper -> {"ready": true}                                  once, after loading
//	host   -> {"request_id": "...", "audio_file": "/path.wav"}
//	helper -> {"request_id": "...", "text": "...", "error": ""}
type ProcessConfig struct {
	Command        string
	Args           []string
	WorkDir        string
	LoadTimeout    time.Duration
	RequestTimeout time.Duration
}

type ProcessLoader struct {
	cfg    ProcessConfig
	logger *slog.Logger
}

func NewProcessLoader(cfg ProcessConfig, logger *slog.Logger) *ProcessLoader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	return &ProcessLoader{cfg: cfg, logger: logger.With("component", "model_process")}
}

type helperReady struct {
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

type helperRequest struct {
	RequestID string `json:"request_id"`
	AudioFile string `json:"audio_file"`
}

type helperResponse struct {
	RequestID string `json:"request_id"`
	Text      string `json:"text"`
	Error     string `json:"error,omitempty"`
}

type Process struct {
	cmd            *exec.Cmd
	stdin          io.WriteCloser
	lines          chan []byte
	exited         chan struct{}
	exitErr        error
	requestTimeout time.Duration
	logger         *slog.Logger

	mu        sync.Mutex
	closeOnce sync.Once
}

func (l *ProcessLoader) Load(ctx context.Context) (Capability, error) {
	if l.cfg.Command == "" {
		return nil, fmt.Errorf("%w: no model command configured", shared.ErrCapability)
	}
	path, err := exec.LookPath(l.cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrCapability, err)
	}

	cmd := exec.Command(path, l.cfg.Args...)
	cmd.Dir = l.cfg.WorkDir
	cmd.Env = os.Environ()
	cmd.Stderr = shared.NewLogWriter(l.logger, "model stderr")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", shared.ErrCapability, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", shared.ErrCapability, err)
	}

	l.logger.Info("starting model process", "command", path, "args", l.cfg.Args)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start model process: %v", shared.ErrCapability, err)
	}

	p := &Process{
		cmd:            cmd,
		stdin:          stdin,
		lines:          make(chan []byte, 64),
		exited:         make(chan struct{}),
		requestTimeout: l.cfg.RequestTimeout,
		logger:         l.logger,
	}
	go p.readLoop(stdout)

	if err := p.waitReady(ctx, l.cfg.LoadTimeout); err != nil {
		p.kill()
		return nil, err
	}

	l.logger.Info("model process ready", "pid", cmd.Process.Pid)
	return p, nil
}

func (p *Process) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		select {
		case p.lines <- line:
		default:
			p.logger.Warn("model output backlog full, dropping line")
		}
	}
	p.exitErr = p.cmd.Wait()
	close(p.exited)
}

func (p *Process) waitReady(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case line := <-p.lines:
			var ready helperReady
			if err := json.Unmarshal(line, &ready); err != nil {
				p.logger.Debug("ignoring model output before ready", "line", string(line))
				continue
			}
			if !ready.Ready {
				return fmt.Errorf("%w: model failed to load: %s", shared.ErrCapability, ready.Error)
			}
			return nil
		case <-p.exited:
			return fmt.Errorf("%w: model process exited during load: %v", shared.ErrCapability, p.exitErr)
		case <-timer.C:
			return fmt.Errorf("%w: model not ready after %s", shared.ErrCapability, timeout)
		case <-ctx.Done():
			return fmt.Errorf("%w: load cancelled: %v", shared.ErrCapability, ctx.Err())
		}
	}
}

func (p *Process) Transcribe(ctx context.Context, audioPath string) (string, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return "", fmt.Errorf("%w: audio unreadable: %v", shared.ErrCapability, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: audio path %s is a directory", shared.ErrCapability, audioPath)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.exited:
		return "", fmt.Errorf("%w: model process not running: %v", shared.ErrCapability, p.exitErr)
	default:
	}

	id := shared.ShortID()
	payload, err := json.Marshal(helperRequest{RequestID: id, AudioFile: audioPath})
	if err != nil {
		return "", fmt.Errorf("%w: encode helper request: %v", shared.ErrCapability, err)
	}
	if _, err := p.stdin.Write(append(payload, '\n')); err != nil {
		return "", fmt.Errorf("%w: write to model process: %v", shared.ErrCapability, err)
	}

	timer := time.NewTimer(p.requestTimeout)
	defer timer.Stop()

	for {
		select {
		case line := <-p.lines:
			var resp helperResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				p.logger.Debug("ignoring non-json model output", "line", string(line))
				continue
			}
			if resp.RequestID != id {
				p.logger.Debug("discarding stale model response", "request_id", resp.RequestID)
				continue
			}
			if resp.Error != "" {
				return "", fmt.Errorf("%w: %s", shared.ErrCapability, resp.Error)
			}
			return strings.TrimSpace(resp.Text), nil
		case <-p.exited:
			return "", fmt.Errorf("%w: model process exited: %v", shared.ErrCapability, p.exitErr)
		case <-timer.C:
			return "", fmt.Errorf("%w: model did not answer within %s", shared.ErrCapability, p.requestTimeout)
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", shared.ErrCapability, ctx.Err())
		}
	}
}

// Close asks the helper to exit by closing its stdin and kills it if it is
// still running after a short grace period.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		_ = p.stdin.Close()
		select {
		case <-p.exited:
		case <-time.After(closeGrace):
			p.kill()
		}
	})
	return nil
}

func (p *Process) kill() {
	if p.cmd.Process != nil {
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.logger.Warn("kill model process failed", "error", err)
		}
	}
}
