package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// Process is a started worker process.
type Process interface {
	Pid() int
	// Terminate asks the process to exit gracefully.
	Terminate() error
	Kill() error
	// Exited is closed once the process has been reaped.
	Exited() <-chan struct{}
}

type Launcher interface {
	Launch(ctx context.Context) (Process, error)
}

// ExecLauncher starts the worker binary detached from the caller's process
// group with its output appended to LogPath.
type ExecLauncher struct {
	Binary  string
	Args    []string
	LogPath string
	Env     []string
	Logger  *slog.Logger
}

func (l ExecLauncher) Launch(ctx context.Context) (Process, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bin, err := exec.LookPath(l.Binary)
	if err != nil {
		return nil, fmt.Errorf("worker binary %q: %w", l.Binary, err)
	}

	logPath := l.LogPath
	if logPath == "" {
		logPath = os.DevNull
	}
	out, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open worker log: %w", err)
	}
	defer out.Close()

	cmd := exec.Command(bin, l.Args...)
	cmd.Stdout = out
	cmd.Stderr = out
	if len(l.Env) > 0 {
		cmd.Env = append(os.Environ(), l.Env...)
	}
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	logger.Info("worker process started", "pid", cmd.Process.Pid, "binary", bin, "log", logPath)

	p := &execProcess{cmd: cmd, exited: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		logger.Info("worker process exited", "pid", cmd.Process.Pid, "error", err)
		close(p.exited)
	}()
	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	exited chan struct{}
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Terminate() error {
	return terminate(p.cmd)
}

func (p *execProcess) Kill() error {
	return kill(p.cmd)
}

func (p *execProcess) Exited() <-chan struct{} {
	return p.exited
}
