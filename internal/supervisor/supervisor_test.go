package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		ProbeInterval:  5 * time.Millisecond,
		StartupTimeout: 100 * time.Millisecond,
		StopGrace:      50 * time.Millisecond,
	}
}

type mockProber struct {
	reachable atomic.Bool
	alive     atomic.Bool
	pings     atomic.Int32
	aliveAt   int32
}

func (m *mockProber) IsReachable(context.Context) bool { return m.reachable.Load() }

func (m *mockProber) Ping(context.Context) bool {
	n := m.pings.Add(1)
	if m.aliveAt > 0 && n >= m.aliveAt {
		return true
	}
	return m.alive.Load()
}

type mockProcess struct {
	exited     chan struct{}
	closeOnce  sync.Once
	ignoreTerm bool
	terminated atomic.Bool
	killed     atomic.Bool
}

func newMockProcess() *mockProcess {
	return &mockProcess{exited: make(chan struct{})}
}

func (p *mockProcess) Pid() int { return 4242 }

func (p *mockProcess) exit() { p.closeOnce.Do(func() { close(p.exited) }) }

func (p *mockProcess) Terminate() error {
	p.terminated.Store(true)
	if !p.ignoreTerm {
		p.exit()
	}
	return nil
}

func (p *mockProcess) Kill() error {
	p.killed.Store(true)
	p.exit()
	return nil
}

func (p *mockProcess) Exited() <-chan struct{} { return p.exited }

type mockLauncher struct {
	proc     *mockProcess
	err      error
	launches atomic.Int32
	onLaunch func()
}

func (l *mockLauncher) Launch(context.Context) (Process, error) {
	l.launches.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	if l.onLaunch != nil {
		l.onLaunch()
	}
	return l.proc, nil
}

type mockPurger struct {
	purges atomic.Int32
}

func (m *mockPurger) Purge(context.Context) error {
	m.purges.Add(1)
	return nil
}

func TestEnsure_ReusesRunningWorker(t *testing.T) {
	prober := &mockProber{}
	prober.reachable.Store(true)
	prober.alive.Store(true)
	launcher := &mockLauncher{proc: newMockProcess()}
	purger := &mockPurger{}
	s := New(testConfig(), prober, launcher, purger, testLogger())

	if mode := s.Ensure(context.Background()); mode != ModeServer {
		t.Fatalf("Ensure() = %s, want server", mode)
	}
	if launcher.launches.Load() != 0 {
		t.Error("should not launch when a worker already answers")
	}
	if s.Owned() {
		t.Error("reused worker must not be owned")
	}

	s.Shutdown(context.Background())
	if launcher.proc.terminated.Load() {
		t.Error("shutdown must not stop a worker it did not start")
	}
	if purger.purges.Load() != 0 {
		t.Error("shutdown must not purge the mailboxes of a worker it did not start")
	}
}

func TestEnsure_LaunchesAndWaits(t *testing.T) {
	prober := &mockProber{aliveAt: 3}
	proc := newMockProcess()
	launcher := &mockLauncher{proc: proc, onLaunch: func() { prober.reachable.Store(true) }}
	purger := &mockPurger{}
	s := New(testConfig(), prober, launcher, purger, testLogger())

	if mode := s.Ensure(context.Background()); mode != ModeServer {
		t.Fatalf("Ensure() = %s, want server", mode)
	}
	if !s.Owned() {
		t.Error("launched worker should be owned")
	}

	s.Shutdown(context.Background())
	if !proc.terminated.Load() {
		t.Error("owned worker should be terminated")
	}
	if proc.killed.Load() {
		t.Error("worker that exits on terminate should not be killed")
	}
	if purger.purges.Load() != 1 {
		t.Error("shutdown should purge mailboxes")
	}
}

func TestEnsure_FallbackCases(t *testing.T) {
	tests := []struct {
		name       string
		launchErr  error
		exitEarly  bool
		wantStop   bool
		maxElapsed time.Duration
	}{
		{"launch fails", errors.New("no such binary"), false, false, 50 * time.Millisecond},
		{"exits during startup", nil, true, false, 50 * time.Millisecond},
		{"never ready", nil, false, true, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := newMockProcess()
			if tt.exitEarly {
				proc.exit()
			}
			prober := &mockProber{}
			prober.reachable.Store(true)
			s := New(testConfig(), prober, &mockLauncher{proc: proc, err: tt.launchErr}, &mockPurger{}, testLogger())

			start := time.Now()
			if mode := s.Ensure(context.Background()); mode != ModeFallback {
				t.Fatalf("Ensure() = %s, want fallback", mode)
			}
			if elapsed := time.Since(start); elapsed > tt.maxElapsed {
				t.Errorf("Ensure() took %v", elapsed)
			}
			if proc.terminated.Load() != tt.wantStop {
				t.Errorf("terminated = %v, want %v", proc.terminated.Load(), tt.wantStop)
			}
			if s.Owned() {
				t.Error("fallback must not own a worker")
			}

			purger := s.purger.(*mockPurger)
			s.Shutdown(context.Background())
			wantPurges := int32(1)
			if tt.launchErr != nil {
				wantPurges = 0
			}
			if purger.purges.Load() != wantPurges {
				t.Errorf("purges = %d, want %d", purger.purges.Load(), wantPurges)
			}
		})
	}
}

func TestShutdown_KillsAfterGrace(t *testing.T) {
	prober := &mockProber{}
	proc := newMockProcess()
	proc.ignoreTerm = true
	launcher := &mockLauncher{proc: proc, onLaunch: func() {
		prober.reachable.Store(true)
		prober.alive.Store(true)
	}}
	s := New(testConfig(), prober, launcher, &mockPurger{}, testLogger())

	if mode := s.Ensure(context.Background()); mode != ModeServer {
		t.Fatalf("Ensure() = %s", mode)
	}

	start := time.Now()
	s.Shutdown(context.Background())
	if !proc.terminated.Load() || !proc.killed.Load() {
		t.Errorf("terminated=%v killed=%v", proc.terminated.Load(), proc.killed.Load())
	}
	if time.Since(start) < testConfig().StopGrace {
		t.Error("kill should wait for the stop grace period")
	}
}

func TestMode_String(t *testing.T) {
	if ModeServer.String() != "server" || ModeFallback.String() != "fallback" {
		t.Error("unexpected mode names")
	}
}

// TestHelperProcess stands in for both the worker and the supervised
// application when tests re-execute the test binary.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("SUPERVISOR_HELPER_MODE") {
	case "worker":
		fmt.Println("worker booting")
		time.Sleep(time.Minute)
		os.Exit(0)
	case "app":
		fmt.Fprintln(os.Stderr, "mode="+os.Getenv(ModeEnv))
		if os.Getenv(ModeEnv) == "server" {
			os.Exit(0)
		}
		os.Exit(7)
	}
	os.Exit(0)
}

func TestExecLauncher_StartAndTerminate(t *testing.T) {
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	logPath := filepath.Join(t.TempDir(), "worker.log")

	l := ExecLauncher{
		Binary:  os.Args[0],
		Args:    []string{"-test.run=TestHelperProcess", "--"},
		LogPath: logPath,
		Env:     []string{"SUPERVISOR_HELPER_MODE=worker"},
		Logger:  testLogger(),
	}
	proc, err := l.Launch(context.Background())
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if proc.Pid() <= 0 {
		t.Error("expected a pid")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		data, _ := os.ReadFile(logPath)
		if strings.Contains(string(data), "worker booting") {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := proc.Terminate(); err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}
	select {
	case <-proc.Exited():
	case <-time.After(5 * time.Second):
		proc.Kill()
		t.Fatal("worker did not exit after terminate")
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "worker booting") {
		t.Errorf("worker output should go to the log, got %q", data)
	}
}

func TestExecLauncher_MissingBinary(t *testing.T) {
	l := ExecLauncher{Binary: "definitely-not-a-dictation-worker", Logger: testLogger()}
	if _, err := l.Launch(context.Background()); err == nil {
		t.Error("expected error for missing binary")
	}
}

func TestSupervise_ExitCodeAndMode(t *testing.T) {
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	t.Setenv("SUPERVISOR_HELPER_MODE", "app")
	argv := []string{os.Args[0], "-test.run=TestHelperProcess", "--"}

	tests := []struct {
		name     string
		alive    bool
		wantCode int
	}{
		{"server mode", true, 0},
		{"fallback mode", false, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober := &mockProber{}
			prober.reachable.Store(tt.alive)
			prober.alive.Store(tt.alive)
			purger := &mockPurger{}
			launcher := &mockLauncher{err: errors.New("no worker binary")}
			s := New(testConfig(), prober, launcher, purger, testLogger())

			if code := s.Supervise(context.Background(), argv); code != tt.wantCode {
				t.Errorf("Supervise() = %d, want %d", code, tt.wantCode)
			}
			if purger.purges.Load() != 0 {
				t.Error("Supervise must not purge when it never launched a worker")
			}
		})
	}
}

func TestSupervise_NoCommand(t *testing.T) {
	s := New(testConfig(), &mockProber{}, &mockLauncher{}, &mockPurger{}, testLogger())
	if code := s.Supervise(context.Background(), nil); code != 2 {
		t.Errorf("Supervise() = %d, want 2", code)
	}
}
