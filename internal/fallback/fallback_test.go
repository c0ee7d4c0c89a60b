package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eleven-am/dictation/internal/capability"
	"github.com/eleven-am/dictation/internal/shared"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type closingModel struct {
	capability.Func
	closed bool
}

func (m *closingModel) Close() error {
	m.closed = true
	return nil
}

func TestRun(t *testing.T) {
	model := &closingModel{Func: func(_ context.Context, path string) (string, error) {
		if strings.HasSuffix(path, "bad.wav") {
			return "", fmt.Errorf("%w: unsupported format", shared.ErrCapability)
		}
		return "one shot text", nil
	}}
	okLoader := capability.LoaderFunc(func(context.Context) (capability.Capability, error) { return model, nil })
	failLoader := capability.LoaderFunc(func(context.Context) (capability.Capability, error) {
		return nil, errors.New("cuda unavailable")
	})

	tests := []struct {
		name      string
		loader    capability.Loader
		args      []string
		wantCode  int
		wantOut   bool
		wantText  string
		wantError string
	}{
		{"success", okLoader, []string{"/tmp/a.wav"}, ExitOK, true, "one shot text", ""},
		{"transcribe error", okLoader, []string{"/tmp/bad.wav"}, ExitFailure, true, "", "unsupported format"},
		{"load error", failLoader, []string{"/tmp/a.wav"}, ExitFailure, true, "", "failed to load model"},
		{"no args", okLoader, nil, ExitUsage, false, "", ""},
		{"too many args", okLoader, []string{"a", "b"}, ExitUsage, false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout bytes.Buffer
			code := Run(context.Background(), tt.loader, tt.args, &stdout, testLogger())
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", code, tt.wantCode)
			}
			if !tt.wantOut {
				if stdout.Len() != 0 {
					t.Errorf("stdout should be empty, got %q", stdout.String())
				}
				return
			}

			dec := json.NewDecoder(&stdout)
			var rec Record
			if err := dec.Decode(&rec); err != nil {
				t.Fatalf("stdout is not a JSON record: %v", err)
			}
			if dec.More() {
				t.Error("stdout must carry exactly one JSON value")
			}
			if rec.Text != tt.wantText || !strings.Contains(rec.Error, tt.wantError) {
				t.Errorf("record = %+v", rec)
			}
		})
	}

	if !model.closed {
		t.Error("model should be closed after use")
	}
}

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    Record
		wantErr bool
	}{
		{"plain", `{"text":"hi"}`, Record{Text: "hi"}, false},
		{"error record", `{"text":"","error":"boom"}`, Record{Error: "boom"}, false},
		{"stray line before", "loading...\n{\"text\":\"hi\"}\n", Record{Text: "hi"}, false},
		{"empty", "  \n", Record{}, true},
		{"garbled", "{\"text\":", Record{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRecord([]byte(tt.out))
			if tt.wantErr {
				if !errors.Is(err, shared.ErrProtocol) {
					t.Fatalf("expected protocol error, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseRecord() = %+v, %v", got, err)
			}
		})
	}
}

// TestHelperProcess plays the one-shot binary for the Invoker tests.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	fmt.Fprintln(os.Stderr, "noisy model logs")
	switch os.Getenv("FALLBACK_HELPER_MODE") {
	case "ok":
		fmt.Println(`{"text": "  from fallback  "}`)
		os.Exit(0)
	case "fail":
		fmt.Println(`{"text": "", "error": "Failed to load model"}`)
		os.Exit(1)
	case "garbage":
		fmt.Println("Traceback (most recent call last):")
		os.Exit(0)
	case "crash":
		os.Exit(3)
	case "hang":
		time.Sleep(time.Minute)
	}
	os.Exit(0)
}

func helperInvoker(t *testing.T, mode string, timeout time.Duration) Invoker {
	t.Helper()
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	t.Setenv("FALLBACK_HELPER_MODE", mode)
	return Invoker{
		Binary:  os.Args[0],
		Args:    []string{"-test.run=TestHelperProcess", "--"},
		Timeout: timeout,
		Logger:  testLogger(),
	}
}

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestInvoker(t *testing.T) {
	tests := []struct {
		mode     string
		timeout  time.Duration
		wantOK   bool
		wantText string
		wantErr  string
	}{
		{"ok", 10 * time.Second, true, "from fallback", ""},
		{"fail", 10 * time.Second, false, "", "Failed to load model"},
		{"garbage", 10 * time.Second, false, "", "fallback output"},
		{"crash", 10 * time.Second, false, "", "exit status 3"},
		{"hang", 300 * time.Millisecond, false, "", "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			res := helperInvoker(t, tt.mode, tt.timeout).Transcribe(context.Background(), writeAudio(t))
			if res.OK != tt.wantOK || res.Text != tt.wantText {
				t.Errorf("result = %+v", res)
			}
			if tt.wantErr != "" && !strings.Contains(res.Err, tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", res.Err, tt.wantErr)
			}
		})
	}
}

func TestInvoker_MissingFile(t *testing.T) {
	inv := Invoker{Binary: "does-not-matter", Logger: testLogger()}
	res := inv.Transcribe(context.Background(), filepath.Join(t.TempDir(), "nope.wav"))
	if res.OK || res.Text != "" || res.Err == "" {
		t.Errorf("unexpected result %+v", res)
	}
}
