package protocol

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/eleven-am/dictation/internal/shared"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Request
		wantErr bool
	}{
		{
			name:  "valid",
			input: `{"request_id":"abc","audio_file":"/tmp/a.wav"}`,
			want:  Request{RequestID: "abc", AudioFile: "/tmp/a.wav"},
		},
		{
			name:  "ping",
			input: `{"request_id":"abc","audio_file":"test_ping"}`,
			want:  Request{RequestID: "abc", AudioFile: PingAudio},
		},
		{name: "truncated", input: `{"request_id":"abc","audio_`, wantErr: true},
		{name: "empty file", input: ``, wantErr: true},
		{name: "missing id", input: `{"audio_file":"/tmp/a.wav"}`, wantErr: true},
		{name: "missing audio", input: `{"request_id":"abc"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRequest([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, shared.ErrProtocol) {
					t.Fatalf("expected protocol error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "success", input: `{"request_id":"a","text":"hi","status":"success"}`},
		{name: "error", input: `{"request_id":"a","text":"","status":"error","error":"boom"}`},
		{name: "unknown status", input: `{"request_id":"a","text":"","status":"maybe"}`, wantErr: true},
		{name: "partial", input: `{"request_id":"a","te`, wantErr: true},
		{name: "no id", input: `{"text":"hi","status":"success"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeResponse([]byte(tt.input))
			if tt.wantErr != (err != nil) {
				t.Fatalf("wantErr=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEncodeResponse_WireShape(t *testing.T) {
	data, err := EncodeResponse(Pong("id-1"))
	if err != nil {
		t.Fatalf("EncodeResponse() error = %v", err)
	}
	got := string(data)
	if got != `{"request_id":"id-1","text":"pong","status":"success"}` {
		t.Errorf("unexpected wire form %s", got)
	}

	data, err = EncodeResponse(Succeeded("id-2", ""))
	if err != nil {
		t.Fatalf("EncodeResponse() error = %v", err)
	}
	if !strings.Contains(string(data), `"text":""`) {
		t.Errorf("empty text must still be present: %s", data)
	}
}

func TestEncodeRequest_RequiresFields(t *testing.T) {
	if _, err := EncodeRequest(Request{RequestID: "a"}); !errors.Is(err, shared.ErrProtocol) {
		t.Errorf("expected protocol error, got %v", err)
	}
	if _, err := EncodeResponse(Response{RequestID: "a", Status: "odd"}); !errors.Is(err, shared.ErrProtocol) {
		t.Errorf("expected protocol error, got %v", err)
	}
}

func TestNewRequest_UniqueIDs(t *testing.T) {
	a := NewRequest("/tmp/a.wav")
	b := NewRequest("/tmp/a.wav")
	if a.RequestID == b.RequestID {
		t.Error("request ids must be fresh per call")
	}
	if a.IsPing() {
		t.Error("regular request reported as ping")
	}
	if !NewPing().IsPing() {
		t.Error("ping request not recognised")
	}
}

func TestResponse_Result(t *testing.T) {
	ok := Succeeded("a", "hello world").Result()
	if !ok.OK || ok.Text != "hello world" {
		t.Errorf("unexpected success result %+v", ok)
	}

	failed := Failed("a", errors.New("decoder crashed")).Result()
	if failed.OK || failed.Text != "" || failed.Err != "decoder crashed" {
		t.Errorf("unexpected failure result %+v", failed)
	}

	if Failed("a", nil).Error == "" {
		t.Error("nil error must still produce a message")
	}
}

func TestFileNames(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		wantID string
		wantOK bool
	}{
		{"request file", "abc.json", "abc", true},
		{"temp write", ".abc.json.tmp", "", false},
		{"dot json", ".abc.json", "", false},
		{"probe", "probe-123.tmp", "", false},
		{"bare ext", ".json", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := IDFromFileName(tt.file)
			if id != tt.wantID || ok != tt.wantOK {
				t.Errorf("IDFromFileName(%q) = %q, %v", tt.file, id, ok)
			}
		})
	}

	if FileName("abc") != "abc.json" {
		t.Error("FileName mismatch")
	}
}

func TestResult_Kind(t *testing.T) {
	tests := []struct {
		name          string
		result        Result
		wantKind      string
		wantRetryable bool
	}{
		{"success", Success("hi"), "", false},
		{"timeout", Failure(fmt.Errorf("wait: %w", shared.ErrTimeout)), KindTimeout, true},
		{"transport", Failure(fmt.Errorf("publish: %w", shared.ErrTransport)), KindTransport, true},
		{"worker error", Failed("a", errors.New("oom")).Result(), KindCapability, false},
		{"unknown", Failure(errors.New("boom")), "internal", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.result.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", tt.result.Kind, tt.wantKind)
			}
			if tt.result.Retryable() != tt.wantRetryable {
				t.Errorf("Retryable() = %v", tt.result.Retryable())
			}
		})
	}
}
