package protocol

import (
	"github.com/eleven-am/dictation/internal/shared"
)

const (
	// PingAudio is the reserved audio_file value of a liveness probe.
	PingAudio = "test_ping"
	PongText  = "pong"

	FileExt = ".json"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

func (s Status) Valid() bool {
	return s == StatusSuccess || s == StatusError
}

type Request struct {
	RequestID string `json:"request_id"`
	AudioFile string `json:"audio_file"`
}

func NewRequest(audioFile string) Request {
	return Request{RequestID: shared.NewID(), AudioFile: audioFile}
}

func NewPing() Request {
	return NewRequest(PingAudio)
}

func (r Request) IsPing() bool {
	return r.AudioFile == PingAudio
}

type Response struct {
	RequestID string `json:"request_id"`
	Text      string `json:"text"`
	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`
}

func Pong(id string) Response {
	return Response{RequestID: id, Text: PongText, Status: StatusSuccess}
}

func Succeeded(id, text string) Response {
	return Response{RequestID: id, Text: text, Status: StatusSuccess}
}

func Failed(id string, err error) Response {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Response{RequestID: id, Text: "", Status: StatusError, Error: msg}
}

func (r Response) Result() Result {
	if r.Status == StatusSuccess {
		return Success(r.Text)
	}
	return Result{Err: r.Error, Kind: KindCapability}
}

// Result is what every transcription path hands back to the caller. Text is
// always safe to use; OK, Err and Kind are diagnostics.
type Result struct {
	Text string `json:"text"`
	OK   bool   `json:"ok"`
	Err  string `json:"error,omitempty"`
	// Kind is the failure category as named by shared.Classify.
	Kind string `json:"kind,omitempty"`
}

const (
	KindTransport  = "transport"
	KindTimeout    = "timeout"
	KindCapability = "capability"
)

// Retryable reports whether another path might succeed where this one failed.
func (r Result) Retryable() bool {
	return !r.OK && (r.Kind == KindTimeout || r.Kind == KindTransport)
}

func Success(text string) Result {
	return Result{Text: text, OK: true}
}

func Failure(err error) Result {
	if err == nil {
		return Result{Err: "unknown error", Kind: "internal"}
	}
	return Result{Err: err.Error(), Kind: shared.Classify(err)}
}
