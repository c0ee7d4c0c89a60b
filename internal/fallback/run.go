package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/eleven-am/dictation/internal/capability"
	"github.com/eleven-am/dictation/internal/shared"
)

const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// Record is the single JSON value the one-shot process prints.
type Record struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Run is the body of the one-shot process. Diagnostics go to logger; stdout
// receives exactly one Record unless the arguments are wrong.
func Run(ctx context.Context, loader capability.Loader, args []string, stdout io.Writer, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}
	if len(args) != 1 {
		logger.Error("usage: transcribe <audio_file_path>")
		return ExitUsage
	}
	audioPath := args[0]

	model, err := loader.Load(ctx)
	if err != nil {
		logger.Error("model load failed", "error", err)
		emit(stdout, Record{Error: "failed to load model: " + err.Error()}, logger)
		return ExitFailure
	}
	defer func() {
		if err := model.Close(); err != nil {
			logger.Warn("close model failed", "error", err)
		}
	}()

	text, err := model.Transcribe(ctx, audioPath)
	if err != nil {
		logger.Error("transcription failed", "path", audioPath, "error", err)
		emit(stdout, Record{Error: err.Error()}, logger)
		return ExitFailure
	}

	emit(stdout, Record{Text: text}, logger)
	return ExitOK
}

func emit(w io.Writer, rec Record, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(rec); err != nil {
		logger.Error("write result failed", "error", err)
	}
}

// ParseRecord reads the record printed by the one-shot process. Only the last
// non-empty line is considered.
func ParseRecord(out []byte) (Record, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return Record{}, fmt.Errorf("%w: fallback produced no output", shared.ErrProtocol)
	}
	if i := bytes.LastIndexByte(out, '\n'); i >= 0 {
		out = bytes.TrimSpace(out[i+1:])
	}
	var rec Record
	if err := json.Unmarshal(out, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: fallback output: %v", shared.ErrProtocol, err)
	}
	return rec, nil
}
