package shared

import (
	"log/slog"
	"strings"
)

// LogWriter turns a child process's output stream into debug log lines.
type LogWriter struct {
	logger *slog.Logger
	msg    string
}

func NewLogWriter(logger *slog.Logger, msg string) *LogWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogWriter{logger: logger, msg: msg}
}

func (w *LogWriter) Write(b []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(b), "\n"), "\n") {
		if line != "" {
			w.logger.Debug(w.msg, "line", line)
		}
	}
	return len(b), nil
}
