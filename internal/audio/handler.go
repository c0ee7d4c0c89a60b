package audio

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eleven-am/dictation/internal/protocol"
	"github.com/eleven-am/dictation/internal/shared"
	"github.com/labstack/echo/v4"
)

const (
	maxFileSize       = 25 * 1024 * 1024
	defaultUploadWait = 30 * time.Second
)

// Transcriber submits an audio file that already exists on disk.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, timeout time.Duration) protocol.Result
}

type Handler struct {
	transcriber Transcriber
	uploadDir   string
	timeout     time.Duration
	logger      *slog.Logger
}

func NewHandler(transcriber Transcriber, uploadDir string, timeout time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}
	if timeout <= 0 {
		timeout = defaultUploadWait
	}
	return &Handler{
		transcriber: transcriber,
		uploadDir:   uploadDir,
		timeout:     timeout,
		logger:      logger.With("handler", "audio"),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/transcriptions", h.HandleTranscriptions)
}

type TranscriptionResponse struct {
	Text string `json:"text"`
}

// HandleTranscriptions stores the uploaded file where the worker can read it
// and waits for the worker's answer.
// @Summary      Create transcription
// @Description  Transcribes an uploaded audio file with the already-loaded worker model.
// @Tags         audio
// @Accept       multipart/form-data
// @Produce      json,text/plain
// @Param        file formData file true "Audio file to transcribe (max 25MB)"
// @Param        response_format formData string false "Output format: json or text" default(json)
// @Success      200 {object} TranscriptionResponse "Transcription result (json format)"
// @Success      200 {string} string "Plain text transcription (text format)"
// @Failure      400 {object} shared.APIError "Invalid request (missing file)"
// @Failure      413 {object} shared.APIError "File too large (max 25MB)"
// @Failure      500 {object} shared.APIError "Transcription failed"
// @Router       /v1/audio/transcriptions [post]
func (h *Handler) HandleTranscriptions(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return shared.BadRequest("missing_file", "File is required")
	}

	if file.Size > maxFileSize {
		return shared.NewAPIError("file_too_large", "File too large (max 25MB)").ToHTTP(http.StatusRequestEntityTooLarge)
	}

	src, err := file.Open()
	if err != nil {
		return shared.InternalError("file_error", "Failed to open file")
	}
	defer src.Close()

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext == "" {
		ext = ".wav"
	}
	dst, err := os.CreateTemp(h.uploadDir, "upload-*"+ext)
	if err != nil {
		h.logger.Error("create upload file failed", "error", err)
		return shared.InternalError("file_error", "Failed to store file")
	}
	path := dst.Name()
	defer os.Remove(path)

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return shared.InternalError("file_error", "Failed to read file")
	}
	if err := dst.Close(); err != nil {
		return shared.InternalError("file_error", "Failed to store file")
	}

	result := h.transcriber.Transcribe(c.Request().Context(), path, h.timeout)
	if !result.OK {
		h.logger.Warn("transcription failed", "file", file.Filename, "error", result.Err)
		msg := result.Err
		if msg == "" {
			msg = "Transcription failed"
		}
		return shared.InternalError("transcription_failed", msg)
	}

	if c.FormValue("response_format") == "text" {
		return c.String(http.StatusOK, result.Text)
	}
	return c.JSON(http.StatusOK, TranscriptionResponse{Text: result.Text})
}
