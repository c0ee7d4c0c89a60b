package bootstrap

import (
	"log/slog"
	"os"

	"github.com/eleven-am/dictation/internal/audio"
	"github.com/eleven-am/dictation/internal/client"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/fx"
)

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ProvideLogger logs JSON to stderr; stdout belongs to the one-shot
// process's result record.
func ProvideLogger(cfg *Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
}

func ProvideAudioHandler(c *client.Client, cfg *Config, logger *slog.Logger) *audio.Handler {
	return audio.NewHandler(c, "", cfg.RequestTimeout, logger)
}

func RegisterRoutes(e *echo.Echo, audioHandler *audio.Handler) {
	api := e.Group("/v1")
	audioHandler.RegisterRoutes(api.Group("/audio"))

	e.GET("/swagger/*", echoSwagger.WrapHandler)
}

var HandlersModule = fx.Options(
	fx.Provide(ProvideAudioHandler),
	fx.Invoke(RegisterRoutes),
)
