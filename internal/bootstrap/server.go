package bootstrap

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

// startSlack covers everything fx starts besides the model load.
const startSlack = 30 * time.Second

func NewEchoServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	return e
}

// StartServer serves the status surface on STATUS_ADDR; an empty address
// leaves it off.
func StartServer(lc fx.Lifecycle, e *echo.Echo, cfg *Config, logger *slog.Logger) {
	if cfg.StatusAddr == "" {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info("status server starting", "addr", cfg.StatusAddr)
				if err := e.Start(cfg.StatusAddr); err != nil && err != http.ErrServerClosed {
					logger.Error("status server error", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
}

var ServerModule = fx.Options(
	fx.Provide(NewEchoServer),
	fx.Invoke(StartServer),
)

// NewWorkerApp assembles the long-lived worker process.
func NewWorkerApp(cfg *Config, extra ...fx.Option) *fx.App {
	opts := []fx.Option{
		fx.Supply(cfg),
		fx.Provide(ProvideLogger),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
		}),
		fx.StartTimeout(cfg.ModelLoadTimeout + startSlack),
		InfrastructureModule,
		StoresModule,
		WorkerModule,
		ServerModule,
		HealthModule,
		HandlersModule,
		SocketModule,
	}
	return fx.New(append(opts, extra...)...)
}

func RunWorker() {
	NewWorkerApp(LoadConfig()).Run()
}
