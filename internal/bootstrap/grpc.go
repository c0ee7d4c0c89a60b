package bootstrap

import (
	"context"
	"log/slog"

	"github.com/eleven-am/dictation/internal/client"
	"github.com/eleven-am/dictation/internal/socket"
	"go.uber.org/fx"
)

func NewSocketServer(c *client.Client, logger *slog.Logger) *socket.Server {
	return socket.NewServer(c, logger)
}

// StartSocketServer binds SOCKET_PATH; an empty path leaves the bridge off.
func StartSocketServer(lc fx.Lifecycle, server *socket.Server, cfg *Config, logger *slog.Logger) {
	if cfg.SocketPath == "" {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			lis, err := socket.Listen(cfg.SocketPath)
			if err != nil {
				return err
			}
			go func() {
				if err := server.Serve(lis); err != nil {
					logger.Error("socket server error", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			server.Stop()
			return nil
		},
	})
}

var SocketModule = fx.Options(
	fx.Provide(NewSocketServer),
	fx.Invoke(StartSocketServer),
)
