package bootstrap

import (
	"context"
	"log/slog"

	"github.com/eleven-am/dictation/internal/capability"
	"github.com/eleven-am/dictation/internal/client"
	"github.com/eleven-am/dictation/internal/history"
	"github.com/eleven-am/dictation/internal/mailbox"
	"github.com/eleven-am/dictation/internal/worker"
	"go.uber.org/fx"
)

func ProvideLoader(cfg *Config, logger *slog.Logger) (capability.Loader, error) {
	return capability.New(cfg.CapabilityConfig(), logger)
}

func ProvideWorker(pair mailbox.Pair, loader capability.Loader, store *history.Store, cfg *Config, logger *slog.Logger) *worker.Server {
	var opts []worker.Option
	if store != nil {
		opts = append(opts, worker.WithJournal(store))
	}
	return worker.New(pair, loader, cfg.WorkerConfig(), logger, opts...)
}

// ProvideClient is the in-process client the HTTP and socket surfaces use to
// reach the worker through its own mailboxes.
func ProvideClient(pair mailbox.Pair, cfg *Config, logger *slog.Logger) *client.Client {
	return client.New(pair, cfg.ClientConfig(), logger)
}

// StartWorker loads the model during fx start, so a load failure aborts the
// application, then runs the loop until stop.
func StartWorker(lc fx.Lifecycle, w *worker.Server, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := w.Load(ctx); err != nil {
				return err
			}
			go func() {
				if err := w.Run(context.Background()); err != nil {
					logger.Error("worker loop exited", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			w.Stop()
			return w.Wait(ctx)
		},
	})
}

var WorkerModule = fx.Options(
	fx.Provide(
		ProvideLoader,
		ProvideWorker,
		ProvideClient,
	),
	fx.Invoke(StartWorker),
)
