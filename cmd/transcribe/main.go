package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/eleven-am/dictation/internal/bootstrap"
	"github.com/eleven-am/dictation/internal/capability"
	"github.com/eleven-am/dictation/internal/fallback"
)

func main() {
	cfg := bootstrap.LoadConfig()
	logger := bootstrap.ProvideLogger(cfg).With("component", "transcribe")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	loader, err := bootstrap.NewFallbackLoader(cfg, logger)
	if err != nil {
		// Still answer with a record so the caller sees why.
		loader = capability.LoaderFunc(func(context.Context) (capability.Capability, error) {
			return nil, err
		})
	}
	code := fallback.Run(ctx, loader, os.Args[1:], os.Stdout, logger)
	stop()
	os.Exit(code)
}
