package bootstrap

import (
	"github.com/eleven-am/dictation/internal/health"
	"github.com/eleven-am/dictation/internal/history"
	"github.com/eleven-am/dictation/internal/mailbox"
	"github.com/eleven-am/dictation/internal/worker"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const version = "1.0.0"

func ProvideHealthHandler(w *worker.Server, pair mailbox.Pair, db *gorm.DB, store *history.Store) *health.Handler {
	return health.NewHandler(w, pair, db, store, version)
}

func RegisterHealthRoutes(e *echo.Echo, h *health.Handler) {
	h.RegisterRoutes(e)
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
	fx.Invoke(RegisterHealthRoutes),
)
