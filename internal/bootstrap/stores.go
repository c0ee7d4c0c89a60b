package bootstrap

import (
	"github.com/eleven-am/dictation/internal/history"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// ProvideHistoryStore returns nil when the journal is disabled.
func ProvideHistoryStore(db *gorm.DB) *history.Store {
	if db == nil {
		return nil
	}
	return history.NewStore(db)
}

func RunMigrations(store *history.Store) error {
	if store == nil {
		return nil
	}
	return store.Migrate()
}

var StoresModule = fx.Options(
	fx.Provide(ProvideHistoryStore),
	fx.Invoke(RunMigrations),
)
