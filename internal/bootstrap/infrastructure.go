package bootstrap

import (
	"fmt"

	"github.com/eleven-am/dictation/internal/history"
	"github.com/eleven-am/dictation/internal/mailbox"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideRedisClient(cfg *Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// NewMailboxPair builds the request/response mailboxes for cfg.MailboxBackend.
// The redis client is only dialled for the redis backend.
func NewMailboxPair(cfg *Config) (mailbox.Pair, error) {
	switch cfg.MailboxBackend {
	case "", MailboxDir:
		return mailbox.NewDirPair(cfg.RequestDir, cfg.ResponseDir), nil
	case MailboxRedis:
		return mailbox.NewRedisPair(ProvideRedisClient(cfg), cfg.RedisPrefix), nil
	case MailboxMemory:
		return mailbox.NewMemoryPair(), nil
	default:
		return mailbox.Pair{}, fmt.Errorf("unknown mailbox backend %q", cfg.MailboxBackend)
	}
}

func ProvideMailboxPair(cfg *Config) (mailbox.Pair, error) {
	return NewMailboxPair(cfg)
}

// ProvideDatabase opens the journal database, or returns nil when HISTORY_DSN
// is unset.
func ProvideDatabase(cfg *Config) (*gorm.DB, error) {
	if cfg.HistoryDSN == "" {
		return nil, nil
	}
	return history.Open(cfg.HistoryDSN)
}

var InfrastructureModule = fx.Options(
	fx.Provide(
		ProvideMailboxPair,
		ProvideDatabase,
	),
)
