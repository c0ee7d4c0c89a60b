package history

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/eleven-am/dictation/internal/worker"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 500
)

var ErrDisabled = errors.New("history disabled")

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn: postgres URLs use the postgres driver, anything else
// is a sqlite file path.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, ErrDisabled
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return gorm.Open(postgres.Open(dsn), cfg)
	}
	return gorm.Open(sqlite.Open(dsn), cfg)
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Entry{})
}

func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.RequestID == "" {
		return errors.New("entry has no request id")
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&e).Error
}

// RecordOutcome lets the store act as the worker's journal.
func (s *Store) RecordOutcome(ctx context.Context, o worker.Outcome) error {
	return s.Record(ctx, Entry{
		RequestID:  o.RequestID,
		AudioFile:  o.AudioFile,
		Status:     string(o.Status),
		Error:      o.Error,
		TextLength: len(o.Text),
		DurationMs: o.Duration.Milliseconds(),
		CreatedAt:  o.At,
	})
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	var entries []Entry
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

func (s *Store) Summary(ctx context.Context) (Summary, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&Entry{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return Summary{}, fmt.Errorf("count by status: %w", err)
	}

	sum := Summary{ByStatus: make(map[string]int64, len(rows))}
	for _, r := range rows {
		sum.ByStatus[r.Status] = r.Count
		sum.Total += r.Count
	}
	if sum.Total == 0 {
		return sum, nil
	}

	var avg struct{ Avg float64 }
	err = s.db.WithContext(ctx).Model(&Entry{}).
		Select("avg(duration_ms) as avg").
		Scan(&avg).Error
	if err != nil {
		return Summary{}, fmt.Errorf("average duration: %w", err)
	}
	sum.AvgDurationMs = avg.Avg
	return sum, nil
}
