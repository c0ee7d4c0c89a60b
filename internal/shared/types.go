package shared

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type BackoffConfig struct {
	Initial     time.Duration
	MaxAttempts int
	MaxDelay    time.Duration
}

// Delay returns the wait before retry number attempt (0-based), doubling from
// Initial and capped at MaxDelay.
func (b BackoffConfig) Delay(attempt int) time.Duration {
	d := b.Initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if b.MaxDelay > 0 && d >= b.MaxDelay {
			return b.MaxDelay
		}
	}
	return d
}

// NewID returns a random UUIDv4 string.
func NewID() string {
	return uuid.NewString()
}

// ShortID returns a compact random token suitable for file names.
func ShortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
