package history

import "time"

// Entry is one answered transcription request. Pings are not journalled.
type Entry struct {
	RequestID  string    `gorm:"primaryKey" json:"request_id"`
	AudioFile  string    `gorm:"not null" json:"audio_file"`
	Status     string    `gorm:"not null;index" json:"status"`
	Error      string    `json:"error,omitempty"`
	TextLength int       `json:"text_length"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (Entry) TableName() string {
	return "transcription_history"
}

type Summary struct {
	Total         int64            `json:"total"`
	ByStatus      map[string]int64 `json:"by_status"`
	AvgDurationMs float64          `json:"avg_duration_ms"`
}
