package models

import (
	"time"

	"github.com/google/uuid"
)

// ModelCounts is the usage aggregate for one (event, resource) pair.
// TotalTokens is always PromptTokens + CompletionTokens.
type ModelCounts struct {
	EventID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	Resource         string    `gorm:"type:varchar(64);primaryKey" json:"resource"`
	Count            int64     `gorm:"not null;default:0" json:"count"`
	PromptTokens     int64     `gorm:"not null;default:0" json:"prompt_tokens"`
	CompletionTokens int64     `gorm:"not null;default:0" json:"completion_tokens"`
	TotalTokens      int64     `gorm:"not null;default:0" json:"total_tokens"`
	UpdatedAt        time.Time `json:"-"`
}

func (ModelCounts) TableName() string {
	return "model_counts"
}

// EventUsage holds the per-event counters: cumulative tokens for the quota and the request count.
type EventUsage struct {
	EventID      uuid.UUID `gorm:"type:uuid;primaryKey"`
	TokensUsed   int64     `gorm:"not null;default:0"`
	RequestCount int64     `gorm:"not null;default:0"`
	UpdatedAt    time.Time
}

func (EventUsage) TableName() string {
	return "event_usage"
}

type EventMetric struct {
	EventID       uuid.UUID     `json:"event_id"`
	AttendeeCount int64         `json:"attendee_count"`
	RequestCount  int64         `json:"request_count"`
	ModelData     []ModelCounts `json:"model_data"`
}

// ChartData is a growth snapshot, written once per event per UTC day.
type ChartData struct {
	EventID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	DateStamp time.Time `gorm:"type:date;primaryKey" json:"date_stamp"`
	Attendees int64     `gorm:"not null" json:"attendees"`
}

func (ChartData) TableName() string {
	return "chart_data"
}

// Period truncates t to the UTC day used as a ChartData key.
func Period(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
