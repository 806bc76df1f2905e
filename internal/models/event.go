package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Event struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"event_id"`
	Name          string    `gorm:"type:varchar(255);not null" json:"name"`
	AuthTokenHash string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"-"`
	MaxTokenCap   int64     `gorm:"not null;default:0;check:max_token_cap >= 0" json:"max_token_cap"`
	// Unlimited must be set explicitly. A zero MaxTokenCap is a zero budget.
	Unlimited bool      `gorm:"not null;default:false" json:"unlimited"`
	Active    bool      `gorm:"not null;default:false" json:"active"`
	StartDate time.Time `gorm:"not null" json:"start_date"`
	EndDate   time.Time `gorm:"not null" json:"end_date"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

func (Event) TableName() string {
	return "events"
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// Usable reports whether the event may authenticate requests at now.
// Both window bounds are inclusive.
func (e *Event) Usable(now time.Time) bool {
	if e == nil || !e.Active {
		return false
	}
	return !now.Before(e.StartDate) && !now.After(e.EndDate)
}

// Remaining returns the tokens left under the cap, or -1 for unlimited events.
func (e *Event) Remaining(used int64) int64 {
	if e.Unlimited {
		return -1
	}
	if used >= e.MaxTokenCap {
		return 0
	}
	return e.MaxTokenCap - used
}
