package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Owner struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"owner_id"`
	Name  string    `gorm:"type:varchar(255);not null" json:"name"`
	Email string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
}

func (Owner) TableName() string {
	return "owners"
}

func (o *Owner) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OwnerEventMap associates owners with events. The composite key forbids duplicate pairs.
type OwnerEventMap struct {
	OwnerID uuid.UUID `gorm:"type:uuid;primaryKey" json:"owner_id"`
	EventID uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"event_id"`
	Creator bool      `gorm:"not null;default:false" json:"creator"`
}

func (OwnerEventMap) TableName() string {
	return "owner_event_map"
}

// EventAttendee is maintained by the registration front-end; the gateway only counts rows.
type EventAttendee struct {
	EventID uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID  string    `gorm:"type:varchar(255);primaryKey"`
	Active  bool      `gorm:"not null;default:true"`
}

func (EventAttendee) TableName() string {
	return "event_attendees"
}
