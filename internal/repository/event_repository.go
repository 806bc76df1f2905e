package repository

import (
	"context"

	"eventproxy/internal/models"
	apperrors "eventproxy/internal/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventRepository is the read side of the administrative store for events.
type EventRepository interface {
	// ResolveEventByToken returns the event stored under digest, regardless of its
	// active flag or window. Callers decide usability.
	ResolveEventByToken(ctx context.Context, digest string) (*models.Event, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	ListActiveEvents(ctx context.Context) ([]models.Event, error)
	CountAttendees(ctx context.Context, eventID uuid.UUID) (int64, error)
}

type eventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) ResolveEventByToken(ctx context.Context, digest string) (*models.Event, error) {
	var event models.Event
	result := r.db.WithContext(ctx).Where("auth_token_hash = ?", digest).Limit(1).Find(&event)
	if result.Error != nil {
		return nil, apperrors.Wrap(result.Error, "failed to resolve event by token")
	}
	if result.RowsAffected == 0 {
		return nil, apperrors.ErrNotFound
	}
	return &event, nil
}

func (r *eventRepository) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	result := r.db.WithContext(ctx).First(&event, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Wrap(result.Error, "failed to get event")
	}
	return &event, nil
}

func (r *eventRepository) ListActiveEvents(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	err := r.db.WithContext(ctx).Where("active").Order("start_date").Find(&events).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list active events")
	}
	return events, nil
}

func (r *eventRepository) CountAttendees(ctx context.Context, eventID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.EventAttendee{}).
		Where("event_id = ? AND active", eventID).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count attendees")
	}
	return count, nil
}
