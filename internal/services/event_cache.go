package services

import (
	"context"
	"time"

	"eventproxy/internal/logger"
	"eventproxy/internal/models"
	"eventproxy/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// cachedEvent mirrors models.Event with the digest kept; Event hides it from JSON.
type cachedEvent struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	AuthTokenHash string    `json:"auth_token_hash"`
	MaxTokenCap   int64     `json:"max_token_cap"`
	Unlimited     bool      `json:"unlimited"`
	Active        bool      `json:"active"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
}

type cachedEventRepository struct {
	repository.EventRepository
	cache CacheService
	ttl   time.Duration
}

// NewCachedEventRepository caches token lookups only. Misses are not cached, so a
// freshly created event is visible immediately; edits become visible within ttl.
func NewCachedEventRepository(repo repository.EventRepository, cache CacheService, ttl time.Duration) repository.EventRepository {
	return &cachedEventRepository{EventRepository: repo, cache: cache, ttl: ttl}
}

func (r *cachedEventRepository) ResolveEventByToken(ctx context.Context, digest string) (*models.Event, error) {
	key := "event:token:" + digest

	var hit cachedEvent
	err := r.cache.Get(ctx, key, &hit)
	if err == nil {
		return hit.toModel(), nil
	}
	if err != ErrCacheMiss {
		logger.LogEvent(logrus.WarnLevel, "event cache read failed", logrus.Fields{"error": err})
	}

	event, err := r.EventRepository.ResolveEventByToken(ctx, digest)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, key, fromModel(event), r.ttl); err != nil {
		logger.LogEvent(logrus.WarnLevel, "event cache write failed", logrus.Fields{"error": err})
	}
	return event, nil
}

func fromModel(e *models.Event) cachedEvent {
	return cachedEvent{
		ID:            e.ID,
		Name:          e.Name,
		AuthTokenHash: e.AuthTokenHash,
		MaxTokenCap:   e.MaxTokenCap,
		Unlimited:     e.Unlimited,
		Active:        e.Active,
		StartDate:     e.StartDate,
		EndDate:       e.EndDate,
	}
}

func (c cachedEvent) toModel() *models.Event {
	return &models.Event{
		ID:            c.ID,
		Name:          c.Name,
		AuthTokenHash: c.AuthTokenHash,
		MaxTokenCap:   c.MaxTokenCap,
		Unlimited:     c.Unlimited,
		Active:        c.Active,
		StartDate:     c.StartDate,
		EndDate:       c.EndDate,
	}
}
