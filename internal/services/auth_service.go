package services

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"eventproxy/internal/models"
	apperrors "eventproxy/internal/pkg/errors"
	"eventproxy/internal/repository"

	"golang.org/x/crypto/blake2b"
)

type contextKey string

const (
	EventContextKey     contextKey = "event"
	RequestIDContextKey contextKey = "request_id"
)

// AuthService resolves presented credentials to events. It has no side effects.
type AuthService interface {
	ResolveEvent(ctx context.Context, token string) (*models.Event, error)
}

type authService struct {
	events repository.EventRepository
	now    func() time.Time
}

func NewAuthService(events repository.EventRepository) AuthService {
	return &authService{
		events: events,
		now:    time.Now,
	}
}

// NewAuthServiceWithClock is NewAuthService with an injected clock.
func NewAuthServiceWithClock(events repository.EventRepository, now func() time.Time) AuthService {
	return &authService{events: events, now: now}
}

// HashToken returns the digest stored as Event.AuthTokenHash.
func HashToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ResolveEvent fails with the same Unauthenticated error for unknown tokens,
// inactive events and events outside their window.
func (s *authService) ResolveEvent(ctx context.Context, token string) (*models.Event, error) {
	if token == "" {
		return nil, apperrors.Unauthenticated()
	}

	digest := HashToken(token)
	event, err := s.events.ResolveEventByToken(ctx, digest)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthenticated()
		}
		return nil, apperrors.Wrap(err, "failed to resolve event")
	}

	if subtle.ConstantTimeCompare([]byte(event.AuthTokenHash), []byte(digest)) != 1 {
		return nil, apperrors.Unauthenticated()
	}
	if !event.Usable(s.now()) {
		return nil, apperrors.Unauthenticated()
	}
	return event, nil
}

// Helper function to add the resolved event to context
func WithEvent(ctx context.Context, event *models.Event) context.Context {
	return context.WithValue(ctx, EventContextKey, event)
}

// Helper function to get the resolved event from context
func EventFromContext(ctx context.Context) (*models.Event, bool) {
	event, ok := ctx.Value(EventContextKey).(*models.Event)
	return event, ok && event != nil
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDContextKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}
