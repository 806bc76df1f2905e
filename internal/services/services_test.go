package services

import (
	"testing"
	"time"

	"eventproxy/internal/models"
	"eventproxy/internal/repository"
)

var testNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store *repository.MemoryStore
	event models.Event
	owner models.Owner
	token string
	clock func() time.Time
}

func newFixture(t *testing.T, cap int64) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	token := "evt-token-" + t.Name()
	event := store.PutEvent(models.Event{
		Name:          "E1",
		AuthTokenHash: HashToken(token),
		MaxTokenCap:   cap,
		Active:        true,
		StartDate:     testNow.Add(-24 * time.Hour),
		EndDate:       testNow.Add(24 * time.Hour),
	})
	owner := store.PutOwner(models.Owner{Name: "owner", Email: "owner@example.com"})
	store.Associate(owner.ID, event.ID, true)

	return &fixture{
		store: store,
		event: event,
		owner: owner,
		token: token,
		clock: func() time.Time { return testNow },
	}
}
