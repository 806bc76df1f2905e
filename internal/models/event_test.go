package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventUsable(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	base := Event{Active: true, StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour)}

	tests := []struct {
		name   string
		mutate func(e *Event)
		want   bool
	}{
		{name: "inside window", mutate: func(e *Event) {}, want: true},
		{name: "inactive", mutate: func(e *Event) { e.Active = false }, want: false},
		{name: "not started", mutate: func(e *Event) { e.StartDate = now.Add(time.Minute) }, want: false},
		{name: "ended", mutate: func(e *Event) { e.EndDate = now.Add(-time.Minute) }, want: false},
		{name: "start bound inclusive", mutate: func(e *Event) { e.StartDate = now }, want: true},
		{name: "end bound inclusive", mutate: func(e *Event) { e.EndDate = now }, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := base
			tt.mutate(&e)
			assert.Equal(t, tt.want, e.Usable(now))
		})
	}
}

func TestEventRemaining(t *testing.T) {
	capped := Event{MaxTokenCap: 1000}
	assert.Equal(t, int64(600), capped.Remaining(400))
	assert.Equal(t, int64(0), capped.Remaining(1000))
	assert.Equal(t, int64(0), capped.Remaining(1200))

	zero := Event{MaxTokenCap: 0}
	assert.Equal(t, int64(0), zero.Remaining(0))

	unlimited := Event{Unlimited: true}
	assert.Equal(t, int64(-1), unlimited.Remaining(1_000_000))
}

func TestPeriodTruncatesToUTCDay(t *testing.T) {
	loc := time.FixedZone("plus5", 5*3600)
	got := Period(time.Date(2026, 3, 2, 2, 30, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), got)
}
