package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"eventproxy/internal/models"
	apperrors "eventproxy/internal/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreResolveEventByToken(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	e := s.PutEvent(models.Event{Name: "hackathon", AuthTokenHash: "digest-a", Active: true})

	got, err := s.ResolveEventByToken(ctx, "digest-a")
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)

	_, err = s.ResolveEventByToken(ctx, "digest-b")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMemoryStoreListDeploymentsScopedByOwner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	e1 := s.PutEvent(models.Event{AuthTokenHash: "d1"})
	mine := s.PutOwner(models.Owner{Name: "mine", Email: "mine@example.com"})
	other := s.PutOwner(models.Owner{Name: "other", Email: "other@example.com"})
	s.Associate(mine.ID, e1.ID, true)

	s.PutDeployment(models.ModelDeployment{OwnerID: mine.ID, DeploymentName: "gpt-35", Active: true})
	s.PutDeployment(models.ModelDeployment{OwnerID: other.ID, DeploymentName: "gpt-4", Active: true})

	got, err := s.ListDeploymentsForEvent(ctx, e1.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "gpt-35", got[0].DeploymentName)
}

func TestMemoryStoreCommitUsageConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	eventID := uuid.New()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CommitUsage(ctx, eventID, "gpt-35", 3, 7)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	counts, err := s.ListModelCounts(ctx, eventID)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	c := counts[0]
	assert.Equal(t, int64(n), c.Count)
	assert.Equal(t, int64(3*n), c.PromptTokens)
	assert.Equal(t, int64(7*n), c.CompletionTokens)
	assert.Equal(t, c.PromptTokens+c.CompletionTokens, c.TotalTokens)

	used, _ := s.GetCumulativeUsage(ctx, eventID)
	assert.Equal(t, int64(10*n), used)
	requests, _ := s.GetRequestCount(ctx, eventID)
	assert.Equal(t, int64(n), requests)
}

func TestMemoryStoreAppendChartDataOncePerPeriod(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	eventID := uuid.New()
	morning := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	ok, err := s.AppendChartData(ctx, &models.ChartData{EventID: eventID, DateStamp: morning, Attendees: 3})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AppendChartData(ctx, &models.ChartData{EventID: eventID, DateStamp: morning.Add(6 * time.Hour), Attendees: 9})
	require.NoError(t, err)
	assert.False(t, ok)

	points, _ := s.ListChartData(ctx, eventID)
	require.Len(t, points, 1)
	assert.Equal(t, int64(3), points[0].Attendees)
}
