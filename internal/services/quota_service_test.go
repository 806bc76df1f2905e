package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"eventproxy/internal/models"
	apperrors "eventproxy/internal/pkg/errors"
	"eventproxy/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmitUnderCap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000)
	q := NewQuotaService(f.store, NewUsageService(f.store), nil)

	adm, err := q.Admit(ctx, &f.event, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(0), adm.Used)
	assert.Equal(t, int64(1000), adm.Remaining)
	assert.Equal(t, int64(200), adm.Estimated)
}

func TestAdmitRejectsAtCap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000)
	q := NewQuotaService(f.store, NewUsageService(f.store), nil)

	total, err := q.Commit(ctx, &f.event, "gpt-35", TokenUsage{PromptTokens: 400, CompletionTokens: 600})
	require.NoError(t, err)
	require.Equal(t, int64(1000), total)

	_, err = q.Admit(ctx, &f.event, 1)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindQuotaExceeded, apperrors.KindOf(err))
	assert.Equal(t, 429, apperrors.StatusOf(err))

	used, _ := q.Used(ctx, f.event.ID)
	assert.Equal(t, int64(1000), used)
}

func TestAdmitZeroCapIsNotUnlimited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	q := NewQuotaService(f.store, NewUsageService(f.store), nil)

	_, err := q.Admit(ctx, &f.event, 0)
	assert.Equal(t, apperrors.KindQuotaExceeded, apperrors.KindOf(err))

	unlimited := f.event
	unlimited.Unlimited = true
	adm, err := q.Admit(ctx, &unlimited, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), adm.Remaining)
}

func TestCommitZeroUsageCountsRequestOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000)
	q := NewQuotaService(f.store, NewUsageService(f.store), nil)

	total, err := q.Commit(ctx, &f.event, "gpt-35", TokenUsage{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	_, err = q.Commit(ctx, &f.event, "gpt-35", TokenUsage{CompletionTokens: -5})
	require.NoError(t, err)

	used, _ := f.store.GetCumulativeUsage(ctx, f.event.ID)
	assert.Equal(t, int64(0), used)
	requests, _ := f.store.GetRequestCount(ctx, f.event.ID)
	assert.Equal(t, int64(2), requests)
}

type failingCommitRepo struct {
	*repository.MemoryStore
}

func (r failingCommitRepo) CommitUsage(context.Context, uuid.UUID, string, int64, int64) (int64, error) {
	return 0, errors.New("connection reset")
}

func TestCommitFailureLeavesNoPartialState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000)
	repo := failingCommitRepo{MemoryStore: f.store}
	client := newMiniredis(t)
	counter := NewRedisCounter(client, repo, time.Minute)
	q := NewQuotaService(repo, NewUsageService(repo), counter)

	_, err := q.Commit(ctx, &f.event, "gpt-35", TokenUsage{PromptTokens: 10, CompletionTokens: 20})
	require.Error(t, err)

	used, _ := f.store.GetCumulativeUsage(ctx, f.event.ID)
	assert.Equal(t, int64(0), used)
	requests, _ := f.store.GetRequestCount(ctx, f.event.ID)
	assert.Equal(t, int64(0), requests)
	counts, _ := f.store.ListModelCounts(ctx, f.event.ID)
	assert.Empty(t, counts)

	exists, err := client.Exists(ctx, counterKey(f.event.ID)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)
}

func TestConcurrentCommitsLoseNoUpdates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1_000_000)
	q := NewQuotaService(f.store, NewUsageService(f.store), nil)

	const n, k = 200, 37
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Commit(ctx, &f.event, "gpt-35", TokenUsage{CompletionTokens: k})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	used, err := q.Used(ctx, f.event.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n*k), used)
}

func TestConcurrentAdmissionOvershootIsBounded(t *testing.T) {
	ctx := context.Background()
	const limit, k, n = 1000, 300, 10
	f := newFixture(t, limit)
	q := NewQuotaService(f.store, NewUsageService(f.store), nil)

	// all admissions happen before any commit, the worst case for overshoot
	var admitted int
	for i := 0; i < n; i++ {
		if _, err := q.Admit(ctx, &f.event, k); err == nil {
			admitted++
		}
	}
	require.Equal(t, n, admitted)

	var wg sync.WaitGroup
	for i := 0; i < admitted; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.Commit(ctx, &f.event, "gpt-35", TokenUsage{CompletionTokens: k})
		}()
	}
	wg.Wait()

	used, _ := q.Used(ctx, f.event.ID)
	assert.LessOrEqual(t, used, int64(limit+admitted*k))
	_, err := q.Admit(ctx, &f.event, k)
	assert.Equal(t, apperrors.KindQuotaExceeded, apperrors.KindOf(err))
}

func newMiniredis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisCounterSeedsFromDurableStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000)
	_, err := f.store.CommitUsage(ctx, f.event.ID, "gpt-35", 0, 640)
	require.NoError(t, err)

	counter := NewRedisCounter(newMiniredis(t), f.store, time.Minute)
	used, err := counter.Load(ctx, f.event.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(640), used)

	q := NewQuotaService(f.store, NewUsageService(f.store), counter)
	total, err := q.Commit(ctx, &f.event, "gpt-35", TokenUsage{CompletionTokens: 360})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), total)

	used, err = counter.Load(ctx, f.event.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), used)

	_, err = q.Admit(ctx, &f.event, 1)
	assert.Equal(t, apperrors.KindQuotaExceeded, apperrors.KindOf(err))
}

func TestRedisCounterObserveNeverGoesBackwards(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	event := store.PutEvent(models.Event{MaxTokenCap: 10})
	client := newMiniredis(t)
	counter := NewRedisCounter(client, store, time.Minute)

	require.NoError(t, counter.Observe(ctx, event.ID, 50))
	require.NoError(t, counter.Observe(ctx, event.ID, 20))

	got, err := client.Get(ctx, counterKey(event.ID)).Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(50), got)

	ttl, err := client.PTTL(ctx, counterKey(event.ID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, counter.Invalidate(ctx, event.ID))
	exists, _ := client.Exists(ctx, counterKey(event.ID)).Result()
	assert.Equal(t, int64(0), exists)
}

// commitDuringSeedRepo runs during once, after the durable total has been read
// but before it is returned to the caller.
type commitDuringSeedRepo struct {
	*repository.MemoryStore
	once   sync.Once
	during func()
}

func (r *commitDuringSeedRepo) GetCumulativeUsage(ctx context.Context, eventID uuid.UUID) (int64, error) {
	used, err := r.MemoryStore.GetCumulativeUsage(ctx, eventID)
	r.once.Do(r.during)
	return used, err
}

func TestRedisCounterSeedKeepsCommitRacingTheSeed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000)
	client := newMiniredis(t)
	repo := &commitDuringSeedRepo{MemoryStore: f.store}
	counter := NewRedisCounter(client, repo, time.Minute)
	q := NewQuotaService(repo, NewUsageService(repo), counter)

	repo.during = func() {
		_, err := q.Commit(ctx, &f.event, "gpt-35", TokenUsage{CompletionTokens: 1000})
		require.NoError(t, err)
	}

	_, err := q.Admit(ctx, &f.event, 1)
	assert.Equal(t, apperrors.KindQuotaExceeded, apperrors.KindOf(err))

	durable, _ := f.store.GetCumulativeUsage(ctx, f.event.ID)
	shared, err := client.Get(ctx, counterKey(f.event.ID)).Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(1000), durable)
	assert.Equal(t, int64(1000), shared)

	_, err = q.Admit(ctx, &f.event, 1)
	assert.Equal(t, apperrors.KindQuotaExceeded, apperrors.KindOf(err))
}

func TestRedisCounterConcurrentCommits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1_000_000)
	counter := NewRedisCounter(newMiniredis(t), f.store, time.Minute)
	q := NewQuotaService(f.store, NewUsageService(f.store), counter)

	_, err := counter.Load(ctx, f.event.ID)
	require.NoError(t, err)

	const n, k = 50, 11
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Commit(ctx, &f.event, "gpt-35", TokenUsage{CompletionTokens: k})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	shared, err := counter.Load(ctx, f.event.ID)
	require.NoError(t, err)
	durable, err := f.store.GetCumulativeUsage(ctx, f.event.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n*k), shared)
	assert.Equal(t, int64(n*k), durable)
}
