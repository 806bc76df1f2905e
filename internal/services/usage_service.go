package services

import (
	"context"

	"eventproxy/internal/logger"
	"eventproxy/internal/models"
	"eventproxy/internal/repository"

	"github.com/sirupsen/logrus"
)

// TokenUsage is the prompt/completion split reported for one request.
type TokenUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

func (u TokenUsage) Total() int64 {
	return u.PromptTokens + u.CompletionTokens
}

// UsageService records one request's usage. Record is not idempotent: callers must
// invoke it once per request. It returns the event's cumulative tokens afterwards.
type UsageService interface {
	Record(ctx context.Context, event *models.Event, resource string, usage TokenUsage) (int64, error)
}

type usageService struct {
	repo repository.UsageRepository
}

func NewUsageService(repo repository.UsageRepository) UsageService {
	return &usageService{repo: repo}
}

func (s *usageService) Record(ctx context.Context, event *models.Event, resource string, usage TokenUsage) (int64, error) {
	if usage.PromptTokens < 0 {
		usage.PromptTokens = 0
	}
	if usage.CompletionTokens < 0 {
		usage.CompletionTokens = 0
	}

	total, err := s.repo.CommitUsage(ctx, event.ID, resource, usage.PromptTokens, usage.CompletionTokens)
	if err != nil {
		return 0, err
	}

	logger.LogEvent(logrus.DebugLevel, "usage recorded", logrus.Fields{
		"event_id":          event.ID,
		"resource":          resource,
		"prompt_tokens":     usage.PromptTokens,
		"completion_tokens": usage.CompletionTokens,
		"total_tokens":      usage.Total(),
		"tokens_used":       total,
	})
	return total, nil
}
