package repository

import (
	"context"
	"time"

	"eventproxy/internal/models"
	apperrors "eventproxy/internal/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UsageRepository owns the only rows the gateway writes. CommitUsage is the single
// write per request: it updates the per-resource aggregate and the event counters in
// one transaction, so a request is either fully recorded or not at all.
type UsageRepository interface {
	// CommitUsage returns the event's cumulative tokens after the commit.
	CommitUsage(ctx context.Context, eventID uuid.UUID, resource string, promptTokens, completionTokens int64) (int64, error)
	GetCumulativeUsage(ctx context.Context, eventID uuid.UUID) (int64, error)
	GetRequestCount(ctx context.Context, eventID uuid.UUID) (int64, error)
	ListModelCounts(ctx context.Context, eventID uuid.UUID) ([]models.ModelCounts, error)
}

type usageRepository struct {
	db *gorm.DB
}

func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

func (r *usageRepository) CommitUsage(ctx context.Context, eventID uuid.UUID, resource string, promptTokens, completionTokens int64) (int64, error) {
	now := time.Now()
	tokens := promptTokens + completionTokens
	counts := &models.ModelCounts{
		EventID:          eventID,
		Resource:         resource,
		Count:            1,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      tokens,
		UpdatedAt:        now,
	}
	usage := &models.EventUsage{EventID: eventID, TokensUsed: tokens, RequestCount: 1, UpdatedAt: now}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "event_id"}, {Name: "resource"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"count":             gorm.Expr("model_counts.count + 1"),
				"prompt_tokens":     gorm.Expr("model_counts.prompt_tokens + ?", promptTokens),
				"completion_tokens": gorm.Expr("model_counts.completion_tokens + ?", completionTokens),
				"total_tokens":      gorm.Expr("model_counts.total_tokens + ?", tokens),
				"updated_at":        now,
			}),
		}).Create(counts).Error
		if err != nil {
			return apperrors.Wrap(err, "failed to record model counts")
		}

		err = tx.Clauses(
			clause.OnConflict{
				Columns: []clause.Column{{Name: "event_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"tokens_used":   gorm.Expr("event_usage.tokens_used + ?", tokens),
					"request_count": gorm.Expr("event_usage.request_count + 1"),
					"updated_at":    now,
				}),
			},
			clause.Returning{Columns: []clause.Column{{Name: "tokens_used"}}},
		).Create(usage).Error
		if err != nil {
			return apperrors.Wrap(err, "failed to update event usage")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return usage.TokensUsed, nil
}

func (r *usageRepository) GetCumulativeUsage(ctx context.Context, eventID uuid.UUID) (int64, error) {
	usage, err := r.eventUsage(ctx, eventID)
	if err != nil {
		return 0, err
	}
	return usage.TokensUsed, nil
}

func (r *usageRepository) GetRequestCount(ctx context.Context, eventID uuid.UUID) (int64, error) {
	usage, err := r.eventUsage(ctx, eventID)
	if err != nil {
		return 0, err
	}
	return usage.RequestCount, nil
}

func (r *usageRepository) eventUsage(ctx context.Context, eventID uuid.UUID) (models.EventUsage, error) {
	var usage models.EventUsage
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Limit(1).Find(&usage).Error
	if err != nil {
		return usage, apperrors.Wrap(err, "failed to get event usage")
	}
	return usage, nil
}

func (r *usageRepository) ListModelCounts(ctx context.Context, eventID uuid.UUID) ([]models.ModelCounts, error) {
	var counts []models.ModelCounts
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Order("resource").Find(&counts).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list model counts")
	}
	return counts, nil
}
