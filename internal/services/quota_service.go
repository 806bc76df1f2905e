package services

import (
	"context"

	"eventproxy/internal/logger"
	"eventproxy/internal/models"
	apperrors "eventproxy/internal/pkg/errors"
	"eventproxy/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Admission describes a positive admission decision.
type Admission struct {
	Used      int64
	Limit     int64
	Remaining int64 // -1 when the event is unlimited
	Estimated int64
}

// QuotaService admits requests against an event's cap and accumulates actual usage.
//
// Admission only checks the tokens already committed, because the true cost of a
// request is known after it completes. Requests admitted concurrently can therefore
// overshoot the cap by at most the sum of their own usage.
type QuotaService interface {
	Admit(ctx context.Context, event *models.Event, estimatedTokens int64) (Admission, error)
	// Commit is the single usage write for a request. It returns the new cumulative total.
	Commit(ctx context.Context, event *models.Event, resource string, usage TokenUsage) (int64, error)
	Used(ctx context.Context, eventID uuid.UUID) (int64, error)
}

// Counter is a fast read-through view of cumulative usage, shared across replicas.
// Observe reports a durable total; a counter must never move backwards because of it.
type Counter interface {
	Load(ctx context.Context, eventID uuid.UUID) (int64, error)
	Observe(ctx context.Context, eventID uuid.UUID, total int64) error
	Invalidate(ctx context.Context, eventID uuid.UUID) error
}

type quotaService struct {
	usage    repository.UsageRepository
	recorder UsageService
	shared   Counter
}

// NewQuotaService reads the durable counter from repo and commits through recorder.
// shared may be nil.
func NewQuotaService(repo repository.UsageRepository, recorder UsageService, shared Counter) QuotaService {
	return &quotaService{usage: repo, recorder: recorder, shared: shared}
}

func (s *quotaService) Admit(ctx context.Context, event *models.Event, estimatedTokens int64) (Admission, error) {
	if event.Unlimited {
		return Admission{Remaining: -1, Estimated: estimatedTokens}, nil
	}

	used, err := s.Used(ctx, event.ID)
	if err != nil {
		return Admission{}, err
	}
	if used >= event.MaxTokenCap {
		logger.LogEvent(logrus.InfoLevel, "quota exhausted", logrus.Fields{
			"event_id":  event.ID,
			"used":      used,
			"cap":       event.MaxTokenCap,
			"estimated": estimatedTokens,
		})
		return Admission{}, apperrors.QuotaExceeded()
	}

	return Admission{
		Used:      used,
		Limit:     event.MaxTokenCap,
		Remaining: event.Remaining(used),
		Estimated: estimatedTokens,
	}, nil
}

func (s *quotaService) Commit(ctx context.Context, event *models.Event, resource string, usage TokenUsage) (int64, error) {
	total, err := s.recorder.Record(ctx, event, resource, usage)
	if err != nil {
		return 0, err
	}
	if s.shared == nil {
		return total, nil
	}

	if err := s.shared.Observe(ctx, event.ID, total); err != nil {
		fields := logrus.Fields{
			"event_id": event.ID,
			"resource": resource,
			"error":    err,
		}
		// drop the key so the next read reseeds from the database
		if ierr := s.shared.Invalidate(ctx, event.ID); ierr != nil {
			fields["invalidate_error"] = ierr
		}
		logger.LogEvent(logrus.WarnLevel, "shared quota counter update failed", fields)
	}
	return total, nil
}

func (s *quotaService) Used(ctx context.Context, eventID uuid.UUID) (int64, error) {
	if s.shared != nil {
		used, err := s.shared.Load(ctx, eventID)
		if err == nil {
			return used, nil
		}
		logger.LogEvent(logrus.WarnLevel, "shared quota counter read failed", logrus.Fields{
			"event_id": eventID,
			"error":    err,
		})
	}
	used, err := s.usage.GetCumulativeUsage(ctx, eventID)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to read cumulative usage")
	}
	return used, nil
}
