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

type MetricsService interface {
	EventMetric(ctx context.Context, eventID uuid.UUID) (*models.EventMetric, error)
	Chart(ctx context.Context, eventID uuid.UUID) ([]models.ChartData, error)
	// RecordGrowth appends today's attendee snapshot for every active event and
	// returns how many new points were written.
	RecordGrowth(ctx context.Context, now time.Time) (int, error)
}

type metricsService struct {
	events repository.EventRepository
	usage  repository.UsageRepository
	charts repository.ChartRepository
}

func NewMetricsService(events repository.EventRepository, usage repository.UsageRepository, charts repository.ChartRepository) MetricsService {
	return &metricsService{events: events, usage: usage, charts: charts}
}

func (s *metricsService) EventMetric(ctx context.Context, eventID uuid.UUID) (*models.EventMetric, error) {
	attendees, err := s.events.CountAttendees(ctx, eventID)
	if err != nil {
		return nil, err
	}
	requests, err := s.usage.GetRequestCount(ctx, eventID)
	if err != nil {
		return nil, err
	}
	counts, err := s.usage.ListModelCounts(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if counts == nil {
		counts = []models.ModelCounts{}
	}

	return &models.EventMetric{
		EventID:       eventID,
		AttendeeCount: attendees,
		RequestCount:  requests,
		ModelData:     counts,
	}, nil
}

func (s *metricsService) Chart(ctx context.Context, eventID uuid.UUID) ([]models.ChartData, error) {
	return s.charts.ListChartData(ctx, eventID)
}

func (s *metricsService) RecordGrowth(ctx context.Context, now time.Time) (int, error) {
	events, err := s.events.ListActiveEvents(ctx)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, e := range events {
		attendees, err := s.events.CountAttendees(ctx, e.ID)
		if err != nil {
			return written, err
		}
		ok, err := s.charts.AppendChartData(ctx, &models.ChartData{
			EventID:   e.ID,
			DateStamp: now,
			Attendees: attendees,
		})
		if err != nil {
			return written, err
		}
		if ok {
			written++
		}
	}
	return written, nil
}

// RunGrowthRecorder calls RecordGrowth every interval until ctx is done.
func RunGrowthRecorder(ctx context.Context, svc MetricsService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if n, err := svc.RecordGrowth(ctx, time.Now()); err != nil {
			logger.LogEvent(logrus.ErrorLevel, "growth snapshot failed", logrus.Fields{"error": err})
		} else if n > 0 {
			logger.LogEvent(logrus.InfoLevel, "growth snapshot recorded", logrus.Fields{"events": n})
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
