package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"eventproxy/internal/logger"
	"eventproxy/internal/models"
	apperrors "eventproxy/internal/pkg/errors"
	"eventproxy/internal/services"
)

type EventInfoHandler struct {
	deployments services.DeploymentService
	quota       services.QuotaService
	metrics     services.MetricsService
}

func NewEventInfoHandler(deployments services.DeploymentService, quota services.QuotaService, metrics services.MetricsService) *EventInfoHandler {
	return &EventInfoHandler{
		deployments: deployments,
		quota:       quota,
		metrics:     metrics,
	}
}

type DeploymentInfo struct {
	Name      string           `json:"name"`
	ModelType models.ModelType `json:"model_type"`
}

type EventInfo struct {
	ID              uuid.UUID           `json:"event_id"`
	Name            string              `json:"name"`
	StartDate       time.Time           `json:"start_date"`
	EndDate         time.Time           `json:"end_date"`
	MaxTokenCap     int64               `json:"max_token_cap"`
	Unlimited       bool                `json:"unlimited"`
	TokensUsed      int64               `json:"tokens_used"`
	TokensRemaining *int64              `json:"tokens_remaining,omitempty"`
	Deployments     []DeploymentInfo    `json:"deployments"`
	Metric          *models.EventMetric `json:"metric"`
	Chart           []models.ChartData  `json:"chart"`
}

// GetEventInfo describes the caller's own event. Deployment secrets and resource
// names are never included.
func (h *EventInfoHandler) GetEventInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	event, ok := services.EventFromContext(ctx)
	if !ok {
		apperrors.WriteError(w, apperrors.Unauthenticated())
		return
	}

	used, err := h.quota.Used(ctx, event.ID)
	if err != nil {
		h.fail(w, event, err)
		return
	}
	deployments, err := h.deployments.ListActive(ctx, event)
	if err != nil {
		h.fail(w, event, err)
		return
	}
	metric, err := h.metrics.EventMetric(ctx, event.ID)
	if err != nil {
		h.fail(w, event, err)
		return
	}
	chart, err := h.metrics.Chart(ctx, event.ID)
	if err != nil {
		h.fail(w, event, err)
		return
	}

	info := EventInfo{
		ID:          event.ID,
		Name:        event.Name,
		StartDate:   event.StartDate,
		EndDate:     event.EndDate,
		MaxTokenCap: event.MaxTokenCap,
		Unlimited:   event.Unlimited,
		TokensUsed:  used,
		Deployments: make([]DeploymentInfo, 0, len(deployments)),
		Metric:      metric,
		Chart:       chart,
	}
	if !event.Unlimited {
		remaining := event.Remaining(used)
		info.TokensRemaining = &remaining
	}
	if info.Chart == nil {
		info.Chart = []models.ChartData{}
	}
	for _, d := range deployments {
		info.Deployments = append(info.Deployments, DeploymentInfo{Name: d.DeploymentName, ModelType: d.ModelType})
	}

	respondWithJSON(w, http.StatusOK, info)
}

func (h *EventInfoHandler) fail(w http.ResponseWriter, event *models.Event, err error) {
	logger.LogEvent(logrus.ErrorLevel, "Error fetching event info", logrus.Fields{
		"event_id": event.ID,
		"error":    err.Error(),
	})
	apperrors.WriteError(w, err)
}
