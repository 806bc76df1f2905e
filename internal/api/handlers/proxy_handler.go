package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"eventproxy/internal/logger"
	"eventproxy/internal/models"
	apperrors "eventproxy/internal/pkg/errors"
	"eventproxy/internal/proxy"
	"eventproxy/internal/services"
)

const commitTimeout = 5 * time.Second

// Forwarder relays one request to the upstream provider.
type Forwarder interface {
	Forward(ctx context.Context, w http.ResponseWriter, req *proxy.Request) proxy.Result
}

// ProxyHandler runs the gateway pipeline: deployment lookup, quota admission,
// upstream relay and a single usage commit. Authentication happens in middleware.
type ProxyHandler struct {
	deployments services.DeploymentService
	quota       services.QuotaService
	forwarder   Forwarder
}

func NewProxyHandler(
	deployments services.DeploymentService,
	quota services.QuotaService,
	forwarder Forwarder,
) *ProxyHandler {
	return &ProxyHandler{
		deployments: deployments,
		quota:       quota,
		forwarder:   forwarder,
	}
}

func (h *ProxyHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	event, ok := services.EventFromContext(ctx)
	if !ok {
		apperrors.WriteError(w, apperrors.Unauthenticated())
		return
	}

	vars := mux.Vars(r)
	deployment, err := h.deployments.Resolve(ctx, event, vars["deployment"])
	if err != nil {
		h.fail(w, r, event, err)
		return
	}

	body, err := readBody(r)
	if err != nil {
		h.fail(w, r, event, err)
		return
	}

	admission, err := h.quota.Admit(ctx, event, estimateTokens(body))
	if err != nil {
		h.fail(w, r, event, err)
		return
	}
	if !event.Unlimited {
		w.Header().Set("X-Quota-Limit", strconv.FormatInt(admission.Limit, 10))
		w.Header().Set("X-Quota-Remaining", strconv.FormatInt(admission.Remaining, 10))
	}

	result := h.forwarder.Forward(ctx, w, &proxy.Request{
		Deployment: deployment,
		Method:     r.Method,
		Operation:  vars["operation"],
		RawQuery:   r.URL.RawQuery,
		Header:     r.Header,
		Body:       body,
		RequestID:  services.RequestIDFromContext(ctx),
	})

	// the only commit point for this request
	h.commit(ctx, event, deployment, result)

	if result.StreamErr != nil {
		logger.LogEvent(logrus.WarnLevel, "Upstream stream interrupted", logrus.Fields{
			"event_id":   event.ID,
			"deployment": deployment.DeploymentName,
			"request_id": services.RequestIDFromContext(ctx),
			"error":      result.StreamErr.Error(),
		})
	}
	if result.Err != nil && !result.CallerGone {
		h.fail(w, r, event, result.Err)
	}
}

func (h *ProxyHandler) commit(ctx context.Context, event *models.Event, deployment *models.ModelDeployment, result proxy.Result) {
	if !result.Relayed && result.Usage.Total() == 0 {
		return
	}

	// a disconnected caller still pays for what was produced
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	fields := logrus.Fields{
		"event_id":          event.ID,
		"deployment":        deployment.DeploymentName,
		"request_id":        services.RequestIDFromContext(ctx),
		"prompt_tokens":     result.Usage.PromptTokens,
		"completion_tokens": result.Usage.CompletionTokens,
		"caller_gone":       result.CallerGone,
	}

	total, err := h.quota.Commit(ctx, event, deployment.DeploymentName, result.Usage)
	if err != nil {
		fields["error"] = err.Error()
		logger.LogEvent(logrus.ErrorLevel, "Failed to commit token usage", fields)
		return
	}

	fields["tokens_used"] = total
	logger.LogEvent(logrus.InfoLevel, "Usage committed", fields)
}

func (h *ProxyHandler) fail(w http.ResponseWriter, r *http.Request, event *models.Event, err error) {
	kind := apperrors.KindOf(err)
	if kind == apperrors.KindInternal || kind == apperrors.KindUpstream {
		logger.LogEvent(logrus.ErrorLevel, "Proxy request failed", logrus.Fields{
			"event_id":   event.ID,
			"kind":       kind,
			"request_id": services.RequestIDFromContext(r.Context()),
			"error":      err.Error(),
		})
	}
	apperrors.WriteError(w, err)
}

// readBody returns the raw body. Bodies that are present must be a JSON object.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, requireBody(r)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, apperrors.InvalidRequest(fmt.Sprintf("Request body exceeds the %d byte limit.", maxErr.Limit))
		}
		return nil, apperrors.InvalidRequest("Request body could not be read.")
	}
	if len(body) == 0 {
		return nil, requireBody(r)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, apperrors.InvalidRequest("Request body must be a JSON object: " + err.Error())
	}
	return body, nil
}

func requireBody(r *http.Request) error {
	if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
		return apperrors.InvalidRequest("Request body is required.")
	}
	return nil
}

// estimateTokens is a rough pre-call cost: about four bytes per prompt token plus
// the requested completion budget. It is informational only.
func estimateTokens(body []byte) int64 {
	if len(body) == 0 {
		return 0
	}
	var req struct {
		MaxTokens int64 `json:"max_tokens"`
	}
	_ = json.Unmarshal(body, &req)
	if req.MaxTokens < 0 {
		req.MaxTokens = 0
	}
	return int64(len(body)/4) + req.MaxTokens
}
