package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"eventproxy/internal/config"
	"eventproxy/internal/models"
	apperrors "eventproxy/internal/pkg/errors"
	"eventproxy/internal/services"
)

const maxErrorBodyBytes = 1 << 20

var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// inboundOnlyHeaders never reach the upstream. The caller's credential is among them.
var inboundOnlyHeaders = []string{
	"Api-Key",
	"Authorization",
	"Host",
	"Content-Length",
	"Accept-Encoding",
	"Cookie",
}

// Request is one call to relay. Deployment carries the upstream secret and must not
// be logged.
type Request struct {
	Deployment *models.ModelDeployment
	Method     string
	Operation  string
	RawQuery   string
	Header     http.Header
	Body       []byte
	RequestID  string
}

// Result describes how a relay ended.
type Result struct {
	Status int
	Usage  services.TokenUsage
	// Relayed is true once upstream answered 2xx and the response was handed to the caller.
	Relayed bool
	// CallerGone is true when the caller disconnected before the relay finished.
	CallerGone bool
	// Err is a failure that has not been written to the caller yet. It is nil when the
	// response is complete or when the failure was already appended to a started stream.
	Err error
	// StreamErr records a mid-stream failure already reported in-band.
	StreamErr error
}

type Forwarder struct {
	client      *http.Client
	urlTemplate string
	idleTimeout time.Duration
}

func NewForwarder(cfg config.UpstreamConfig) *Forwarder {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.FirstByteTimeout
	transport.MaxIdleConnsPerHost = 64

	// no client-wide Timeout: streamed responses are bounded by the idle watchdog instead
	return NewForwarderWithClient(&http.Client{Transport: transport}, cfg)
}

func NewForwarderWithClient(client *http.Client, cfg config.UpstreamConfig) *Forwarder {
	return &Forwarder{
		client:      client,
		urlTemplate: cfg.URLTemplate,
		idleTimeout: cfg.IdleTimeout,
	}
}

// UpstreamURL builds the provider URL for a deployment operation.
func (f *Forwarder) UpstreamURL(d *models.ModelDeployment, operation, rawQuery string) string {
	base := d.EndpointURL
	if base == "" {
		base = fmt.Sprintf(f.urlTemplate, d.ResourceName)
	}
	u := strings.TrimRight(base, "/") + "/openai/deployments/" + url.PathEscape(d.DeploymentName)
	if operation = strings.Trim(operation, "/"); operation != "" {
		u += "/" + operation
	}
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	return u
}

// Forward issues req upstream and relays the response to w. It never retries.
// Successful bytes are written as they arrive; failures before any byte is written
// are returned in Result.Err for the caller to normalize.
func (f *Forwarder) Forward(ctx context.Context, w http.ResponseWriter, req *Request) Result {
	callerCtx := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	upReq, err := http.NewRequestWithContext(ctx, req.Method, f.UpstreamURL(req.Deployment, req.Operation, req.RawQuery), bytes.NewReader(req.Body))
	if err != nil {
		return Result{Err: apperrors.Wrap(err, "failed to build upstream request")}
	}
	copyHeaders(upReq.Header, req.Header, inboundOnlyHeaders)
	upReq.Header.Set("api-key", req.Deployment.EndpointKey)
	if req.RequestID != "" {
		upReq.Header.Set("X-Request-ID", req.RequestID)
	}

	resp, err := f.client.Do(upReq)
	if err != nil {
		if callerCtx.Err() != nil {
			return Result{CallerGone: true}
		}
		if isTimeout(err) {
			return Result{Err: apperrors.Upstream(http.StatusGatewayTimeout, "The upstream model service did not respond in time.", err)}
		}
		return Result{Err: apperrors.Upstream(http.StatusBadGateway, "The upstream model service is unreachable.", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return Result{Status: resp.StatusCode, Relayed: true, Err: apperrors.NoContent()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{Status: resp.StatusCode, Err: upstreamError(resp, req.Deployment.EndpointKey)}
	}

	return f.relay(callerCtx, cancel, w, resp)
}

func (f *Forwarder) relay(callerCtx context.Context, cancel context.CancelFunc, w http.ResponseWriter, resp *http.Response) Result {
	streaming := strings.HasPrefix(strings.ToLower(resp.Header.Get("Content-Type")), "text/event-stream")

	var parser usageParser = &jsonUsageParser{}
	if streaming {
		parser = newSSEUsageParser()
	}

	copyHeaders(w.Header(), resp.Header, nil)
	if streaming {
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Accel-Buffering", "no")
	}
	w.WriteHeader(resp.StatusCode)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	var idleFired atomic.Bool
	resetIdle := func() {}
	if f.idleTimeout > 0 {
		watchdog := time.AfterFunc(f.idleTimeout, func() {
			idleFired.Store(true)
			cancel()
		})
		defer watchdog.Stop()
		resetIdle = func() { watchdog.Reset(f.idleTimeout) }
	}
	return copyBody(callerCtx, w, resp, parser, streaming, resetIdle, &idleFired)
}

func copyBody(
	callerCtx context.Context,
	w http.ResponseWriter,
	resp *http.Response,
	parser usageParser,
	streaming bool,
	resetIdle func(),
	idleFired *atomic.Bool,
) Result {
	result := Result{Status: resp.StatusCode, Relayed: true}
	flusher, canFlush := w.(http.Flusher)

	buf := make([]byte, DefaultBufferSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			resetIdle()
			chunk := buf[:n]
			parser.Feed(chunk)

			if _, writeErr := w.Write(chunk); writeErr != nil {
				result.CallerGone = true
				break
			}
			if canFlush && streaming {
				flusher.Flush()
			}
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		switch {
		case callerCtx.Err() != nil:
			result.CallerGone = true
		case idleFired.Load():
			result.StreamErr = apperrors.Upstream(http.StatusGatewayTimeout, "The upstream model service stopped responding.", err)
		default:
			result.StreamErr = apperrors.Upstream(http.StatusBadGateway, "The upstream model service closed the stream unexpectedly.", err)
		}
		break
	}

	if result.StreamErr != nil && streaming {
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(apperrors.MarshalEnvelope(result.StreamErr))
		_, _ = w.Write([]byte("\n\n"))
	}
	if canFlush {
		flusher.Flush()
	}

	result.Usage = parser.Usage()
	return result
}

// upstreamError converts a non-2xx provider response. A JSON body is passed through
// unless it contains the deployment secret.
func upstreamError(resp *http.Response, secret string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	trimmed := bytes.TrimSpace(body)

	if len(trimmed) == 0 {
		return apperrors.Upstream(resp.StatusCode, "", nil)
	}
	if containsSecret(trimmed, secret) {
		return apperrors.Upstream(resp.StatusCode, "", nil)
	}
	if isJSON(trimmed) {
		return apperrors.UpstreamPassthrough(resp.StatusCode, body)
	}
	return apperrors.Upstream(resp.StatusCode, string(trimmed), nil)
}

func containsSecret(body []byte, secret string) bool {
	if secret == "" {
		return false
	}
	return bytes.Contains(body, []byte(secret))
}

func isJSON(b []byte) bool {
	return len(b) > 0 && (b[0] == '{' || b[0] == '[') && json.Valid(b)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func copyHeaders(dst, src http.Header, skip []string) {
	for key, values := range src {
		if skipHeader(key, skip) {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func skipHeader(key string, extra []string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(key, h) {
			return true
		}
	}
	for _, h := range extra {
		if strings.EqualFold(key, h) {
			return true
		}
	}
	return false
}
