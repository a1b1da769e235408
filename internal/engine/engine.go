package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/IliaW/dip-crawler/config"
	"github.com/IliaW/dip-crawler/internal/document"
	"github.com/IliaW/dip-crawler/internal/telemetry"
	"github.com/go-resty/resty/v2"
)

// RequestSpec is an immutable description of one http call. Every retry
// attempt rebuilds the wire request from this value, so the body has to be a
// snapshot, never a consumable stream.
type RequestSpec struct {
	Method string
	URL    string
	Form   document.FieldSet
	body   string
}

// NewRequestSpec validates that the request can be resent identically on
// retry. Accepted bodies are nil, string and []byte; a form takes precedence
// over a raw body and is encoded in field order. Streaming readers are
// rejected with ErrNonRebuildableRequest before any attempt is made.
func NewRequestSpec(method, targetUrl string, form document.FieldSet, body any) (RequestSpec, error) {
	spec := RequestSpec{Method: method, URL: targetUrl, Form: form}
	switch b := body.(type) {
	case nil:
	case string:
		spec.body = b
	case []byte:
		spec.body = string(b)
	default:
		return RequestSpec{}, fmt.Errorf("%w: body type %T", ErrNonRebuildableRequest, body)
	}
	if form != nil && spec.body != "" {
		return RequestSpec{}, fmt.Errorf("%w: both form and raw body set", ErrNonRebuildableRequest)
	}
	return spec, nil
}

// Engine executes requests against the portal: one rate-limiter admission per
// call, then retry-policy-governed attempts over the shared cookie session,
// then the body is parsed using the final response url as base. A semaphore
// bounds the number of concurrently executing requests even when a whole
// result page is fanned out at once.
type Engine struct {
	session      *Session
	limiter      *Limiter
	retry        RetryPolicy
	slots        chan struct{}
	logoutMarker string
	metrics      *telemetry.EngineMetrics
}

func New(session *Session, cfg *config.EngineConfig, metrics *telemetry.EngineMetrics) *Engine {
	workers := cfg.WorkersNum
	if workers <= 0 {
		workers = 1
	}
	return &Engine{
		session:      session,
		limiter:      NewLimiter(cfg.RateLimitPermits, cfg.RateLimitWindow),
		retry:        RetryPolicy{MaxAttempts: cfg.RetryAttempts},
		slots:        make(chan struct{}, workers),
		logoutMarker: cfg.LogoutMarker,
		metrics:      metrics,
	}
}

func (e *Engine) Get(ctx context.Context, targetUrl string) (*document.Document, error) {
	spec, err := NewRequestSpec(http.MethodGet, targetUrl, nil, nil)
	if err != nil {
		return nil, err
	}
	return e.Do(ctx, spec)
}

func (e *Engine) PostForm(ctx context.Context, targetUrl string, form document.FieldSet) (*document.Document, error) {
	spec, err := NewRequestSpec(http.MethodPost, targetUrl, form, nil)
	if err != nil {
		return nil, err
	}
	return e.Do(ctx, spec)
}

func (e *Engine) Do(ctx context.Context, spec RequestSpec) (*document.Document, error) {
	select {
	case e.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-e.slots }()

	if err := e.limiter.Admit(ctx); err != nil {
		return nil, err
	}

	state := e.retry.NewState()
	for {
		resp, err := e.attempt(ctx, spec)
		e.count(func(m *telemetry.EngineMetrics) { m.RequestCnt(1) })

		status := 0
		if resp != nil {
			status = resp.StatusCode()
		}
		if !retryableOutcome(status, err) {
			return e.parse(resp)
		}

		lastErr := classify(resp, err, spec.URL)
		next, ok := state.ShouldRetry()
		if !ok {
			e.count(func(m *telemetry.EngineMetrics) { m.FailedRequestCnt(1) })
			return nil, lastErr
		}
		state = next
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.count(func(m *telemetry.EngineMetrics) { m.RetryCnt(1) })
		slog.Warn("request failed. retrying...", slog.String("url", spec.URL),
			slog.String("err", lastErr.Error()), slog.Int("attempts left", state.Remaining()))
	}
}

// attempt rebuilds the wire request from the spec and executes it once.
func (e *Engine) attempt(ctx context.Context, spec RequestSpec) (*resty.Response, error) {
	req := e.session.client.R().SetContext(ctx)
	if spec.Form != nil {
		req.SetHeader("Content-Type", "application/x-www-form-urlencoded").
			SetBody(spec.Form.Encode())
	} else if spec.body != "" {
		req.SetBody(spec.body)
	}
	return req.Execute(spec.Method, spec.URL)
}

func (e *Engine) parse(resp *resty.Response) (*document.Document, error) {
	body := resp.Body()
	if e.logoutMarker != "" && strings.Contains(string(body), e.logoutMarker) {
		return nil, ErrSessionExpired
	}
	return document.Parse(body, finalURL(resp))
}

// finalURL is the url of the last response in the redirect chain. Links must
// resolve against it, not against the originally requested url.
func finalURL(resp *resty.Response) *url.URL {
	if resp.RawResponse != nil && resp.RawResponse.Request != nil {
		return resp.RawResponse.Request.URL
	}
	u, _ := url.Parse(resp.Request.URL)
	return u
}

func classify(resp *resty.Response, err error, targetUrl string) error {
	if err != nil {
		return fmt.Errorf("network error for %s: %w", targetUrl, err)
	}
	return &StatusError{
		StatusCode: resp.StatusCode(),
		Status:     resp.Status(),
		URL:        targetUrl,
	}
}

func (e *Engine) count(fn func(*telemetry.EngineMetrics)) {
	if e.metrics != nil {
		fn(e.metrics)
	}
}
