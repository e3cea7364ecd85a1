package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	apperrors "github.com/agbru/policycalc/internal/errors"
	"github.com/agbru/policycalc/internal/metrics"
)

var tracer = otel.Tracer("github.com/agbru/policycalc/internal/backend")

// maxErrorBody bounds how much of an error response is copied into messages.
const maxErrorBody = 512

// Client is an HTTP client for the policy simulation API. It implements
// HouseholdFetcher, SocietyWideFetcher and the result writers used by the
// persister.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	metrics *metrics.Collector
}

var (
	_ HouseholdFetcher   = (*Client)(nil)
	_ SocietyWideFetcher = (*Client)(nil)
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithRateLimit caps outgoing requests per second. Zero or negative disables
// the limit.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithMetrics records request latency on m.
func WithMetrics(m *metrics.Collector) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient builds a client rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiEnvelope is the common response wrapper of the API.
type apiEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// FetchHousehold calls GET /{country}/household/{population}/policy/{policy}.
func (c *Client) FetchHousehold(ctx context.Context, countryID, populationID, policyID string) (json.RawMessage, error) {
	path := fmt.Sprintf("/%s/household/%s/policy/%s",
		url.PathEscape(countryID), url.PathEscape(populationID), url.PathEscape(policyID))

	var env apiEnvelope
	if err := c.do(ctx, "household", http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	if env.Status == StatusError {
		return nil, fmt.Errorf("household calculation failed: %s", env.Message)
	}
	if len(env.Result) == 0 {
		return nil, fmt.Errorf("household response for %s has no result", populationID)
	}
	return env.Result, nil
}

// FetchSocietyWide calls GET /{country}/economy/{reform}/over/{baseline}. The
// reform falls back to the baseline when absent.
func (c *Client) FetchSocietyWide(ctx context.Context, p SocietyWideParams) (SocietyWideResponse, error) {
	reform := p.ReformID
	if reform == "" {
		reform = p.BaselineID
	}
	q := url.Values{}
	if p.Region != "" {
		q.Set("region", p.Region)
	}
	if p.TimePeriod != "" {
		q.Set("time_period", p.TimePeriod)
	}
	path := fmt.Sprintf("/%s/economy/%s/over/%s",
		url.PathEscape(p.CountryID), url.PathEscape(reform), url.PathEscape(p.BaselineID))
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}

	var resp SocietyWideResponse
	if err := c.do(ctx, "society_wide", http.MethodGet, path, nil, &resp); err != nil {
		return SocietyWideResponse{}, err
	}
	if resp.Status == StatusError && resp.Error == "" {
		resp.Error = resp.Message
	}
	return resp, nil
}

type reportPatch struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Year   string          `json:"year,omitempty"`
}

type simulationPatch struct {
	ID     string          `json:"id"`
	Output json.RawMessage `json:"output"`
}

// MarkReportCompleted calls PATCH /{country}/report.
func (c *Client) MarkReportCompleted(ctx context.Context, countryID, reportID, year string, output json.RawMessage) error {
	body := reportPatch{ID: reportID, Status: "complete", Output: output, Year: year}
	return c.do(ctx, "report_write", http.MethodPatch, "/"+url.PathEscape(countryID)+"/report", body, nil)
}

// UpdateSimulationOutput calls PATCH /{country}/simulation.
func (c *Client) UpdateSimulationOutput(ctx context.Context, countryID, simulationID string, output json.RawMessage) error {
	body := simulationPatch{ID: simulationID, Output: output}
	return c.do(ctx, "simulation_write", http.MethodPatch, "/"+url.PathEscape(countryID)+"/simulation", body, nil)
}

func (c *Client) do(ctx context.Context, call, method, path string, in, out any) (err error) {
	ctx, span := tracer.Start(ctx, "backend."+call,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.method", method), attribute.String("http.path", path)))
	start := time.Now()
	defer func() {
		c.metrics.ObserveBackend(call, start, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.limiter != nil {
		if err = c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var body io.Reader
	if in != nil {
		raw, mErr := json.Marshal(in)
		if mErr != nil {
			return apperrors.WrapError(mErr, "encode %s body", call)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperrors.WrapError(err, "build %s request", call)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.WrapError(err, "%s %s", method, path)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.WrapError(err, "decode %s response", call)
	}
	return nil
}

// HTTPError is returned for non-2xx API responses.
type HTTPError struct {
	Code int
	Body string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned %d", e.Code)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Body)
}

// Temporary reports whether retrying the request may succeed.
func (e *HTTPError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}
