// Package upstream drives the two-phase credit/generation protocol of the
// upstream image generator and classifies its responses.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/iemabdullah/ai-generator-2api/internal/domain"
	"github.com/iemabdullah/ai-generator-2api/internal/identity"
	"github.com/iemabdullah/ai-generator-2api/internal/telemetry"
	"github.com/iemabdullah/ai-generator-2api/internal/trace"
)

const (
	DeductPath   = "/api/credits/deduct"
	GeneratePath = "/api/gen-image"

	// DefaultProvider is the generation backend requested from the upstream.
	DefaultProvider = "replicate"

	maxBodyBytes        = 8 << 20
	malformedPreviewLen = 100
)

// Trace step labels.
const (
	StepDeductRequest    = "Step 1: Deduct Request"
	StepDeductResponse   = "Step 1: Deduct Response"
	StepGenerateRequest  = "Step 2: Generation Request"
	StepParseError       = "Upstream Parse Error"
	StepGenerateResponse = "Step 2: Upstream Response (Full)"
)

// DeductOutcome is the status and body returned by the credit endpoint.
// Body holds parsed JSON when the response parses, raw text otherwise.
type DeductOutcome struct {
	StatusCode int
	Body       trace.Data
}

type deductPayload struct {
	TransType     string `json:"trans_type"`
	Credits       int    `json:"credits"`
	Model         string `json:"model"`
	NumOutputs    int    `json:"numOutputs"`
	FingerprintID string `json:"fingerprint_id"`
}

type generateRequestLog struct {
	URL         string            `json:"url"`
	Provider    string            `json:"provider"`
	Prompt      string            `json:"prompt"`
	AspectRatio string            `json:"aspectRatio"`
	Form        map[string]string `json:"form"`
}

type formField struct {
	name, value string
}

// Client talks to one upstream origin.
type Client struct {
	origin     string
	provider   string
	httpClient *http.Client
	tracer     oteltrace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithProvider overrides the generation provider form field.
func WithProvider(provider string) Option {
	return func(c *Client) {
		if provider != "" {
			c.provider = provider
		}
	}
}

// WithTracer sets the OpenTelemetry tracer used for per-phase spans.
func WithTracer(tracer oteltrace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// New creates a client for origin. The default HTTP client times out after
// timeout and is instrumented with otelhttp.
func New(origin string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		origin:   strings.TrimRight(origin, "/"),
		provider: DefaultProvider,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tracer: telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Deduct informs the upstream that one credit is being consumed. The returned
// error is always an ErrorKindUpstreamTransport; any HTTP status counts as an
// outcome.
func (c *Client) Deduct(ctx context.Context, id identity.Identity, model string, tr *trace.Trace) (*DeductOutcome, error) {
	ctx, span := c.tracer.Start(ctx, "upstream.deduct", oteltrace.WithAttributes(
		attribute.String("upstream.model", model),
	))
	defer span.End()

	payload := deductPayload{
		TransType:     "image_generation",
		Credits:       1,
		Model:         model,
		NumOutputs:    1,
		FingerprintID: id.Fingerprint,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, failSpan(span, domain.ErrUpstreamTransport("encode deduct payload", err))
	}
	tr.Append(StepDeductRequest, trace.Value(payload))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.origin+DeductPath, bytes.NewReader(body))
	if err != nil {
		return nil, failSpan(span, domain.ErrUpstreamTransport("create deduct request", err))
	}
	req.Header = id.Headers.Clone()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, failSpan(span, domain.ErrUpstreamTransport("deduct request failed", err))
	}
	defer resp.Body.Close()

	raw, err := readBody(resp.Body)
	if err != nil {
		return nil, failSpan(span, domain.ErrUpstreamTransport("read deduct response", err))
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	outcome := &DeductOutcome{StatusCode: resp.StatusCode, Body: bodyData(raw)}
	tr.Append(StepDeductResponse, trace.Value(map[string]any{
		"status": outcome.StatusCode,
		"body":   outcome.Body,
	}))
	return outcome, nil
}

// Generate requests one image and returns its URL.
func (c *Client) Generate(ctx context.Context, id identity.Identity, gen domain.GenerationRequest, tr *trace.Trace) (string, error) {
	gen = gen.Normalized()
	ctx, span := c.tracer.Start(ctx, "upstream.generate", oteltrace.WithAttributes(
		attribute.String("upstream.model", gen.Model),
		attribute.String("upstream.aspect_ratio", string(gen.AspectRatio)),
	))
	defer span.End()

	endpoint := c.origin + GeneratePath
	fields := []formField{
		{"prompt", gen.Prompt},
		{"model", gen.Model},
		{"num_outputs", "1"},
		{"inputMode", "text"},
		{"style", "auto"},
		{"aspectRatio", string(gen.AspectRatio)},
		{"fingerprint_id", id.Fingerprint},
		{"provider", c.provider},
	}
	body, contentType, err := encodeForm(fields)
	if err != nil {
		return "", failSpan(span, domain.ErrUpstreamTransport("encode generation form", err))
	}

	form := make(map[string]string, len(fields))
	for _, f := range fields {
		form[f.name] = f.value
	}
	tr.Append(StepGenerateRequest, trace.Value(generateRequestLog{
		URL:         endpoint,
		Provider:    c.provider,
		Prompt:      gen.Prompt,
		AspectRatio: string(gen.AspectRatio),
		Form:        form,
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", failSpan(span, domain.ErrUpstreamTransport("create generation request", err))
	}
	req.Header = id.WithoutContentType()
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", failSpan(span, domain.ErrUpstreamTransport("generation request failed", err))
	}
	defer resp.Body.Close()

	raw, err := readBody(resp.Body)
	if err != nil {
		return "", failSpan(span, domain.ErrUpstreamTransport("read generation response", err))
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if !gjson.ValidBytes(raw) {
		tr.Append(StepParseError, trace.Text(string(raw)))
		return "", failSpan(span, domain.ErrUpstreamMalformed(
			"Upstream returned non-JSON: "+preview(string(raw), malformedPreviewLen)))
	}
	tr.Append(StepGenerateResponse, trace.JSON(raw))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		compact := gjson.GetBytes(raw, "@ugly").Raw
		return "", failSpan(span, domain.ErrUpstreamHTTP(resp.StatusCode, []byte(compact)))
	}

	imageURL, err := parseEnvelope(raw)
	if err != nil {
		return "", failSpan(span, err)
	}
	return imageURL, nil
}

// parseEnvelope extracts data[0].url from a {code, data, message} envelope.
func parseEnvelope(raw []byte) (string, error) {
	env := gjson.ParseBytes(raw)
	code := env.Get("code")
	results := env.Get("data")

	if code.Type == gjson.Number && code.Num == 0 && results.IsArray() && len(results.Array()) > 0 {
		u := results.Get("0.url")
		if u.Type != gjson.String || u.String() == "" {
			return "", domain.ErrUpstreamLogical("upstream result is missing an image url")
		}
		return u.String(), nil
	}

	msg := env.Get("message").String()
	if msg == "" {
		msg = "Unknown upstream error"
	}
	return "", domain.ErrUpstreamLogical(msg)
}

func encodeForm(fields []formField) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f.name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func readBody(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxBodyBytes))
}

func bodyData(raw []byte) trace.Data {
	if gjson.ValidBytes(raw) {
		return trace.JSON(raw)
	}
	return trace.Text(string(raw))
}

// preview returns at most n characters of s.
func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func failSpan(span oteltrace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
