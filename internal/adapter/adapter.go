// Package adapter runs the generation pipeline behind the OpenAI-compatible
// endpoints: prompt extraction, identity synthesis, the deduct and generate
// calls, and rendering of the result.
package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/iemabdullah/ai-generator-2api/internal/domain"
	"github.com/iemabdullah/ai-generator-2api/internal/identity"
	"github.com/iemabdullah/ai-generator-2api/internal/trace"
	"github.com/iemabdullah/ai-generator-2api/internal/upstream"
)

// Trace step labels.
const (
	StepIdentityCreated = "Identity Created"
	StepDeductError     = "Deduct Error"
	StepFatalError      = "Fatal Error"
)

// Upstream is the two-phase protocol the adapter drives.
type Upstream interface {
	Deduct(ctx context.Context, id identity.Identity, model string, tr *trace.Trace) (*upstream.DeductOutcome, error)
	Generate(ctx context.Context, id identity.Identity, gen domain.GenerationRequest, tr *trace.Trace) (string, error)
}

// IdentitySource produces one synthetic identity per call.
type IdentitySource interface {
	Synthesize() identity.Identity
}

// Params are the per-request generation parameters.
type Params struct {
	AspectRatio domain.AspectRatio
}

// Result is a completed generation.
type Result struct {
	ImageURL string
	Markdown string
	Model    string
}

// Adapter wires the identity source and the upstream client together.
type Adapter struct {
	identities IdentitySource
	upstream   Upstream
	model      string
	logger     *slog.Logger
}

// New creates an Adapter that always requests model from the upstream.
func New(identities IdentitySource, up Upstream, model string, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		identities: identities,
		upstream:   up,
		model:      model,
		logger:     logger,
	}
}

// Model returns the upstream model every request is served with.
func (a *Adapter) Model() string {
	return a.model
}

// Run executes one generation. Deduct failures are recorded and ignored;
// only the generate phase can fail the request.
func (a *Adapter) Run(ctx context.Context, prompt string, params Params, tr *trace.Trace) (*Result, error) {
	if strings.TrimSpace(prompt) == "" {
		err := domain.ErrInvalidInput("prompt is empty")
		tr.Append(StepFatalError, trace.Text(err.Message))
		return nil, err
	}

	id := a.identities.Synthesize()
	tr.Append(StepIdentityCreated, trace.Value(identityLog{
		Fingerprint: id.Fingerprint,
		AnonUserID:  id.AnonUserID,
		FakeIP:      id.SpoofedIP,
		UserAgent:   id.Headers.Get("User-Agent"),
		Headers:     flattenHeaders(id),
	}))

	if _, err := a.upstream.Deduct(ctx, id, a.model, tr); err != nil {
		a.logger.WarnContext(ctx, "deduct failed, continuing",
			slog.String("fingerprint", id.Fingerprint),
			slog.String("error", err.Error()),
		)
		tr.Append(StepDeductError, trace.Text(err.Error()))
	}

	url, err := a.upstream.Generate(ctx, id, domain.GenerationRequest{
		Prompt:      prompt,
		Model:       a.model,
		AspectRatio: params.AspectRatio,
	}, tr)
	if err != nil {
		apiErr := domain.AsAPIError(err)
		tr.Append(StepFatalError, trace.Text(apiErr.Message))
		return nil, apiErr
	}

	return &Result{
		ImageURL: url,
		Markdown: RenderMarkdown(url),
		Model:    a.model,
	}, nil
}

type identityLog struct {
	Fingerprint string            `json:"fingerprint"`
	AnonUserID  string            `json:"anonUserId"`
	FakeIP      string            `json:"fakeIP"`
	UserAgent   string            `json:"userAgent"`
	Headers     map[string]string `json:"headers"`
}

func flattenHeaders(id identity.Identity) map[string]string {
	out := make(map[string]string, len(id.Headers))
	for name := range id.Headers {
		out[name] = id.Headers.Get(name)
	}
	return out
}

// RenderMarkdown wraps an image URL in a Markdown image reference.
func RenderMarkdown(url string) string {
	return fmt.Sprintf("![Generated Image](%s)", url)
}

// PromptFromMessages extracts the prompt from the last chat message. Text
// parts of multi-part content are joined with single spaces; other parts are
// dropped.
func PromptFromMessages(messages []openai.ChatCompletionMessage) (string, error) {
	if len(messages) == 0 {
		return "", domain.ErrInvalidInput("messages must not be empty")
	}
	last := messages[len(messages)-1]

	prompt := last.Content
	if len(last.MultiContent) > 0 {
		var texts []string
		for _, part := range last.MultiContent {
			if part.Type == openai.ChatMessagePartTypeText {
				texts = append(texts, part.Text)
			}
		}
		prompt = strings.Join(texts, " ")
	}

	if strings.TrimSpace(prompt) == "" {
		return "", domain.ErrInvalidInput("last message has no text content")
	}
	return prompt, nil
}
