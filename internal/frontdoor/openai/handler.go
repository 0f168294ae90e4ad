// Package openai serves the OpenAI-compatible chat, images and models
// endpoints on top of the generation pipeline.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/iemabdullah/ai-generator-2api/internal/adapter"
	"github.com/iemabdullah/ai-generator-2api/internal/codec"
	"github.com/iemabdullah/ai-generator-2api/internal/domain"
	"github.com/iemabdullah/ai-generator-2api/internal/server"
	"github.com/iemabdullah/ai-generator-2api/internal/tokens"
	"github.com/iemabdullah/ai-generator-2api/internal/trace"
)

// OwnedBy is reported for every listed model.
const OwnedBy = "ai-generator"

// streamBuffer bounds the frames queued between producer and writer.
const streamBuffer = 4

// Pipeline runs one generation.
type Pipeline interface {
	Run(ctx context.Context, prompt string, params adapter.Params, tr *trace.Trace) (*adapter.Result, error)
	Model() string
}

// ChatRequest is the accepted subset of a chat completion request.
type ChatRequest struct {
	Model    string                         `json:"model"`
	Messages []openai.ChatCompletionMessage `json:"messages"`
	Stream   bool                           `json:"stream"`
	// IsWebUI asks for the diagnostic trace as the first stream frame.
	IsWebUI bool `json:"is_web_ui"`
}

// ImageData is one generated image.
type ImageData struct {
	URL     string `json:"url,omitempty"`
	B64JSON string `json:"b64_json,omitempty"`
}

// ImageResponse is the images endpoint response.
type ImageResponse struct {
	Created int64       `json:"created"`
	Data    []ImageData `json:"data"`
}

// ModelObject is one entry of the models listing.
type ModelObject struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the models endpoint response.
type ModelList struct {
	Object string        `json:"object"`
	Data   []ModelObject `json:"data"`
}

// DebugFrame carries the trace snapshot ahead of the content frames.
type DebugFrame struct {
	Debug []trace.Entry `json:"debug"`
}

type Handler struct {
	pipeline Pipeline
	counter  *tokens.Counter
	images   *codec.ImageFetcher
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures a Handler.
type Option func(*Handler)

// WithImageFetcher sets the fetcher used for b64_json image responses.
func WithImageFetcher(f *codec.ImageFetcher) Option {
	return func(h *Handler) {
		h.images = f
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

func NewHandler(pipeline Pipeline, counter *tokens.Counter, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if counter == nil {
		counter = tokens.NewCounter("")
	}
	h := &Handler{
		pipeline: pipeline,
		counter:  counter,
		images:   codec.NewImageFetcher(),
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return "chatcmpl-" + uuid.New().String() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) HandleChatCompletion(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, r, domain.ErrInvalidInput("invalid request body: "+err.Error()).WithCause(err))
		return
	}

	model := h.pipeline.Model()
	server.AddLogField(r.Context(), "requested_model", req.Model)
	server.AddLogField(r.Context(), "served_model", model)
	if req.Stream {
		server.AddLogField(r.Context(), "stream", "true")
	}

	tr := trace.New(h.logger)

	prompt, err := adapter.PromptFromMessages(req.Messages)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.pipeline.Run(r.Context(), prompt, adapter.Params{AspectRatio: domain.DefaultAspectRatio}, tr)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	id := h.newID()
	created := h.now().Unix()

	if req.Stream {
		h.handleStream(w, r, id, created, res, tr, req.IsWebUI)
		return
	}

	codec.WriteJSON(w, http.StatusOK, openai.ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: created,
		Model:   res.Model,
		Choices: []openai.ChatCompletionChoice{{
			Index: 0,
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: res.Markdown,
			},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: h.counter.Usage(req.Messages, res.Markdown),
	})
}

// streamFrames lists the SSE payloads of a completed generation in order.
func streamFrames(id string, created int64, res *adapter.Result, debug []trace.Entry, withDebug bool) ([][]byte, error) {
	var payloads []any
	if withDebug {
		if debug == nil {
			debug = []trace.Entry{}
		}
		payloads = append(payloads, DebugFrame{Debug: debug})
	}
	payloads = append(payloads,
		openai.ChatCompletionStreamResponse{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   res.Model,
			Choices: []openai.ChatCompletionStreamChoice{{
				Index: 0,
				Delta: openai.ChatCompletionStreamChoiceDelta{Content: res.Markdown},
			}},
		},
		openai.ChatCompletionStreamResponse{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   res.Model,
			Choices: []openai.ChatCompletionStreamChoice{{
				Index:        0,
				Delta:        openai.ChatCompletionStreamChoiceDelta{},
				FinishReason: openai.FinishReasonStop,
			}},
		},
	)

	frames := make([][]byte, 0, len(payloads)+1)
	for _, p := range payloads {
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode stream frame: %w", err)
		}
		frames = append(frames, data)
	}
	return append(frames, []byte("[DONE]")), nil
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request, id string, created int64, res *adapter.Result, tr *trace.Trace, withDebug bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.fail(w, r, domain.ErrInternal("Streaming not supported"))
		return
	}

	all, err := streamFrames(id, created, res, tr.Snapshot(), withDebug)
	if err != nil {
		h.fail(w, r, domain.ErrInternal("failed to encode stream").WithCause(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	frames := make(chan []byte, streamBuffer)
	go func() {
		defer close(frames)
		for _, f := range all {
			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for f := range frames {
		if _, err := fmt.Fprintf(w, "data: %s\n\n", f); err != nil {
			h.logger.DebugContext(r.Context(), "stream client went away", slog.String("error", err.Error()))
			cancel()
			for range frames {
			}
			return
		}
		flusher.Flush()
	}
}

func (h *Handler) HandleImageGeneration(w http.ResponseWriter, r *http.Request) {
	var req openai.ImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, r, domain.ErrInvalidInput("invalid request body: "+err.Error()).WithCause(err))
		return
	}

	ratio := domain.AspectRatioForSize(req.Size)
	server.AddLogField(r.Context(), "aspect_ratio", string(ratio))

	tr := trace.New(h.logger)
	res, err := h.pipeline.Run(r.Context(), req.Prompt, adapter.Params{AspectRatio: ratio}, tr)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	item := ImageData{URL: res.ImageURL}
	if req.ResponseFormat == openai.CreateImageResponseFormatB64JSON {
		img, err := h.images.FetchBase64(r.Context(), res.ImageURL)
		if err != nil {
			h.fail(w, r, domain.ErrUpstreamTransport("failed to download generated image", err))
			return
		}
		item = ImageData{B64JSON: img.Data}
	}

	codec.WriteJSON(w, http.StatusOK, ImageResponse{
		Created: h.now().Unix(),
		Data:    []ImageData{item},
	})
}

func (h *Handler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	codec.WriteJSON(w, http.StatusOK, ModelList{
		Object: "list",
		Data: []ModelObject{{
			ID:      h.pipeline.Model(),
			Object:  "model",
			Created: h.now().Unix(),
			OwnedBy: OwnedBy,
		}},
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	server.AddError(r.Context(), err)
	h.logger.ErrorContext(r.Context(), "generation failed",
		slog.String("request_id", server.GetRequestID(r.Context())),
		slog.String("error", err.Error()),
	)
	codec.WriteError(w, err)
}
