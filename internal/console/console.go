// Package console serves the browser developer console at the root path.
package console

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/iemabdullah/ai-generator-2api/internal/codec"
	"github.com/iemabdullah/ai-generator-2api/internal/domain"
)

//go:embed templates/console.html.tmpl
var templatesFS embed.FS

var page = template.Must(template.ParseFS(templatesFS, "templates/console.html.tmpl"))

// Info describes the deployment shown on the console.
type Info struct {
	ProjectName string
	Version     string
	Model       string
	// APIKey is pre-filled only in open-auth mode; otherwise the operator
	// types it into the page.
	APIKey string
}

type pageData struct {
	Info
	Origin   string
	Endpoint string
}

type Handler struct {
	info   Info
	logger *slog.Logger
}

func NewHandler(info Info, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{info: info, logger: logger}
}

// ServeHTTP renders the console for the origin the browser used.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := requestOrigin(r)
	data := pageData{
		Info:     h.info,
		Origin:   origin,
		Endpoint: origin + "/v1/chat/completions",
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		h.logger.ErrorContext(r.Context(), "render console", slog.String("error", err.Error()))
		codec.WriteError(w, domain.ErrInternal("failed to render console").WithCause(err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" || proto == "http" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
