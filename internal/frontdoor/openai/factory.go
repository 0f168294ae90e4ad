package openai

import (
	"net/http"
)

// Route defines an HTTP route registration.
type Route struct {
	Path    string
	Method  string
	Handler func(http.ResponseWriter, *http.Request)
	// Protected routes require the bearer key.
	Protected bool
}

// CreateHandlerRegistrations creates the HTTP handler registrations for the OpenAI surface.
func CreateHandlerRegistrations(handler *Handler, basePath string) []Route {
	return []Route{
		{Path: basePath + "/v1/chat/completions", Method: http.MethodPost, Handler: handler.HandleChatCompletion, Protected: true},
		{Path: basePath + "/v1/images/generations", Method: http.MethodPost, Handler: handler.HandleImageGeneration, Protected: true},
		{Path: basePath + "/v1/models", Method: http.MethodGet, Handler: handler.HandleListModels},
	}
}
