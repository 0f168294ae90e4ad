package domain

import (
	"github.com/sashabaranov/go-openai"
)

// AspectRatio is one of the aspect ratios the upstream generator accepts.
type AspectRatio string

const (
	AspectRatioSquare    AspectRatio = "1:1"
	AspectRatioPortrait  AspectRatio = "9:16"
	AspectRatioLandscape AspectRatio = "16:9"
)

// DefaultAspectRatio is used whenever a request does not name a valid one.
const DefaultAspectRatio = AspectRatioSquare

// AspectRatioForSize maps an OpenAI image size token to an aspect ratio.
// Unrecognized sizes map to the default.
func AspectRatioForSize(size string) AspectRatio {
	switch size {
	case openai.CreateImageSize1024x1792:
		return AspectRatioPortrait
	case openai.CreateImageSize1792x1024:
		return AspectRatioLandscape
	default:
		return DefaultAspectRatio
	}
}

// GenerationRequest is one text-to-image generation.
type GenerationRequest struct {
	Prompt      string
	Model       string
	AspectRatio AspectRatio
}

// Normalized returns a copy with the aspect ratio defaulted.
func (r GenerationRequest) Normalized() GenerationRequest {
	if r.AspectRatio == "" {
		r.AspectRatio = DefaultAspectRatio
	}
	return r
}
