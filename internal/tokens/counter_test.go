package tokens

import (
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestCounter_CountText(t *testing.T) {
	c := NewCounter("")

	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"single word", "hello", 1},
		{"sentence", "Hello, world!", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.CountText(tt.text); got != tt.want {
				t.Errorf("CountText(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestCounter_CountMessages(t *testing.T) {
	c := NewCounter("")

	plain := []openai.ChatCompletionMessage{{Role: "user", Content: "hello"}}
	if got, want := c.CountMessages(plain), tokensPerMessage+tokensPerRole+1+assistantPriming; got != want {
		t.Errorf("CountMessages(plain) = %d, want %d", got, want)
	}

	parts := []openai.ChatCompletionMessage{{Role: "user", MultiContent: []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: "hello"},
		{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: "https://x/a.png"}},
	}}}
	if got := c.CountMessages(parts); got != c.CountMessages(plain) {
		t.Errorf("CountMessages(parts) = %d, want image parts ignored (%d)", got, c.CountMessages(plain))
	}

	if got := c.CountMessages(nil); got != assistantPriming {
		t.Errorf("CountMessages(nil) = %d, want %d", got, assistantPriming)
	}
}

func TestCounter_Usage(t *testing.T) {
	c := NewCounter("")
	messages := []openai.ChatCompletionMessage{{Role: "user", Content: "a lighthouse at dusk"}}
	completion := "![Generated Image](https://x/y.png)"

	u := c.Usage(messages, completion)
	if u.PromptTokens != c.CountMessages(messages) {
		t.Errorf("PromptTokens = %d", u.PromptTokens)
	}
	if u.CompletionTokens == 0 {
		t.Error("CompletionTokens = 0, want > 0")
	}
	if u.TotalTokens != u.PromptTokens+u.CompletionTokens {
		t.Errorf("TotalTokens = %d, want sum", u.TotalTokens)
	}
}

func TestCounter_Estimate(t *testing.T) {
	c := NewCounter("")
	if got := c.estimate("abcdefgh"); got != 2 {
		t.Errorf("estimate() = %d, want 2", got)
	}
	if got := c.estimate("ab"); got != 1 {
		t.Errorf("estimate() = %d, want 1", got)
	}
}
