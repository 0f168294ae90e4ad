// Package tokens fills the usage block of chat completions.
package tokens

import (
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"github.com/tiktoken-go/tokenizer"
)

// Chat framing overhead, as documented for the cl100k family.
const (
	tokensPerMessage = 3
	tokensPerRole    = 1
	assistantPriming = 3
)

// Counter counts tokens with tiktoken, falling back to a character
// estimate when the encoding cannot be loaded.
type Counter struct {
	encoding tokenizer.Encoding

	once     sync.Once
	codec    tokenizer.Codec
	codecErr error

	// CharsPerToken is used by the fallback estimate (default: 4)
	CharsPerToken float64
}

// NewCounter creates a counter for encoding. An empty encoding selects cl100k_base.
func NewCounter(encoding tokenizer.Encoding) *Counter {
	if encoding == "" {
		encoding = tokenizer.Cl100kBase
	}
	return &Counter{
		encoding:      encoding,
		CharsPerToken: 4.0,
	}
}

func (c *Counter) getCodec() (tokenizer.Codec, error) {
	c.once.Do(func() {
		c.codec, c.codecErr = tokenizer.Get(c.encoding)
		if c.codecErr != nil {
			c.codecErr = fmt.Errorf("failed to get tokenizer encoding: %w", c.codecErr)
		}
	})
	return c.codec, c.codecErr
}

// CountText counts tokens in a plain string.
func (c *Counter) CountText(text string) int {
	if text == "" {
		return 0
	}
	codec, err := c.getCodec()
	if err != nil {
		return c.estimate(text)
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return c.estimate(text)
	}
	return len(ids)
}

// CountMessages counts the prompt tokens of a chat request, including
// per-message framing and the assistant priming tokens.
func (c *Counter) CountMessages(messages []openai.ChatCompletionMessage) int {
	total := 0
	for _, msg := range messages {
		total += tokensPerMessage + tokensPerRole
		if len(msg.MultiContent) > 0 {
			for _, part := range msg.MultiContent {
				if part.Type == openai.ChatMessagePartTypeText {
					total += c.CountText(part.Text)
				}
			}
			continue
		}
		total += c.CountText(msg.Content)
	}
	return total + assistantPriming
}

// Usage builds the usage block for a completion.
func (c *Counter) Usage(messages []openai.ChatCompletionMessage, completion string) openai.Usage {
	prompt := c.CountMessages(messages)
	completionTokens := c.CountText(completion)
	return openai.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completionTokens,
		TotalTokens:      prompt + completionTokens,
	}
}

func (c *Counter) estimate(text string) int {
	n := int(float64(len(text)) / c.CharsPerToken)
	if n == 0 {
		return 1
	}
	return n
}
