package ai

import "context"

// Options tunes a single generation call. A nil Temperature or zero
// MaxOutputTokens leaves the provider default; a set Temperature is sent
// even when it is 0.
type Options struct {
	Temperature     *float64
	MaxOutputTokens int
}

// Temperature returns a pointer for Options.Temperature.
func Temperature(v float64) *float64 { return &v }

// TextGenerator turns a prompt into model text. Gemini, Ollama and
// OpenAI-compatible providers implement it.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error)
}
