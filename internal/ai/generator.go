package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// Decoding holds the fixed decoding parameters used for every completion.
type Decoding struct {
	MaxNewTokens int
	Temperature  float64
	DoSample     bool
	Seed         int
}

type Generator struct {
	model    llms.Model
	decoding Decoding
}

func NewGenerator(model llms.Model, decoding Decoding) (*Generator, error) {
	if model == nil {
		return nil, errors.New("generation model is required")
	}
	if decoding.MaxNewTokens <= 0 {
		return nil, errors.New("max new tokens must be positive")
	}
	return &Generator{model: model, decoding: decoding}, nil
}

// CallOptions maps the decoding parameters onto langchaingo options. Without
// sampling the model decodes greedily: temperature 0 and a single candidate.
func (g *Generator) CallOptions() []llms.CallOption {
	opts := []llms.CallOption{llms.WithMaxTokens(g.decoding.MaxNewTokens)}
	if g.decoding.DoSample {
		opts = append(opts, llms.WithTemperature(g.decoding.Temperature))
	} else {
		opts = append(opts, llms.WithTemperature(0), llms.WithTopK(1))
	}
	if g.decoding.Seed != 0 {
		opts = append(opts, llms.WithSeed(g.decoding.Seed))
	}
	return opts
}

// Generate returns the completion for prompt with surrounding whitespace removed.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, g.model, prompt, g.CallOptions()...)
	if err != nil {
		return "", fmt.Errorf("generate answer failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}
