// Package model defines the provider-neutral language model interface used by
// the reply engine, plus a deterministic mock for tests. Concrete adapters
// live in the openai and anthropic subpackages.
package model

import (
	"context"
	"fmt"

	"github.com/standbybot/standby/core"
)

// Request captures the normalized model input produced by the reply engine.
type Request struct {
	// System carries the instructions and any retrieved context.
	System string
	// Turns is the prior conversation window, oldest first.
	Turns []core.Turn
	// Input is the current user message.
	Input string
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completed, non-streaming model reply.
type Response struct {
	Text  string
	Usage TokenUsage
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Model is the minimal interface required to drive reply generation. A single
// attempt per call; retry policy is the caller's concern.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// Embedder turns text into a vector for semantic retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
type MockModel struct {
	info      Info
	responses map[string]string
	err       error
}

// NewMockModel constructs a MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(input, response string) { m.responses[input] = response }

// FailWith makes every Generate call return err.
func (m *MockModel) FailWith(err error) { m.err = err }

// Generate implements Model. It honors context cancellation and returns the
// canned response for the input, or a generic echo when none is registered.
func (m *MockModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}
	text, ok := m.responses[req.Input]
	if !ok {
		text = fmt.Sprintf("Mock response to: %s", req.Input)
	}
	return &Response{Text: text}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
