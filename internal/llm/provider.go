// Package llm abstracts the text-generation providers consumed by the
// structured extraction stages.
package llm

import (
	"context"
)

// Provider is the interface for text-generation backends.
type Provider interface {
	// Name returns the provider name (e.g., "openai", "ollama")
	Name() string

	// Available returns true if the provider is configured and ready
	Available() bool

	// Generate sends a prompt and returns the response
	Generate(ctx context.Context, req Request) (Response, error)
}

// Request is a single prompt request.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
	// JSON asks the provider for a JSON-object response where supported.
	JSON bool
}

// Response is the provider's reply.
type Response struct {
	Content     string
	Model       string
	RawResponse string // Raw API response body for logging/debugging
}

// Manager holds multiple providers with preference-ordered fallback.
type Manager struct {
	providers []Provider
	preferred string
}

// NewManager creates an empty provider manager.
func NewManager() *Manager {
	return &Manager{}
}

// Add registers a provider.
func (m *Manager) Add(p Provider) {
	m.providers = append(m.providers, p)
}

// SetPreferred sets the preferred provider by name.
func (m *Manager) SetPreferred(name string) {
	m.preferred = name
}

// Active returns the preferred provider when it is available, otherwise the
// first available provider, otherwise nil.
func (m *Manager) Active() Provider {
	if m.preferred != "" {
		for _, p := range m.providers {
			if p.Name() == m.preferred && p.Available() {
				return p
			}
		}
	}
	for _, p := range m.providers {
		if p.Available() {
			return p
		}
	}
	return nil
}
