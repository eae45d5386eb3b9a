// Package provider abstracts the language model used to compile rule
// conditions. Compilation logic depends only on Generator, so backends and
// test doubles are interchangeable.
package provider

import (
	"context"
	"time"
)

// Generator produces a completion for a prompt
type Generator interface {
	// Generate returns the raw text the model produced for prompt
	Generate(ctx context.Context, prompt string) (string, error)

	// CheckHealth reports whether the backend is reachable and serving the model
	CheckHealth(ctx context.Context) bool

	Name() string
}

// Config configures an HTTP model backend
type Config struct {
	Endpoint string
	Model    string
	Timeout  time.Duration

	// Options are passed through to the backend unchanged (temperature etc.)
	Options map[string]any
}
