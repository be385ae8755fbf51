package llm

import (
	"context"
	"errors"
)

var ErrEmptyResponse = errors.New("llm: model returned no text")

// Request is one generation call. ImageURI is optional; Search turns on web
// search grounding.
type Request struct {
	Prompt    string
	ImageURI  string
	ImageMIME string
	Search    bool
}

// Generator is the text (and text+image) generation capability.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
	Close() error
}
