package llm

import (
	"context"
	"strings"
	"sync"
)

// FakeGenerator returns scripted responses for offline runs and tests. Rules
// are matched in order against the prompt; the first rule whose substring
// occurs wins.
type FakeGenerator struct {
	mu       sync.Mutex
	rules    []fakeRule
	fallback string
	calls    []Request
}

type fakeRule struct {
	contains string
	text     string
	err      error
}

func NewFakeGenerator(fallback string) *FakeGenerator {
	return &FakeGenerator{fallback: fallback}
}

// On registers a response for prompts containing substr.
func (f *FakeGenerator) On(substr, text string) *FakeGenerator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, fakeRule{contains: substr, text: text})
	return f
}

// Fail registers an error for prompts containing substr.
func (f *FakeGenerator) Fail(substr string, err error) *FakeGenerator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, fakeRule{contains: substr, err: err})
	return f
}

func (f *FakeGenerator) Name() string { return "FakeLLM" }
func (f *FakeGenerator) Close() error { return nil }

func (f *FakeGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	for _, r := range f.rules {
		if strings.Contains(req.Prompt, r.contains) {
			if r.err != nil {
				return "", r.err
			}
			return r.text, nil
		}
	}
	if f.fallback == "" {
		return "", ErrEmptyResponse
	}
	return f.fallback, nil
}

// Calls returns a copy of every request seen so far.
func (f *FakeGenerator) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.calls...)
}
