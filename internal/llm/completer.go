// Package llm is the text-generation boundary used by the question generators and
// the report synthesizer.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Request is one stateless completion call.
type Request struct {
	System      string  `json:"system_prompt"`
	User        string  `json:"user_prompt"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_output_tokens"`
	// JSON asks the backend for a single JSON object.
	JSON bool `json:"json"`
}

// Completer produces text for a request. Callers treat any error as a generation
// failure and fall back.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

var ErrEmptyCompletion = errors.New("empty completion")

// Config controls completer construction.
type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	HTTPURL  string
	Timeout  time.Duration
}

func New(cfg Config) (Completer, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "auto"
	}

	var c Completer
	switch provider {
	case "auto":
		c = newAuto(cfg)
	case "openai":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("openai api key is required for openai provider")
		}
		c = NewOpenAICompleter(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("llm HTTP url is required for http provider")
		}
		c = NewHTTPCompleter(cfg.HTTPURL)
	case "mock":
		c = NewMockCompleter()
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	return WithTimeout(c, cfg.Timeout), nil
}

func newAuto(cfg Config) Completer {
	if strings.TrimSpace(cfg.APIKey) != "" {
		return NewOpenAICompleter(cfg.APIKey, cfg.BaseURL, cfg.Model)
	}
	if strings.TrimSpace(cfg.HTTPURL) != "" {
		return NewHTTPCompleter(cfg.HTTPURL)
	}
	return NewMockCompleter()
}

// Name reports which backend sits behind c, unwrapping decorators.
func Name(c Completer) string {
	switch v := c.(type) {
	case *timeoutCompleter:
		return Name(v.next)
	case *OpenAICompleter:
		return "openai:" + v.model
	case *HTTPCompleter:
		return "http"
	case *MockCompleter:
		return "mock"
	default:
		return "custom"
	}
}

type timeoutCompleter struct {
	next    Completer
	timeout time.Duration
}

// WithTimeout bounds every call to d. A non-positive d returns c unchanged.
func WithTimeout(c Completer, d time.Duration) Completer {
	if d <= 0 {
		return c
	}
	return &timeoutCompleter{next: c, timeout: d}
}

func (t *timeoutCompleter) Complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Complete(ctx, req)
}
