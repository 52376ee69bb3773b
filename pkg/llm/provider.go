// Package llm wraps the chat-completion providers used by the AI verifier.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"google.golang.org/api/googleapi"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("empty model response")

// Message is one turn of a conversation.
type Message struct {
	Role    string // "user" or "model"
	Content string
}

// Provider generates text from a conversation.
type Provider interface {
	Generate(ctx context.Context, system string, history []Message) (string, error)
	ListModels(ctx context.Context) ([]string, error)
	Close() error
}

// Providers lists the supported provider names.
func Providers() []string {
	names := []string{"gemini", "openai", "anthropic"}
	sort.Strings(names)
	return names
}

// NewProvider builds the named provider. An empty model selects its default.
func NewProvider(ctx context.Context, providerName, apiKey, modelName string) (Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured for %s", providerName)
	}
	switch providerName {
	case "gemini":
		return NewGeminiProvider(ctx, apiKey, modelName)
	case "openai":
		return NewOpenAIProvider(apiKey, modelName), nil
	case "anthropic":
		return NewAnthropicProvider(apiKey, modelName), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", providerName)
	}
}

// IsRateLimited reports whether err is a provider telling the caller to back off.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.RateLimited()
	}
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		return ge.Code == http.StatusTooManyRequests
	}
	var hc interface{ HTTPCode() int }
	if errors.As(err, &hc) && hc.HTTPCode() == http.StatusTooManyRequests {
		return true
	}
	// gRPC transports only expose the status code in the message.
	return strings.Contains(err.Error(), "code = ResourceExhausted")
}
