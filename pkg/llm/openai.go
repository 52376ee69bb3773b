package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOpenAIModel = "gpt-4o-mini"
	openAIBaseURL      = "https://api.openai.com/v1"
)

type OpenAIProvider struct {
	APIKey  string
	Model   string
	BaseURL string
	Client  *http.Client
}

func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: openAIBaseURL,
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *OpenAIProvider) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenAI API returned status: %s", resp.Status)
	}

	var result struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	var models []string
	for _, m := range result.Data {
		if strings.HasPrefix(m.ID, "gpt-") || strings.HasPrefix(m.ID, "o") {
			models = append(models, m.ID)
		}
	}
	return models, nil
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generate calls the chat completions endpoint in JSON mode.
func (p *OpenAIProvider) Generate(ctx context.Context, system string, history []Message) (string, error) {
	body := struct {
		Model          string          `json:"model"`
		Messages       []openAIMessage `json:"messages"`
		Temperature    float64         `json:"temperature"`
		ResponseFormat map[string]any  `json:"response_format"`
	}{
		Model:          p.Model,
		ResponseFormat: map[string]any{"type": "json_object"},
	}
	if system != "" {
		body.Messages = append(body.Messages, openAIMessage{Role: "system", Content: system})
	}
	for _, m := range history {
		role := "user"
		if m.Role == "model" {
			role = "assistant"
		}
		body.Messages = append(body.Messages, openAIMessage{Role: role, Content: m.Content})
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Provider: "openai", Code: resp.StatusCode, Status: resp.Status}
	}

	var result struct {
		Choices []struct {
			Message openAIMessage `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return result.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) Close() error { return nil }

// StatusError is a non-200 answer from an HTTP provider.
type StatusError struct {
	Provider string
	Code     int
	Status   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API returned status: %s", e.Provider, e.Status)
}

// RateLimited reports whether the provider asked the caller to slow down.
func (e *StatusError) RateLimited() bool {
	return e.Code == http.StatusTooManyRequests
}
