package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// KindOpenAI is any OpenAI-compatible chat completions endpoint.
const KindOpenAI = "openai"

const defaultOpenAIEndpoint = "https://api.openai.com/v1"

// OpenAI binds API keys to chat completion sessions.
type OpenAI struct {
	model    string
	endpoint string
	client   *http.Client
}

// NewOpenAI creates an OpenAI-compatible driver.
func NewOpenAI(opts Options) *OpenAI {
	endpoint := strings.TrimRight(opts.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}
	model := opts.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAI{model: model, endpoint: endpoint, client: opts.client()}
}

func (o *OpenAI) Kind() string { return KindOpenAI }

func (o *OpenAI) Bind(_ context.Context, credential string) (Session, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, ErrEmptyCredential
	}
	return &openAISession{driver: o, apiKey: credential}, nil
}

type openAISession struct {
	driver *OpenAI
	apiKey string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (s *openAISession) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(openAIRequest{
		Model:    s.driver.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("openai: encode request: %w", err)
	}

	url := s.driver.endpoint + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	httpResp, err := s.driver.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return "", fmt.Errorf("openai: status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var oaiResp openAIResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&oaiResp); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}

	content := ""
	if len(oaiResp.Choices) > 0 {
		content = oaiResp.Choices[0].Message.Content
	}
	if content == "" {
		return "", fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	return content, nil
}
