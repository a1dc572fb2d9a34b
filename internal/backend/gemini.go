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

// KindGemini is the Google Generative Language API driver.
const KindGemini = "gemini"

const defaultGeminiEndpoint = "https://generativelanguage.googleapis.com"

// Gemini binds API keys to generateContent sessions.
type Gemini struct {
	model    string
	endpoint string
	client   *http.Client
}

// NewGemini creates a Gemini driver.
func NewGemini(opts Options) *Gemini {
	endpoint := strings.TrimRight(opts.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultGeminiEndpoint
	}
	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &Gemini{model: model, endpoint: endpoint, client: opts.client()}
}

func (g *Gemini) Kind() string { return KindGemini }

// Bind checks the key shape only; the key is proven by the first call.
func (g *Gemini) Bind(_ context.Context, credential string) (Session, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, ErrEmptyCredential
	}
	return &geminiSession{driver: g, apiKey: credential}, nil
}

type geminiSession struct {
	driver *Gemini
	apiKey string
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (s *geminiSession) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("gemini: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", s.driver.endpoint, s.driver.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", s.apiKey)

	httpResp, err := s.driver.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return "", fmt.Errorf("gemini: status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var gResp geminiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&gResp); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}
	if gResp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini: prompt blocked: %s", gResp.PromptFeedback.BlockReason)
	}

	var sb strings.Builder
	if len(gResp.Candidates) > 0 {
		for _, p := range gResp.Candidates[0].Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	return sb.String(), nil
}
