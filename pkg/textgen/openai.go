package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
)

// OpenAIOption configures the OpenAI-compatible provider.
type OpenAIOption func(*openaiProvider)

// WithOpenAIBaseURL overrides the default API base URL. Any endpoint that
// speaks the chat completions protocol works.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(p *openaiProvider) {
		p.baseURL = strings.TrimRight(url, "/")
	}
}

// WithOpenAIModel overrides the default model.
func WithOpenAIModel(model string) OpenAIOption {
	return func(p *openaiProvider) {
		p.model = model
	}
}

// WithOpenAIHTTPClient overrides the default http.Client.
func WithOpenAIHTTPClient(hc *http.Client) OpenAIOption {
	return func(p *openaiProvider) {
		p.http = hc
	}
}

type openaiProvider struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

// NewOpenAI creates a Provider for any OpenAI-compatible chat completions API.
func NewOpenAI(apiKey string, opts ...OpenAIOption) Provider {
	p := &openaiProvider{
		apiKey:  apiKey,
		baseURL: defaultOpenAIBaseURL,
		model:   defaultOpenAIModel,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *openaiProvider) Name() string {
	return "openai"
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (p *openaiProvider) Generate(ctx context.Context, req Request) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	chatReq := chatRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = &req.MaxTokens
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return "", eris.Wrap(err, "openai: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "openai: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return "", &ProviderError{Provider: p.Name(), Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ProviderError{Provider: p.Name(), Kind: KindNetwork, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{
			Provider:   p.Name(),
			Kind:       kindFromStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Err:        eris.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(respBody, 200)),
		}
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &ProviderError{Provider: p.Name(), Kind: KindMalformed, Err: err}
	}
	if len(result.Choices) == 0 {
		return "", &ProviderError{Provider: p.Name(), Kind: KindMalformed, Err: errors.New("no choices in response")}
	}

	text := strings.TrimSpace(result.Choices[0].Message.Content)
	if text == "" {
		return "", &ProviderError{Provider: p.Name(), Kind: KindMalformed, Err: errors.New("empty completion")}
	}
	return text, nil
}

func (p *openaiProvider) TestConnection(ctx context.Context) error {
	_, err := p.Generate(ctx, Request{Prompt: "ping", MaxTokens: 8})
	return err
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
