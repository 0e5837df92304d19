package textgen

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-haiku-4-5-20251001"

// AnthropicOption configures the Anthropic provider.
type AnthropicOption func(*anthropicProvider)

// WithAnthropicModel overrides the default model.
func WithAnthropicModel(model string) AnthropicOption {
	return func(p *anthropicProvider) {
		p.model = model
	}
}

type anthropicProvider struct {
	client sdk.Client
	model  string
}

// NewAnthropic creates a Provider backed by the official anthropic-sdk-go.
func NewAnthropic(apiKey string, opts ...AnthropicOption) Provider {
	p := &anthropicProvider{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		model:  defaultAnthropicModel,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *anthropicProvider) Name() string {
	return "anthropic"
}

func (p *anthropicProvider) Generate(ctx context.Context, req Request) (string, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		MaxTokens: maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", p.wrapError(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", &ProviderError{
			Provider: p.Name(),
			Kind:     KindMalformed,
			Err:      errors.New("empty completion"),
		}
	}
	return text, nil
}

func (p *anthropicProvider) TestConnection(ctx context.Context) error {
	_, err := p.Generate(ctx, Request{Prompt: "ping", MaxTokens: 8})
	return err
}

func (p *anthropicProvider) wrapError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:   p.Name(),
			Kind:       kindFromStatus(apiErr.StatusCode),
			StatusCode: apiErr.StatusCode,
			Err:        err,
		}
	}
	// No API error in the chain means the request never got a response.
	return &ProviderError{
		Provider: p.Name(),
		Kind:     KindNetwork,
		Err:      err,
	}
}
