package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/pyqvault/pyqvault/internal/config"
)

// AnthropicClient calls the Anthropic Messages API with image inputs.
type AnthropicClient struct {
	name    string
	model   string
	client  anthropic.Client
	limiter *RateLimiter
	timeout time.Duration
	log     *slog.Logger
}

var _ VisionClient = (*AnthropicClient)(nil)

// NewAnthropic builds a client from a provider config entry.
func NewAnthropic(name string, cfg config.ProviderConfig, log *slog.Logger) *AnthropicClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &AnthropicClient{
		name:    name,
		model:   cfg.Model,
		client:  anthropic.NewClient(option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)),
		limiter: NewRateLimiter(cfg.RateLimitPerMin),
		timeout: timeout,
		log:     log.With("provider", name),
	}
}

// Name returns the configured provider name.
func (c *AnthropicClient) Name() string { return c.name }

// Model returns the model identifier.
func (c *AnthropicClient) Model() string { return c.model }

// Vision performs one model call with the same structured-output repair
// loop as the OpenAI client.
func (c *AnthropicClient) Vision(ctx context.Context, req *VisionRequest) (*VisionResult, error) {
	start := time.Now()
	res := &VisionResult{Provider: c.name, ModelUsed: c.model}

	fail := func(err error) (*VisionResult, error) {
		res.ExecutionTime = time.Since(start)
		res.ErrorType = Classify(err)
		res.ErrorMessage = err.Error()
		return res, err
	}

	prompt := req.Prompt
	if len(req.Schema) > 0 {
		prompt += structuredPromptSuffix(req.Schema)
	}

	content, err := c.complete(ctx, req, prompt, req.Images, res)
	if err != nil {
		return fail(err)
	}
	res.Content = content

	if len(req.Schema) > 0 {
		for attempt := 0; ; attempt++ {
			parsed, perr := parseStructuredJSON(res.Content)
			if perr == nil {
				if perr = validateStructuredJSON(req.Schema, parsed); perr == nil {
					res.ParsedJSON = parsed
					break
				}
			}

			if attempt >= maxStructuredRepairAttempts {
				return fail(fmt.Errorf("structured output invalid after %d repair attempts: %w", attempt, perr))
			}

			c.log.Warn("repairing structured output", "attempt", attempt+1, "error", perr)
			repaired, callErr := c.complete(ctx, req,
				structuredRepairPrompt(req.Schema, res.Content, perr), nil, res)
			if callErr != nil {
				return fail(callErr)
			}
			res.Content = repaired
		}
	}

	res.Success = true
	res.ExecutionTime = time.Since(start)
	return res, nil
}

// complete performs one Messages call and accumulates usage into res.
func (c *AnthropicClient) complete(ctx context.Context, req *VisionRequest, prompt string, images [][]byte, res *VisionResult) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	blocks := []anthropic.ContentBlockParamUnion{}
	for _, img := range images {
		blocks = append(blocks, anthropic.NewImageBlockBase64("image/png",
			base64.StdEncoding.EncodeToString(img)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(prompt))

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}

	message, err := c.client.Messages.New(callCtx, params)
	if err != nil {
		return "", c.wrapError(err)
	}

	res.InputTokens += message.Usage.InputTokens
	res.OutputTokens += message.Usage.OutputTokens
	res.CostUSD += estimateCost(c.model, message.Usage.InputTokens, message.Usage.OutputTokens)

	var content string
	for _, block := range message.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	if content == "" {
		return "", fmt.Errorf("anthropic returned no text content")
	}
	return content, nil
}

// wrapError converts SDK errors into APIError so retry classification
// can see the HTTP status.
func (c *AnthropicClient) wrapError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode == 429 {
			c.limiter.Record429()
		}
		return &APIError{
			Provider:   c.name,
			StatusCode: apierr.StatusCode,
			Message:    apierr.Error(),
		}
	}
	return fmt.Errorf("anthropic request failed: %w", err)
}
