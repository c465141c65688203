package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/pyqvault/pyqvault/internal/config"
)

// OpenAIClient calls OpenAI chat completions with image inputs.
type OpenAIClient struct {
	name    string
	model   string
	client  openai.Client
	limiter *RateLimiter
	timeout time.Duration
	log     *slog.Logger
}

var _ VisionClient = (*OpenAIClient)(nil)

// NewOpenAI builds a client from a provider config entry.
func NewOpenAI(name string, cfg config.ProviderConfig, log *slog.Logger) *OpenAIClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIClient{
		name:    name,
		model:   cfg.Model,
		client:  openai.NewClient(option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)),
		limiter: NewRateLimiter(cfg.RateLimitPerMin),
		timeout: timeout,
		log:     log.With("provider", name),
	}
}

// Name returns the configured provider name.
func (c *OpenAIClient) Name() string { return c.name }

// Model returns the model identifier.
func (c *OpenAIClient) Model() string { return c.model }

// Vision performs one model call. The returned result carries token and
// cost totals across any structured-output repair rounds.
func (c *OpenAIClient) Vision(ctx context.Context, req *VisionRequest) (*VisionResult, error) {
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
		if err := c.ensureStructured(ctx, req, res); err != nil {
			return fail(err)
		}
	}

	res.Success = true
	res.ExecutionTime = time.Since(start)
	return res, nil
}

// ensureStructured parses and validates res.Content against the request
// schema, asking the model to repair its output a bounded number of times.
func (c *OpenAIClient) ensureStructured(ctx context.Context, req *VisionRequest, res *VisionResult) error {
	for attempt := 0; ; attempt++ {
		parsed, err := parseStructuredJSON(res.Content)
		if err == nil {
			if err = validateStructuredJSON(req.Schema, parsed); err == nil {
				res.ParsedJSON = parsed
				return nil
			}
		}

		if attempt >= maxStructuredRepairAttempts {
			return fmt.Errorf("structured output invalid after %d repair attempts: %w", attempt, err)
		}

		c.log.Warn("repairing structured output", "attempt", attempt+1, "error", err)
		repaired, callErr := c.complete(ctx, req,
			structuredRepairPrompt(req.Schema, res.Content, err), nil, res)
		if callErr != nil {
			return callErr
		}
		res.Content = repaired
	}
}

// complete performs one chat completion and accumulates usage into res.
func (c *OpenAIClient) complete(ctx context.Context, req *VisionRequest, prompt string, images [][]byte, res *VisionResult) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(prompt),
	}
	for _, img := range images {
		dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(img)
		parts = append(parts, openai.ImageContentPart(
			openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}))
	}

	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(parts))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	resp, err := c.client.Chat.Completions.New(callCtx, params)
	if err != nil {
		return "", c.wrapError(err)
	}

	res.InputTokens += resp.Usage.PromptTokens
	res.OutputTokens += resp.Usage.CompletionTokens
	res.CostUSD += estimateCost(c.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// wrapError converts SDK errors into APIError so retry classification
// can see the HTTP status.
func (c *OpenAIClient) wrapError(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode == 429 {
			c.limiter.Record429()
		}
		return &APIError{
			Provider:   c.name,
			StatusCode: apierr.StatusCode,
			Message:    apierr.Message,
		}
	}
	return fmt.Errorf("openai request failed: %w", err)
}
