// Package providers wraps vision-capable LLM APIs behind a single
// interface with rate limiting, retry classification and structured
// output validation.
package providers

import (
	"context"
	"encoding/json"
	"time"
)

// VisionRequest is a single multimodal model call: a prompt plus zero
// or more PNG page images, optionally constrained by a JSON schema.
type VisionRequest struct {
	System      string
	Prompt      string
	Images      [][]byte
	MaxTokens   int
	Temperature float64

	// Schema, when set, requires the response to be JSON conforming to
	// this JSON Schema document. The parsed document lands in
	// VisionResult.ParsedJSON.
	Schema json.RawMessage

	// Timeout overrides the client's default per-call timeout.
	Timeout time.Duration
}

// VisionResult carries the model output plus the bookkeeping every
// caller records: tokens, cost and failure classification.
type VisionResult struct {
	Content    string
	ParsedJSON json.RawMessage

	InputTokens  int64
	OutputTokens int64
	CostUSD      float64

	Provider      string
	ModelUsed     string
	ExecutionTime time.Duration

	Success      bool
	ErrorType    string
	ErrorMessage string
}

// VisionClient is a provider-agnostic vision model client.
type VisionClient interface {
	// Vision performs one model call. A non-nil result is returned even
	// on failure so callers can record tokens and cost for the attempt.
	Vision(ctx context.Context, req *VisionRequest) (*VisionResult, error)

	// Name returns the configured provider name.
	Name() string

	// Model returns the model identifier this client calls.
	Model() string
}

// modelPrice is USD per million tokens.
type modelPrice struct {
	input  float64
	output float64
}

// modelPricing covers the models shipped in the default config. Unknown
// models fall back to defaultPrice so cost rows are never zero for a
// call that consumed tokens.
var modelPricing = map[string]modelPrice{
	"gpt-4o":                    {input: 2.50, output: 10.00},
	"gpt-4o-mini":               {input: 0.15, output: 0.60},
	"claude-sonnet-4-20250514":  {input: 3.00, output: 15.00},
	"claude-3-5-haiku-20241022": {input: 0.80, output: 4.00},
}

var defaultPrice = modelPrice{input: 3.00, output: 15.00}

// estimateCost converts token usage to USD for the given model.
func estimateCost(model string, inputTokens, outputTokens int64) float64 {
	price, ok := modelPricing[model]
	if !ok {
		price = defaultPrice
	}
	return float64(inputTokens)/1e6*price.input + float64(outputTokens)/1e6*price.output
}
