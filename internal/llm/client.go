// Package llm provides a uniform client over OpenAI, Anthropic and Google's
// chat-completion APIs, plus the cost table used to price a completion.
// Grounded on the original beacon backend's services/llm_client.py.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// priceTable holds per-million-token input/output USD rates by exact model
// name. Unknown models cost 0.0 rather than erroring, since cost is an
// estimate layered on top of a usage figure the provider already reported.
var priceTable = map[string][2]float64{
	"gpt-4o":              {2.50, 10.00},
	"gpt-4o-mini":         {0.15, 0.60},
	"gpt-4-turbo":         {10.00, 30.00},
	"gpt-4":               {30.00, 60.00},
	"gpt-3.5-turbo":       {0.50, 1.50},
	"o1":                  {15.00, 60.00},
	"o1-mini":             {1.10, 4.40},
	"o3-mini":             {1.10, 4.40},
	"claude-3-5-sonnet":   {3.00, 15.00},
	"claude-3-5-haiku":    {0.80, 4.00},
	"claude-3-opus":       {15.00, 75.00},
	"claude-3-haiku":      {0.25, 1.25},
	"gemini-1.5-pro":      {1.25, 5.00},
	"gemini-1.5-flash":    {0.075, 0.30},
	"gemini-2.0-flash":    {0.10, 0.40},
}

// ProviderForModel resolves a provider from the model-name prefix alone
// (gpt*/o1/o3/o4 -> openai, claude* -> anthropic, gemini* -> google); there
// is no separate exact-name table. Every model in priceTable resolves
// through these prefixes. Anything else returns "".
func ProviderForModel(model string) string {
	switch {
	case strings.HasPrefix(model, "gpt"), strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return ProviderOpenAI
	case strings.HasPrefix(model, "claude"):
		return ProviderAnthropic
	case strings.HasPrefix(model, "gemini"):
		return ProviderGoogle
	default:
		return ""
	}
}

// EstimateCost prices input/output tokens at the model's per-million rate.
// Unknown models return 0.0.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	rates, ok := priceTable[model]
	if !ok {
		return 0
	}
	return (float64(inputTokens)/1e6)*rates[0] + (float64(outputTokens)/1e6)*rates[1]
}

// Message is one entry in a chat-style conversation, shaped loosely enough
// to round-trip either OpenAI or Anthropic message history.
type Message struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	ToolCalls  json.RawMessage `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
}

// CallParams is the common request shape across providers.
type CallParams struct {
	Provider    string
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Tools       json.RawMessage // provider-native tool schema, passed through untouched
}

// CallResult is a non-streaming completion, with usage as reported by the
// provider (never estimated) and cost derived from it.
type CallResult struct {
	Completion   string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	ToolCalls    json.RawMessage // present only when the model requested tool use
	FinishReason string
}

// providerRateLimit is the default steady-state request rate allowed per
// provider, with a small burst on top. Conservative enough to stay under
// every provider's default tier-1 RPS cap without needing per-account
// tuning.
const providerRateLimit = rate.Limit(5)
const providerRateBurst = 5

// Client calls upstream LLM providers over HTTP with the teacher's retry
// policy (exponential backoff + jitter on 429/5xx), plus a per-provider
// token-bucket limiter so a hot agent loop can't itself trigger the 429s
// the retry policy then has to absorb.
type Client struct {
	HTTP            *http.Client
	OpenAIAPIKey    string
	AnthropicAPIKey string
	GoogleAPIKey    string
	Retry           RetryConfig

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

func NewClient(openaiKey, anthropicKey, googleKey string) *Client {
	return &Client{
		HTTP:            &http.Client{Timeout: 60 * time.Second},
		OpenAIAPIKey:    openaiKey,
		AnthropicAPIKey: anthropicKey,
		GoogleAPIKey:    googleKey,
		Retry:           DefaultRetryConfig(),
		limiters:        map[string]*rate.Limiter{},
	}
}

func (c *Client) limiterFor(provider string) *rate.Limiter {
	c.limitersMu.Lock()
	defer c.limitersMu.Unlock()
	l, ok := c.limiters[provider]
	if !ok {
		l = rate.NewLimiter(providerRateLimit, providerRateBurst)
		c.limiters[provider] = l
	}
	return l
}

// Call dispatches to the right provider implementation and backs it with
// retry.
func (c *Client) Call(ctx context.Context, p CallParams) (*CallResult, error) {
	provider := p.Provider
	if provider == "" {
		provider = ProviderForModel(p.Model)
	}
	if err := c.limiterFor(provider).Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	switch provider {
	case ProviderOpenAI:
		return RetryDo(ctx, c.Retry, func() (*CallResult, error) { return c.callOpenAI(ctx, p) })
	case ProviderAnthropic:
		return RetryDo(ctx, c.Retry, func() (*CallResult, error) { return c.callAnthropic(ctx, p) })
	case ProviderGoogle:
		return RetryDo(ctx, c.Retry, func() (*CallResult, error) { return c.callGoogle(ctx, p) })
	default:
		return nil, fmt.Errorf("unknown provider for model %q", p.Model)
	}
}

func doJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body any) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return client.Do(req)
}

func readErrorBody(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return truncate(string(b), 200)
}
