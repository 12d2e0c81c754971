package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

type anthropicRequest struct {
	Model       string          `json:"model"`
	Messages    []Message       `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens"`
	Tools       json.RawMessage `json:"tools,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type  string          `json:"type"`
		Text  string          `json:"text,omitempty"`
		ID    string          `json:"id,omitempty"`
		Name  string          `json:"name,omitempty"`
		Input json.RawMessage `json:"input,omitempty"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *Client) callAnthropic(ctx context.Context, p CallParams) (*CallResult, error) {
	maxTokens := p.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	reqBody := anthropicRequest{
		Model:       p.Model,
		Messages:    p.Messages,
		Temperature: p.Temperature,
		MaxTokens:   maxTokens,
		Tools:       p.Tools,
	}
	resp, err := doJSON(ctx, c.HTTP, "POST", "https://api.anthropic.com/v1/messages",
		map[string]string{
			"x-api-key":         c.AnthropicAPIKey,
			"anthropic-version": "2023-06-01",
		}, reqBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Status: resp.StatusCode, Body: readErrorBody(resp)}
	}

	var out anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode anthropic response: %w", err)
	}

	var text string
	var toolCalls []json.RawMessage
	for _, block := range out.Content {
		switch block.Type {
		case "text":
			text += block.Text
		case "tool_use":
			tc, _ := json.Marshal(map[string]any{
				"id":    block.ID,
				"name":  block.Name,
				"input": block.Input,
			})
			toolCalls = append(toolCalls, tc)
		}
	}

	var toolCallsRaw json.RawMessage
	if len(toolCalls) > 0 {
		toolCallsRaw, _ = json.Marshal(toolCalls)
	}

	cost := EstimateCost(p.Model, out.Usage.InputTokens, out.Usage.OutputTokens)
	return &CallResult{
		Completion:   text,
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
		CostUSD:      cost,
		ToolCalls:    toolCallsRaw,
		FinishReason: out.StopReason,
	}, nil
}
