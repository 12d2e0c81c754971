package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

type googleContent struct {
	Role  string `json:"role"`
	Parts []struct {
		Text string `json:"text"`
	} `json:"parts"`
}

type googleRequest struct {
	Contents         []googleContent `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature,omitempty"`
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

type googleResponse struct {
	Candidates []struct {
		Content      googleContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// callGoogle has no tool-calling variant, matching the original beacon
// client: Gemini is only ever called for plain completions there.
func (c *Client) callGoogle(ctx context.Context, p CallParams) (*CallResult, error) {
	var contents []googleContent
	for _, m := range p.Messages {
		role := m.Role
		if role == "assistant" {
			role = "model"
		}
		var text string
		_ = json.Unmarshal(m.Content, &text)
		contents = append(contents, googleContent{
			Role: role,
			Parts: []struct {
				Text string `json:"text"`
			}{{Text: text}},
		})
	}

	reqBody := googleRequest{Contents: contents}
	reqBody.GenerationConfig.Temperature = p.Temperature
	reqBody.GenerationConfig.MaxOutputTokens = p.MaxTokens

	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", p.Model, c.GoogleAPIKey)
	resp, err := doJSON(ctx, c.HTTP, "POST", url, nil, reqBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Status: resp.StatusCode, Body: readErrorBody(resp)}
	}

	var out googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode google response: %w", err)
	}
	if len(out.Candidates) == 0 {
		return nil, fmt.Errorf("google response had no candidates")
	}

	var text string
	for _, part := range out.Candidates[0].Content.Parts {
		text += part.Text
	}

	cost := EstimateCost(p.Model, out.UsageMetadata.PromptTokenCount, out.UsageMetadata.CandidatesTokenCount)
	return &CallResult{
		Completion:   text,
		InputTokens:  out.UsageMetadata.PromptTokenCount,
		OutputTokens: out.UsageMetadata.CandidatesTokenCount,
		CostUSD:      cost,
		FinishReason: out.Candidates[0].FinishReason,
	}, nil
}
