package runner

import (
	"encoding/json"
	"fmt"

	"github.com/nextlevelbuilder/beaconobs/internal/llm"
)

// toolCall is the provider-agnostic shape parseToolCalls normalizes
// OpenAI's and Anthropic's distinct tool-call wire formats into.
type toolCall struct {
	ID       string
	Name     string
	Args     map[string]any
	ArgsJSON string
}

func sysMessage(text string) llm.Message {
	content, _ := json.Marshal(text)
	return llm.Message{Role: "system", Content: content}
}

func userMessage(text string) llm.Message {
	content, _ := json.Marshal(text)
	return llm.Message{Role: "user", Content: content}
}

// encodeTools serializes a Scenario's provider-agnostic tool defs into each
// provider's native tool-schema shape.
func encodeTools(sc Scenario) json.RawMessage {
	if len(sc.Tools) == 0 {
		return nil
	}
	switch sc.Provider {
	case llm.ProviderAnthropic:
		out := make([]map[string]any, 0, len(sc.Tools))
		for _, t := range sc.Tools {
			out = append(out, map[string]any{
				"name":         t.Name,
				"description":  t.Description,
				"input_schema": t.Parameters,
			})
		}
		b, _ := json.Marshal(out)
		return b
	default: // OpenAI-shaped function tools
		out := make([]map[string]any, 0, len(sc.Tools))
		for _, t := range sc.Tools {
			out = append(out, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  t.Parameters,
				},
			})
		}
		b, _ := json.Marshal(out)
		return b
	}
}

// parseToolCalls normalizes a CallResult's provider-native tool_calls
// payload into toolCall values the runner's loop can drive uniformly.
func parseToolCalls(provider string, result *llm.CallResult) ([]toolCall, error) {
	if len(result.ToolCalls) == 0 {
		return nil, nil
	}
	switch provider {
	case llm.ProviderAnthropic:
		var raw []struct {
			ID    string          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		}
		if err := json.Unmarshal(result.ToolCalls, &raw); err != nil {
			return nil, fmt.Errorf("parse anthropic tool calls: %w", err)
		}
		calls := make([]toolCall, 0, len(raw))
		for _, r := range raw {
			var args map[string]any
			_ = json.Unmarshal(r.Input, &args)
			calls = append(calls, toolCall{ID: r.ID, Name: r.Name, Args: args, ArgsJSON: string(r.Input)})
		}
		return calls, nil
	default:
		var raw []struct {
			ID       string `json:"id"`
			Type     string `json:"type"`
			Function struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			} `json:"function"`
		}
		if err := json.Unmarshal(result.ToolCalls, &raw); err != nil {
			return nil, fmt.Errorf("parse openai tool calls: %w", err)
		}
		calls := make([]toolCall, 0, len(raw))
		for _, r := range raw {
			var args map[string]any
			_ = json.Unmarshal([]byte(r.Function.Arguments), &args)
			calls = append(calls, toolCall{ID: r.ID, Name: r.Function.Name, Args: args, ArgsJSON: r.Function.Arguments})
		}
		return calls, nil
	}
}

// appendAssistantTurn appends the assistant's tool-call turn to the
// message history in whichever shape the provider expects it echoed back.
func appendAssistantTurn(provider string, messages []llm.Message, result *llm.CallResult) []llm.Message {
	switch provider {
	case llm.ProviderAnthropic:
		var blocks []map[string]any
		if result.Completion != "" {
			blocks = append(blocks, map[string]any{"type": "text", "text": result.Completion})
		}
		var raw []struct {
			ID    string          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		}
		_ = json.Unmarshal(result.ToolCalls, &raw)
		for _, r := range raw {
			blocks = append(blocks, map[string]any{
				"type": "tool_use", "id": r.ID, "name": r.Name, "input": r.Input,
			})
		}
		content, _ := json.Marshal(blocks)
		return append(messages, llm.Message{Role: "assistant", Content: content})
	default:
		content, _ := json.Marshal(result.Completion)
		return append(messages, llm.Message{Role: "assistant", Content: content, ToolCalls: result.ToolCalls})
	}
}

// appendToolResult appends the simulated tool's output to the message
// history in whichever shape the provider expects a tool result in.
func appendToolResult(provider string, messages []llm.Message, call toolCall, output string) []llm.Message {
	switch provider {
	case llm.ProviderAnthropic:
		block := map[string]any{
			"type":        "tool_result",
			"tool_use_id": call.ID,
			"content":     output,
		}
		content, _ := json.Marshal([]map[string]any{block})
		return append(messages, llm.Message{Role: "user", Content: content})
	default:
		content, _ := json.Marshal(output)
		return append(messages, llm.Message{
			Role:       "tool",
			Content:    content,
			ToolCallID: call.ID,
			Name:       call.Name,
		})
	}
}
