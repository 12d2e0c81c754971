// Package replay re-invokes an LLM call recorded in a completed llm_call
// span with caller-supplied attribute overrides, without touching the
// original span. Grounded on the original beacon backend's
// services/replay_service.py.
package replay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nextlevelbuilder/beaconobs/internal/llm"
	"github.com/nextlevelbuilder/beaconobs/internal/store"
)

// BadRequestError is returned for a semantically invalid replay request
// (e.g. a span that isn't an llm_call); callers map it to HTTP 400.
type BadRequestError struct {
	Msg string
}

func (e *BadRequestError) Error() string { return e.Msg }

// Request is the replay(span_id, modified_attributes) contract.
type Request struct {
	SpanID             string
	ModifiedAttributes map[string]any
}

// Diff is the textual comparison persisted alongside a ReplayRun.
type Diff struct {
	OldCompletion string `json:"old_completion"`
	NewCompletion string `json:"new_completion"`
	Changed       bool   `json:"changed"`
}

// Replayer drives replay requests against a Store and an LLMClient.
type Replayer struct {
	store store.Store
	llm   *llm.Client
}

func New(s store.Store, c *llm.Client) *Replayer {
	return &Replayer{store: s, llm: c}
}

// Run loads the original span, merges modified_attributes over its stored
// attributes, re-invokes the provider, and persists a ReplayRun. The
// original span's row is never written to.
func (rp *Replayer) Run(ctx context.Context, req Request) (*store.ReplayRun, error) {
	sp, err := rp.store.GetSpan(ctx, req.SpanID)
	if err != nil {
		return nil, err
	}
	if sp.SpanType != store.SpanTypeLLMCall {
		return nil, &BadRequestError{Msg: fmt.Sprintf("span %s is not an llm_call span", sp.SpanID)}
	}

	merged, err := mergeAttributes(sp.Attributes, req.ModifiedAttributes)
	if err != nil {
		return nil, &BadRequestError{Msg: "modified_attributes could not be merged: " + err.Error()}
	}

	params, oldCompletion, err := paramsFromAttributes(merged)
	if err != nil {
		return nil, &BadRequestError{Msg: err.Error()}
	}

	result, err := rp.llm.Call(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("replay llm call: %w", err)
	}

	diff := Diff{
		OldCompletion: oldCompletion,
		NewCompletion: result.Completion,
		Changed:       oldCompletion != result.Completion,
	}
	diffJSON, _ := json.Marshal(diff)
	modifiedJSON, _ := json.Marshal(req.ModifiedAttributes)

	run := &store.ReplayRun{
		OriginalSpanID: sp.SpanID,
		TraceID:        sp.TraceID,
		ModifiedInput:  string(modifiedJSON),
		NewOutput:      result.Completion,
		Diff:           string(diffJSON),
	}
	if err := rp.store.CreateReplayRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// mergeAttributes shallow-overrides stored attributes with the caller's
// modified_attributes map; nested objects are replaced wholesale, not
// deep-merged, matching the contract's "shallow override" wording.
func mergeAttributes(stored json.RawMessage, overrides map[string]any) (map[string]any, error) {
	merged := map[string]any{}
	if len(stored) > 0 {
		if err := json.Unmarshal(stored, &merged); err != nil {
			return nil, err
		}
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged, nil
}

func paramsFromAttributes(attrs map[string]any) (llm.CallParams, string, error) {
	provider, _ := attrs[store.AttrLLMProvider].(string)
	model, _ := attrs[store.AttrLLMModel].(string)
	if provider == "" {
		provider = llm.ProviderForModel(model)
	}
	if model == "" {
		return llm.CallParams{}, "", fmt.Errorf("attributes missing %s", store.AttrLLMModel)
	}

	var temperature float64
	if t, ok := attrs[store.AttrLLMTemperature].(float64); ok {
		temperature = t
	}
	var maxTokens int
	if mt, ok := attrs[store.AttrLLMMaxTokens].(float64); ok {
		maxTokens = int(mt)
	}

	var messages []llm.Message
	if raw, ok := attrs[store.AttrLLMPrompt]; ok {
		b, err := json.Marshal(raw)
		if err != nil {
			return llm.CallParams{}, "", err
		}
		if err := json.Unmarshal(b, &messages); err != nil {
			return llm.CallParams{}, "", fmt.Errorf("%s is not a valid message list: %w", store.AttrLLMPrompt, err)
		}
	}

	oldCompletion, _ := attrs[store.AttrLLMCompletion].(string)

	return llm.CallParams{
		Provider:    provider,
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, oldCompletion, nil
}
