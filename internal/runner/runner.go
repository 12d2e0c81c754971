// Package runner orchestrates scripted agent runs: it drives a scenario
// through an LLM tool-calling loop as a background task, writing the same
// in-flight -> complete span lifecycle a real SDK-instrumented agent would.
// Grounded on the original beacon backend's services/demo_service.py.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nextlevelbuilder/beaconobs/internal/bus"
	"github.com/nextlevelbuilder/beaconobs/internal/llm"
	"github.com/nextlevelbuilder/beaconobs/internal/store"
)

// Runner launches and drives agent runs.
type Runner struct {
	store store.Store
	bus   *bus.Bus
	llm   *llm.Client

	scenarioCache *lru.Cache[string, Scenario]
}

func New(s store.Store, b *bus.Bus, c *llm.Client) *Runner {
	cache, _ := lru.New[string, Scenario](len(Scenarios))
	return &Runner{store: s, bus: b, llm: c, scenarioCache: cache}
}

func (r *Runner) lookupScenario(id string) (Scenario, bool) {
	if sc, ok := r.scenarioCache.Get(id); ok {
		return sc, true
	}
	sc, ok := FindScenario(id)
	if ok {
		r.scenarioCache.Add(id, sc)
	}
	return sc, ok
}

// ListScenarios returns the catalog of runnable scenarios.
func (r *Runner) ListScenarios() []Scenario { return Scenarios }

// StartRun creates the trace and its root agent_step span synchronously,
// returning immediately, then drives the actual tool-calling loop in a
// background goroutine. The caller gets a trace_id to poll or subscribe to
// right away instead of waiting on the whole run.
func (r *Runner) StartRun(ctx context.Context, scenarioID string) (string, error) {
	sc, ok := r.lookupScenario(scenarioID)
	if !ok {
		return "", fmt.Errorf("unknown scenario %q", scenarioID)
	}

	now := unixNow()
	traceID := genID("trace")
	rootSpanID := genID("span")

	trace := &store.Trace{
		TraceID:   traceID,
		Name:      sc.Name,
		StartTime: now,
		Status:    store.StatusUnset,
		Tags:      json.RawMessage(`{}`),
		CreatedAt: now,
	}
	if err := r.store.CreateTrace(ctx, trace); err != nil {
		return "", fmt.Errorf("create trace: %w", err)
	}

	rootAttrs, _ := json.Marshal(map[string]any{store.AttrAgentFramework: "beaconobs-runner"})
	root := &store.Span{
		SpanID:     rootSpanID,
		TraceID:    traceID,
		SpanType:   store.SpanTypeAgentStep,
		Name:       sc.Name,
		Status:     store.StatusUnset,
		StartTime:  now,
		Attributes: rootAttrs,
	}
	if _, err := r.store.IngestSpan(ctx, root); err != nil {
		return "", fmt.Errorf("create root span: %w", err)
	}

	r.bus.BroadcastTraceCreated(ctx, traceID, trace)
	r.emitSpan(ctx, root, true)

	go r.runLoop(context.Background(), sc, traceID, rootSpanID)

	return traceID, nil
}

// runLoop drives up to MaxAgentSteps LLM turns. Any panic or error aborts
// the run by failing the root span; it never propagates to the caller,
// since the caller already got its trace_id back from StartRun.
func (r *Runner) runLoop(ctx context.Context, sc Scenario, traceID, rootSpanID string) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("runner: agent loop panicked", "trace_id", traceID, "panic", rec)
			r.failRoot(ctx, rootSpanID, traceID, fmt.Sprintf("panic: %v", rec))
		}
	}()

	messages := []llm.Message{
		sysMessage(sc.SystemPrompt),
		userMessage(sc.UserMessage),
	}
	tools := encodeTools(sc)
	loopState := &toolLoopState{}

	for step := 0; step < MaxAgentSteps; step++ {
		callSpanID := genID("span")
		start := unixNow()
		callAttrs, _ := json.Marshal(map[string]any{
			store.AttrLLMProvider: sc.Provider,
			store.AttrLLMModel:    sc.Model,
		})
		parent := rootSpanID
		inFlight := &store.Span{
			SpanID:       callSpanID,
			TraceID:      traceID,
			ParentSpanID: &parent,
			SpanType:     store.SpanTypeLLMCall,
			Name:         "llm_call",
			Status:       store.StatusUnset,
			StartTime:    start,
			Attributes:   callAttrs,
		}
		if _, err := r.store.IngestSpan(ctx, inFlight); err != nil {
			slog.Error("runner: ingest in-flight llm_call span failed", "trace_id", traceID, "error", err)
			r.failRoot(ctx, rootSpanID, traceID, err.Error())
			return
		}
		r.emitSpan(ctx, inFlight, true)

		result, err := r.llm.Call(ctx, llm.CallParams{
			Provider:    sc.Provider,
			Model:       sc.Model,
			Messages:    messages,
			Temperature: 0.7,
			MaxTokens:   1024,
			Tools:       tools,
		})
		end := unixNow()
		if err != nil {
			r.completeSpan(ctx, callSpanID, traceID, store.StatusError, end, callAttrs, err.Error())
			r.failRoot(ctx, rootSpanID, traceID, err.Error())
			return
		}

		completeAttrs := mergeAttrs(callAttrs, map[string]any{
			store.AttrLLMInputTokens:  result.InputTokens,
			store.AttrLLMOutputTokens: result.OutputTokens,
			store.AttrLLMTotalTokens:  result.InputTokens + result.OutputTokens,
			store.AttrLLMCostUSD:      result.CostUSD,
			store.AttrLLMFinishReason: result.FinishReason,
			store.AttrLLMCompletion:   result.Completion,
			store.AttrLLMTemperature:  0.7,
			store.AttrLLMMaxTokens:    1024,
			store.AttrLLMPrompt:       messages,
		})
		r.completeSpan(ctx, callSpanID, traceID, store.StatusOK, end, completeAttrs, "")

		if len(result.ToolCalls) == 0 {
			r.completeRoot(ctx, rootSpanID, traceID, store.StatusOK, end)
			return
		}

		calls, err := parseToolCalls(sc.Provider, result)
		if err != nil {
			r.failRoot(ctx, rootSpanID, traceID, err.Error())
			return
		}

		messages = appendAssistantTurn(sc.Provider, messages, result)

		for _, call := range calls {
			level, loopMsg := loopState.observe(call.Name, call.Args)
			output := simulateTool(call.Name, call.ArgsJSON)

			toolSpanID := genID("span")
			toolAttrs, _ := json.Marshal(map[string]any{
				store.AttrToolName:   call.Name,
				store.AttrToolCallID: call.ID,
				store.AttrToolInput:  call.ArgsJSON,
				store.AttrToolOutput: output,
			})
			parentID := rootSpanID
			toolSpan := &store.Span{
				SpanID:       toolSpanID,
				TraceID:      traceID,
				ParentSpanID: &parentID,
				SpanType:     store.SpanTypeToolUse,
				Name:         call.Name,
				Status:       store.StatusOK,
				StartTime:    end,
				EndTime:      floatPtr(unixNow()),
				Attributes:   toolAttrs,
				Annotations:  json.RawMessage("[]"),
			}
			if level != "" {
				annots, _ := json.Marshal([]string{loopMsg})
				toolSpan.Annotations = annots
				if level == "critical" {
					if _, err := r.store.IngestSpan(ctx, toolSpan); err != nil {
						slog.Error("runner: ingest tool span failed", "trace_id", traceID, "error", err)
					}
					r.emitSpan(ctx, toolSpan, true)
					r.completeRoot(ctx, rootSpanID, traceID, store.StatusOK, unixNow())
					return
				}
			}
			if _, err := r.store.IngestSpan(ctx, toolSpan); err != nil {
				slog.Error("runner: ingest tool span failed", "trace_id", traceID, "error", err)
			}
			r.emitSpan(ctx, toolSpan, true)

			messages = appendToolResult(sc.Provider, messages, call, output)
		}
	}

	r.completeRoot(ctx, rootSpanID, traceID, store.StatusOK, unixNow())
}

func (r *Runner) completeSpan(ctx context.Context, spanID, traceID, status string, end float64, attrs json.RawMessage, errMsg string) {
	sp := &store.Span{
		SpanID:     spanID,
		TraceID:    traceID,
		SpanType:   store.SpanTypeLLMCall,
		Status:     status,
		EndTime:    &end,
		Attributes: attrs,
	}
	if errMsg != "" {
		sp.ErrorMessage = &errMsg
	}
	existing, err := r.store.GetSpan(ctx, spanID)
	if err == nil {
		sp.Name = existing.Name
		sp.StartTime = existing.StartTime
		sp.ParentSpanID = existing.ParentSpanID
	}
	if _, err := r.store.IngestSpan(ctx, sp); err != nil {
		slog.Error("runner: complete span failed", "span_id", spanID, "error", err)
		return
	}
	r.emitSpan(ctx, sp, false)
}

func (r *Runner) completeRoot(ctx context.Context, rootSpanID, traceID, status string, end float64) {
	root, err := r.store.GetSpan(ctx, rootSpanID)
	if err != nil {
		slog.Error("runner: load root span failed", "span_id", rootSpanID, "error", err)
		return
	}
	root.Status = status
	root.EndTime = &end
	if _, err := r.store.IngestSpan(ctx, root); err != nil {
		slog.Error("runner: complete root span failed", "span_id", rootSpanID, "error", err)
		return
	}
	r.emitSpan(ctx, root, false)
	if trace, err := r.store.GetTrace(ctx, traceID); err == nil {
		r.bus.BroadcastTraceUpdated(ctx, traceID, trace)
	}
}

func (r *Runner) failRoot(ctx context.Context, rootSpanID, traceID, message string) {
	root, err := r.store.GetSpan(ctx, rootSpanID)
	if err != nil {
		return
	}
	end := unixNow()
	root.Status = store.StatusError
	root.EndTime = &end
	msg := truncateMsg(message, 500)
	root.ErrorMessage = &msg
	if _, err := r.store.IngestSpan(ctx, root); err != nil {
		slog.Error("runner: fail root span failed", "span_id", rootSpanID, "error", err)
		return
	}
	r.emitSpan(ctx, root, false)
	if trace, err := r.store.GetTrace(ctx, traceID); err == nil {
		r.bus.BroadcastTraceUpdated(ctx, traceID, trace)
	}
}

func (r *Runner) emitSpan(ctx context.Context, sp *store.Span, created bool) {
	if created {
		r.bus.BroadcastSpanCreated(ctx, sp.TraceID, sp)
		return
	}
	r.bus.BroadcastSpanUpdated(ctx, sp.TraceID, sp)
}

func truncateMsg(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func mergeAttrs(base json.RawMessage, extra map[string]any) json.RawMessage {
	var m map[string]any
	_ = json.Unmarshal(base, &m)
	if m == nil {
		m = map[string]any{}
	}
	for k, v := range extra {
		m[k] = v
	}
	b, _ := json.Marshal(m)
	return b
}

func floatPtr(f float64) *float64 { return &f }

func unixNow() float64 { return float64(time.Now().UnixNano()) / 1e9 }
