// Package aggregate holds the pure rollup rules the Store applies when it
// recomputes a trace's derived fields from its spans: status derivation and
// LLM usage extraction. Kept separate from internal/store so the rules
// governing "what a trace's numbers mean" are testable without a database.
package aggregate

import "encoding/json"

// Status values, duplicated from internal/store's constants of the same
// name (store imports this package for DeriveStatus/ExtractUsage, so this
// package cannot import store back).
const (
	statusUnset = "unset"
	statusOK    = "ok"
	statusError = "error"

	spanTypeLLMCall = "llm_call"

	attrLLMCostUSD     = "llm.cost_usd"
	attrLLMTotalTokens = "llm.tokens.total"
)

// DeriveStatus applies the monotone rule error > unset > ok over the set of
// span statuses belonging to one trace. A single erroring span makes the
// whole trace "error" even once every other span has completed "ok"; an
// all-"ok" trace only reports "ok" once every span has left "unset".
func DeriveStatus(statuses map[string]bool) string {
	switch {
	case statuses[statusError]:
		return statusError
	case statuses[statusUnset]:
		return statusUnset
	case statuses[statusOK]:
		return statusOK
	default:
		return statusUnset
	}
}

// Usage is the cost/token contribution of one llm_call span. TotalTokens is
// read directly from the span's own llm.tokens.total attribute rather than
// derived by summing input/output here, matching the invariant that a
// trace's total_tokens equals the sum of each span's declared total.
type Usage struct {
	CostUSD     float64
	TotalTokens int
}

// ExtractUsage reads the well-known llm.* usage attribute keys off a span's
// attributes JSON. Spans that aren't llm_call, or that omit usage entirely,
// contribute zero.
func ExtractUsage(spanType string, attributes json.RawMessage) Usage {
	if spanType != spanTypeLLMCall || len(attributes) == 0 {
		return Usage{}
	}
	var attrs map[string]any
	if err := json.Unmarshal(attributes, &attrs); err != nil {
		return Usage{}
	}
	return Usage{
		CostUSD:     asFloat(attrs[attrLLMCostUSD]),
		TotalTokens: int(asFloat(attrs[attrLLMTotalTokens])),
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}
