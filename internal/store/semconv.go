package store

// Well-known span attribute keys. These are the only attribute keys the
// Aggregator, Runner, LLMClient and OTLP adapter attach special meaning to;
// everything else in a span's attributes map passes through untouched.
const (
	AttrLLMProvider     = "llm.provider"
	AttrLLMModel        = "llm.model"
	AttrLLMPrompt       = "llm.prompt"
	AttrLLMCompletion   = "llm.completion"
	AttrLLMInputTokens  = "llm.tokens.input"
	AttrLLMOutputTokens = "llm.tokens.output"
	AttrLLMTotalTokens  = "llm.tokens.total"
	AttrLLMCostUSD      = "llm.cost_usd"
	AttrLLMTemperature  = "llm.temperature"
	AttrLLMMaxTokens    = "llm.max_tokens"
	AttrLLMFinishReason = "llm.finish_reason"
	AttrLLMToolCalls    = "llm.tool_calls"

	AttrToolName   = "tool.name"
	AttrToolCallID = "tool.call_id"
	AttrToolInput  = "tool.input"
	AttrToolOutput = "tool.output"

	AttrBrowserAction     = "browser.action"
	AttrBrowserURL        = "browser.url"
	AttrBrowserSelector   = "browser.selector"
	AttrBrowserValue      = "browser.value"
	AttrBrowserScreenshot = "browser.screenshot"

	AttrFileOperation = "file.operation"
	AttrFilePath      = "file.path"
	AttrFileContent   = "file.content"
	AttrFileSizeBytes = "file.size_bytes"

	AttrShellCommand    = "shell.command"
	AttrShellStdout     = "shell.stdout"
	AttrShellStderr     = "shell.stderr"
	AttrShellReturnCode = "shell.returncode"

	AttrChainType   = "chain.type"
	AttrChainInput  = "chain.input"
	AttrChainOutput = "chain.output"

	AttrAgentFramework = "agent.framework"
	AttrAgentStepName  = "agent.step_name"
	AttrAgentInput     = "agent.input"
	AttrAgentOutput    = "agent.output"
	AttrAgentThought   = "agent.thought"

	AttrSpanType     = "span_type"
	AttrErrorMessage = "error.message"

	// SpanTypeLLMCall marks a span whose attributes should be folded into
	// the owning trace's total_cost_usd / total_tokens aggregates.
	SpanTypeLLMCall       = "llm_call"
	SpanTypeToolUse       = "tool_use"
	SpanTypeAgentStep     = "agent_step"
	SpanTypeBrowserAction = "browser_action"
	SpanTypeFileOperation = "file_operation"
	SpanTypeShellCommand  = "shell_command"
	SpanTypeChain         = "chain"
	SpanTypeCustom        = "custom"
)

// validSpanTypes is the closed span_type enum. A span_type outside this set
// is coerced to SpanTypeCustom rather than rejected, matching spec's "unknown
// values become custom".
var validSpanTypes = map[string]bool{
	SpanTypeLLMCall:       true,
	SpanTypeToolUse:       true,
	SpanTypeAgentStep:     true,
	SpanTypeBrowserAction: true,
	SpanTypeFileOperation: true,
	SpanTypeShellCommand:  true,
	SpanTypeChain:         true,
	SpanTypeCustom:        true,
}

// NormalizeSpanType maps an arbitrary input span_type onto the closed enum,
// coercing anything unrecognized (including empty) to SpanTypeCustom.
func NormalizeSpanType(spanType string) string {
	if validSpanTypes[spanType] {
		return spanType
	}
	return SpanTypeCustom
}
