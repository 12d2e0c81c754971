package runner

import (
	"fmt"
	"strings"

	"github.com/mattn/go-shellwords"
)

// MaxAgentSteps bounds the orchestrated tool-calling loop, matching the
// original beacon demo service's MAX_AGENT_STEPS.
const MaxAgentSteps = 5

// ToolDef is a provider-agnostic tool declaration; Scenario holds its own
// copy because the two supported providers serialize schemas differently
// and the Runner passes each provider its native shape.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Scenario is a scripted agent run: a system prompt, starting user message,
// provider/model pair and the tool declarations the model may call.
type Scenario struct {
	ID           string
	Name         string
	Provider     string
	Model        string
	SystemPrompt string
	UserMessage  string
	Tools        []ToolDef
}

// Scenarios mirrors the three concrete demo scenarios from the original
// beacon backend's demo_service.py: research_assistant (OpenAI),
// code_reviewer (Anthropic, with an intentionally buggy sample to review),
// and trip_planner (OpenAI).
var Scenarios = []Scenario{
	{
		ID:           "research_assistant",
		Name:         "Research Assistant",
		Provider:     "openai",
		Model:        "gpt-4o-mini",
		SystemPrompt: "You are a research assistant. Use the web_search tool to find information before answering.",
		UserMessage:  "What's the latest on quantum error correction breakthroughs?",
		Tools: []ToolDef{
			{Name: "web_search", Description: "Search the web for a query", Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"query": map[string]any{"type": "string"}},
				"required":   []string{"query"},
			}},
		},
	},
	{
		ID:           "code_reviewer",
		Name:         "Code Reviewer",
		Provider:     "anthropic",
		Model:        "claude-3-5-sonnet",
		SystemPrompt: "You are a meticulous code reviewer. Use read_file to inspect the file before commenting.",
		UserMessage:  "Please review calculate_average in stats.py for bugs.",
		Tools: []ToolDef{
			{Name: "read_file", Description: "Read a file's contents", Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"path": map[string]any{"type": "string"}},
				"required":   []string{"path"},
			}},
		},
	},
	{
		ID:           "trip_planner",
		Name:         "Trip Planner",
		Provider:     "openai",
		Model:        "gpt-4o-mini",
		SystemPrompt: "You are a trip planning assistant. Use shell_command to check local weather data tooling before planning.",
		UserMessage:  "Plan a 3-day trip to Kyoto in autumn.",
		Tools: []ToolDef{
			{Name: "shell_command", Description: "Run a read-only shell command", Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"command": map[string]any{"type": "string"}},
				"required":   []string{"command"},
			}},
		},
	},
}

func FindScenario(id string) (Scenario, bool) {
	for _, s := range Scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return Scenario{}, false
}

// simulateTool fabricates a deterministic tool result for the demo
// scenarios the same way demo_service.py's TOOL_SIMULATORS do — no real
// network, filesystem or shell access.
func simulateTool(name, argsJSON string) string {
	switch name {
	case "web_search":
		return fmt.Sprintf("Simulated search results for: %s\n1. Recent preprint on surface-code thresholds.\n2. Conference talk summary.", argsJSON)
	case "read_file":
		return "def calculate_average(nums):\n    total = 0\n    for n in nums:\n        total += n\n    return total / len(nums) + 1  # off-by-one bug\n"
	case "shell_command":
		return simulateShell(argsJSON)
	default:
		return fmt.Sprintf("Simulated result for tool %q with args %s", name, argsJSON)
	}
}

// simulateShell tokenizes the simulated command with go-shellwords before
// fabricating output, so a multi-word simulated command round-trips the
// same way a real shell tool's argv would.
func simulateShell(argsJSON string) string {
	// argsJSON is a JSON object like {"command": "ls -la"}; pull the raw
	// command string out without a full schema for this cosmetic step.
	cmd := argsJSON
	if i := strings.Index(argsJSON, `"command"`); i >= 0 {
		if start := strings.Index(argsJSON[i:], ":"); start >= 0 {
			cmd = strings.Trim(argsJSON[i+start+1:], " \"}\n")
		}
	}
	parser := shellwords.NewParser()
	args, err := parser.Parse(cmd)
	if err != nil || len(args) == 0 {
		return "command not found"
	}
	return fmt.Sprintf("$ %s\n(simulated output for %q)", strings.Join(args, " "), args[0])
}
