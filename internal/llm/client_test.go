package llm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProviderForModel(t *testing.T) {
	cases := []struct {
		model string
		want  string
	}{
		{"gpt-4o", ProviderOpenAI},
		{"gpt-4o-mini", ProviderOpenAI},
		{"o1-mini", ProviderOpenAI},
		{"o3-mini", ProviderOpenAI},
		{"claude-3-5-sonnet", ProviderAnthropic},
		{"gemini-1.5-pro", ProviderGoogle},
		{"some-unknown-model", ""},
	}
	for _, c := range cases {
		require.Equal(t, c.want, ProviderForModel(c.model), c.model)
	}
}

func TestEstimateCost(t *testing.T) {
	cost := EstimateCost("gpt-4o", 1_000_000, 1_000_000)
	require.InDelta(t, 12.50, cost, 0.001)

	require.Zero(t, EstimateCost("not-a-real-model", 1000, 1000))
}

func TestClientLimiterForIsPerProviderAndReused(t *testing.T) {
	c := NewClient("", "", "")
	a := c.limiterFor(ProviderOpenAI)
	b := c.limiterFor(ProviderOpenAI)
	require.Same(t, a, b, "same provider should reuse its limiter")

	other := c.limiterFor(ProviderAnthropic)
	require.NotSame(t, a, other)
}
