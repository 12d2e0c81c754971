package llm

import (
	"log/slog"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// EstimateTokens approximates a token count for a piece of text with
// tiktoken, falling back to a char/4 estimate when no encoding is
// available. The provider clients do not call it: CallResult always carries
// the provider-reported usage, and a response without usage yields zero
// tokens.
func EstimateTokens(model, text string) int {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("llm: tiktoken encoding unavailable, falling back to char/4 estimate", "error", err)
			return len(text) / 4
		}
	}
	return len(enc.Encode(text, nil, nil))
}
