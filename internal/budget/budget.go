// Package budget provides token budget estimation for prompts sent to the
// chat model. Because several LLM backends with different tokenizers are
// supported, it uses a conservative character heuristic: 1 token ≈ 4
// characters of English prose.
package budget

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// messageOverhead is the per-message framing cost in most chat APIs.
	messageOverhead = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// It fits 8k-context models while leaving room for the output.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := utf8.RuneCountInString(s) / charsPerToken
	if n == 0 && s != "" {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for msgs,
// summing role and content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// Check reports the estimated size of msgs and whether it exceeds maxTokens.
// A non-positive maxTokens selects DefaultMaxContextTokens.
func Check(msgs []*schema.Message, maxTokens int) (estimated int, over bool) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}
	estimated = EstimateMessages(msgs)
	return estimated, estimated > maxTokens
}

// Truncate cuts s so that Estimate(s) does not exceed maxTokens. It reports
// whether anything was removed. Cuts fall on rune boundaries.
func Truncate(s string, maxTokens int) (string, bool) {
	if maxTokens <= 0 || Estimate(s) <= maxTokens {
		return s, false
	}
	limit := maxTokens * charsPerToken
	n := 0
	for i := range s {
		if n == limit {
			return s[:i], true
		}
		n++
	}
	return s, false
}
