package conversation

import (
	"chatgate/app/util/chat"
	"context"
)

// CompactedContext is the bounded slice of conversation presented to the
// model: an optional synthetic summary turn followed by the recent turns
// kept verbatim.
type CompactedContext struct {
	Summary *chat.Turn  `json:"summary,omitempty"`
	Recent  []chat.Turn `json:"recent"`
}

func (c CompactedContext) Turns() []chat.Turn {
	if c.Summary == nil {
		return c.Recent
	}

	result := make([]chat.Turn, 0, len(c.Recent)+1)
	result = append(result, *c.Summary)
	result = append(result, c.Recent...)

	return result
}

type Result struct {
	Context   CompactedContext
	Compacted bool
	// Degraded marks a fallback summary produced without the provider
	Degraded bool
}

// Counter estimates token cost for a target model family. The service is
// parameterized by it, never hardwired to one tokenizer.
type Counter interface {
	CountText(text string) int
	CountTurns(turns []chat.Turn) int
}

type Detector interface {
	Detect(text string) string
}

type CompletionProvider interface {
	Summarize(ctx context.Context, turns []chat.Turn, language string, maxTokens int) (string, error)
}

var summaryPrefixes = map[string]string{
	"english":  "[CONVERSATION SUMMARY]",
	"romanian": "[REZUMAT CONVERSAȚIE]",
}

func summaryPrefix(language string) string {
	if prefix, ok := summaryPrefixes[language]; ok {
		return prefix
	}

	return summaryPrefixes["english"]
}
