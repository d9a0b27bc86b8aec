package llm

import (
	"chatgate/app/util/chat"
	"context"
	"fmt"
	"strings"

	_ "embed"

	"github.com/tmc/langchaingo/llms"
)

//go:embed summary_prompt_english.txt
var summaryPromptEnglish string

//go:embed summary_prompt_romanian.txt
var summaryPromptRomanian string

const summaryTemperature = 0.3

// Summarize condenses older conversation turns into a single text bounded by
// maxTokens, using a language-specific instruction.
func (c *Client) Summarize(ctx context.Context, turns []chat.Turn, language string, maxTokens int) (string, error) {
	template := summaryPromptEnglish
	if language == "romanian" {
		template = summaryPromptRomanian
	}

	prompt := strings.ReplaceAll(template, "{conversation}", formatTranscript(turns))

	result, err := llms.GenerateFromSinglePrompt(ctx, c.summarizer, prompt,
		llms.WithMaxTokens(maxTokens),
		llms.WithTemperature(summaryTemperature),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create summary completion: %w", err)
	}

	summary := strings.TrimSpace(result)
	if summary == "" {
		return "", fmt.Errorf("summary completion is empty")
	}

	return summary, nil
}

func formatTranscript(turns []chat.Turn) string {
	var builder strings.Builder

	for _, turn := range turns {
		role := "User"
		if turn.Role != chat.RoleUser {
			role = "Assistant"
		}

		builder.WriteString(fmt.Sprintf("%s: %s\n", role, turn.Content))
	}

	return builder.String()
}
