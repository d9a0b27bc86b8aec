package llm

import (
	"chatgate/app/util/chat"
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	maxReplyTokens   = 500
	replyTemperature = 0.7
)

// Reply generates an assistant reply for the given context turns. The last
// turn is expected to be the incoming user message.
func (c *Client) Reply(ctx context.Context, turns []chat.Turn) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns))

	for _, turn := range turns {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}

	aiResponse, err := c.reply.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:               c.cfg.OpenAI.Reply.Model,
			Messages:            messages,
			MaxCompletionTokens: maxReplyTokens,
			Temperature:         replyTemperature,
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(aiResponse.Choices) == 0 {
		return "", fmt.Errorf("no chat completion found")
	}

	return strings.TrimSpace(aiResponse.Choices[0].Message.Content), nil
}
