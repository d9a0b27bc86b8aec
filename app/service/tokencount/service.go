package tokencount

import (
	"chatgate/app/config"
	"chatgate/app/util/chat"
	"fmt"
	"log/slog"

	"github.com/pkoukk/tiktoken-go"
	"github.com/samber/do"
)

// Token overheads the model API charges on top of content: per-message
// framing plus a fixed amount per conversation. Undercounting causes
// downstream truncation errors.
const (
	perTurnOverhead         = 4
	perConversationOverhead = 2
)

const fallbackEncoding = "cl100k_base"

type Service struct {
	encoding *tiktoken.Tiktoken
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewForModel(cfg.OpenAI.Summary.Model)
}

func NewForModel(model string) (*Service, error) {
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		slog.Warn("No tokenizer for model, falling back",
			"model", model,
			"encoding", fallbackEncoding,
		)

		encoding, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s encoding: %w", fallbackEncoding, err)
		}
	}

	return &Service{encoding: encoding}, nil
}

func (s *Service) CountText(text string) int {
	return len(s.encoding.Encode(text, nil, nil))
}

func (s *Service) CountTurns(turns []chat.Turn) int {
	total := perConversationOverhead

	for _, turn := range turns {
		total += s.CountText(turn.Role)
		total += s.CountText(turn.Content)
		total += perTurnOverhead
	}

	return total
}
