package conversation

import (
	"chatgate/app/util/chat"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

const conversationTTL = 30 * time.Minute

func conversationKey(identity string) string {
	return "user:" + identity + ":conversations"
}

// History returns the cached conversation turns for an identity, refreshing
// the cache TTL on read. Storage failures resolve to an empty history.
func (s *Service) History(ctx context.Context, identity string) []chat.Turn {
	key := conversationKey(identity)

	values, err := s.store.LRange(ctx, key)
	if err != nil {
		slog.Warn("Error reading conversation cache", "identity", identity, "error", err)
		return nil
	}

	if len(values) == 0 {
		return nil
	}

	turns := make([]chat.Turn, 0, len(values))

	for _, value := range values {
		var turn chat.Turn
		if err = json.Unmarshal([]byte(value), &turn); err != nil {
			slog.Warn("Malformed cached turn, skipping", "identity", identity, "error", err)
			continue
		}

		turns = append(turns, turn)
	}

	if err = s.store.Expire(ctx, key, conversationTTL); err != nil {
		slog.Warn("Error refreshing conversation TTL", "identity", identity, "error", err)
	}

	return turns
}

// AppendTurns appends turns to the cached conversation and resets its TTL.
func (s *Service) AppendTurns(ctx context.Context, identity string, turns ...chat.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	key := conversationKey(identity)

	values, err := serializeTurns(turns)
	if err != nil {
		return err
	}

	if err = s.store.RPush(ctx, key, values...); err != nil {
		return fmt.Errorf("failed to append turns: %w", err)
	}

	if err = s.store.Expire(ctx, key, conversationTTL); err != nil {
		return fmt.Errorf("failed to set conversation TTL: %w", err)
	}

	return nil
}

// ReplaceHistory rewrites the whole cached conversation, delete then
// rebuild, as compaction supersedes older turns.
func (s *Service) ReplaceHistory(ctx context.Context, identity string, turns []chat.Turn) error {
	key := conversationKey(identity)

	if err := s.store.Del(ctx, key); err != nil {
		return fmt.Errorf("failed to clear conversation: %w", err)
	}

	if len(turns) == 0 {
		return nil
	}

	values, err := serializeTurns(turns)
	if err != nil {
		return err
	}

	if err = s.store.RPush(ctx, key, values...); err != nil {
		return fmt.Errorf("failed to rebuild conversation: %w", err)
	}

	if err = s.store.Expire(ctx, key, conversationTTL); err != nil {
		return fmt.Errorf("failed to set conversation TTL: %w", err)
	}

	return nil
}

func serializeTurns(turns []chat.Turn) ([]string, error) {
	values := make([]string, 0, len(turns))

	for _, turn := range turns {
		data, err := json.Marshal(turn)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize turn: %w", err)
		}

		values = append(values, string(data))
	}

	return values, nil
}
