package conversation

import (
	"chatgate/app/client/kvstore"
	"chatgate/app/config"
	"chatgate/app/util/chat"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// stubCounter counts one token per whitespace-separated word, with the same
// per-turn and per-conversation overheads as the real counter.
type stubCounter struct{}

func (stubCounter) CountText(text string) int {
	return len(strings.Fields(text))
}

func (c stubCounter) CountTurns(turns []chat.Turn) int {
	total := 2

	for _, turn := range turns {
		total += c.CountText(turn.Role) + c.CountText(turn.Content) + 4
	}

	return total
}

type stubDetector struct {
	language string
}

func (d stubDetector) Detect(string) string {
	if d.language == "" {
		return "english"
	}

	return d.language
}

type stubProvider struct {
	summary string
	err     error
	calls   int
}

func (p *stubProvider) Summarize(_ context.Context, _ []chat.Turn, _ string, _ int) (string, error) {
	p.calls++

	if p.err != nil {
		return "", p.err
	}

	return p.summary, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Context.SummaryTriggerTokens = 40
	cfg.Context.KeepRecentMessages = 2

	return cfg
}

func testService(cfg *config.Config, provider CompletionProvider) (*Service, *kvstore.MemoryStore) {
	store := kvstore.NewMemory()

	return NewService(cfg, store, stubCounter{}, stubDetector{}, provider), store
}

func longHistory(turns int) []chat.Turn {
	history := make([]chat.Turn, 0, turns)

	for i := range turns {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}

		history = append(history, chat.Turn{
			Role:    role,
			Content: fmt.Sprintf("turn %d with quite a few words of filler content here", i),
		})
	}

	return history
}

func TestCompact_UnderThresholdUnchanged(t *testing.T) {
	provider := &stubProvider{summary: "short summary"}
	svc, _ := testService(testConfig(), provider)

	history := []chat.Turn{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: "hello"},
	}
	incoming := chat.Turn{Role: chat.RoleUser, Content: "how are you?"}

	result := svc.Compact(context.Background(), "+40711111111", history, incoming, time.Now())

	require.False(t, result.Compacted)
	require.False(t, result.Degraded)
	require.Nil(t, result.Context.Summary)
	require.Equal(t, history, result.Context.Recent)
	require.Zero(t, provider.calls)
}

func TestCompact_OverThresholdSummarizes(t *testing.T) {
	provider := &stubProvider{summary: "they discussed filler content"}
	svc, _ := testService(testConfig(), provider)

	history := longHistory(6)
	incoming := chat.Turn{Role: chat.RoleUser, Content: "one more question"}

	result := svc.Compact(context.Background(), "+40711111111", history, incoming, time.Now())

	require.True(t, result.Compacted)
	require.False(t, result.Degraded)
	require.Equal(t, 1, provider.calls)

	require.NotNil(t, result.Context.Summary)
	require.Equal(t, chat.RoleSystem, result.Context.Summary.Role)
	require.Contains(t, result.Context.Summary.Content, "[CONVERSATION SUMMARY]")
	require.Equal(t, history[len(history)-2:], result.Context.Recent)

	// Compaction must actually shrink the context
	counter := stubCounter{}
	require.Less(t, counter.CountTurns(result.Context.Turns()), counter.CountTurns(history))
}

func TestCompact_TruncationOnlyWhenNothingOlder(t *testing.T) {
	provider := &stubProvider{summary: "unused"}
	cfg := testConfig()
	cfg.Context.SummaryTriggerTokens = 5
	svc, _ := testService(cfg, provider)

	history := longHistory(2)
	incoming := chat.Turn{Role: chat.RoleUser, Content: "hello"}

	result := svc.Compact(context.Background(), "+40711111111", history, incoming, time.Now())

	require.False(t, result.Compacted)
	require.Nil(t, result.Context.Summary)
	require.Equal(t, history, result.Context.Recent)
	require.Zero(t, provider.calls)
}

func TestCompact_ProviderFailureFallsBack(t *testing.T) {
	provider := &stubProvider{err: errors.New("provider down")}
	svc, _ := testService(testConfig(), provider)

	history := longHistory(6)
	incoming := chat.Turn{Role: chat.RoleUser, Content: "one more question"}

	result := svc.Compact(context.Background(), "+40711111111", history, incoming, time.Now())

	require.True(t, result.Compacted)
	require.True(t, result.Degraded)
	require.NotNil(t, result.Context.Summary)
	require.Contains(t, result.Context.Summary.Content, "Previous conversation covered:")
}

func TestCompact_CachedSummaryReused(t *testing.T) {
	provider := &stubProvider{summary: "they discussed filler content"}
	svc, _ := testService(testConfig(), provider)

	history := longHistory(6)
	incoming := chat.Turn{Role: chat.RoleUser, Content: "one more question"}
	now := time.Now()

	first := svc.Compact(context.Background(), "+40711111111", history, incoming, now)
	second := svc.Compact(context.Background(), "+40711111111", history, incoming, now)

	require.Equal(t, 1, provider.calls)
	require.True(t, second.Compacted)
	require.Equal(t, first.Context, second.Context)
}

func TestCompact_DegradedFlagSurvivesCache(t *testing.T) {
	provider := &stubProvider{err: errors.New("provider down")}
	svc, _ := testService(testConfig(), provider)

	history := longHistory(6)
	incoming := chat.Turn{Role: chat.RoleUser, Content: "one more question"}
	now := time.Now()

	first := svc.Compact(context.Background(), "+40711111111", history, incoming, now)
	second := svc.Compact(context.Background(), "+40711111111", history, incoming, now)

	require.Equal(t, 1, provider.calls)
	require.True(t, first.Degraded)
	require.True(t, second.Degraded)
	require.Equal(t, first.Context, second.Context)
}

func TestCompact_CacheIsPerIdentity(t *testing.T) {
	provider := &stubProvider{summary: "they discussed filler content"}
	svc, _ := testService(testConfig(), provider)

	history := longHistory(6)
	incoming := chat.Turn{Role: chat.RoleUser, Content: "one more question"}
	now := time.Now()

	svc.Compact(context.Background(), "+40711111111", history, incoming, now)
	svc.Compact(context.Background(), "+40722222222", history, incoming, now)

	require.Equal(t, 2, provider.calls)
}

func TestCompact_StorageFailureStillCompacts(t *testing.T) {
	provider := &stubProvider{summary: "they discussed filler content"}
	svc := NewService(testConfig(), failingStore{}, stubCounter{}, stubDetector{}, provider)

	history := longHistory(6)
	incoming := chat.Turn{Role: chat.RoleUser, Content: "one more question"}

	result := svc.Compact(context.Background(), "+40711111111", history, incoming, time.Now())

	require.True(t, result.Compacted)
	require.False(t, result.Degraded)
}

type failingStore struct{}

var errStorage = errors.New("storage unavailable")

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errStorage
}

func (failingStore) SetEx(context.Context, string, string, time.Duration) error {
	return errStorage
}

func (failingStore) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, errStorage
}

func (failingStore) Incr(context.Context, string) (int64, error) {
	return 0, errStorage
}

func (failingStore) Expire(context.Context, string, time.Duration) error {
	return errStorage
}

func (failingStore) Exists(context.Context, string) (bool, error) {
	return false, errStorage
}

func (failingStore) Del(context.Context, string) error {
	return errStorage
}

func (failingStore) RPush(context.Context, string, ...string) error {
	return errStorage
}

func (failingStore) LRange(context.Context, string) ([]string, error) {
	return nil, errStorage
}

func (failingStore) Ping(context.Context) error {
	return errStorage
}
