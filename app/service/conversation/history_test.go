package conversation

import (
	"chatgate/app/util/chat"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHistory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(testConfig(), &stubProvider{})

	require.Empty(t, svc.History(ctx, "+40711111111"))

	turns := []chat.Turn{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: "hello, how can I help?"},
	}

	require.NoError(t, svc.AppendTurns(ctx, "+40711111111", turns...))
	require.Equal(t, turns, svc.History(ctx, "+40711111111"))

	// Histories are per identity
	require.Empty(t, svc.History(ctx, "+40722222222"))
}

func TestHistory_AppendExtends(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(testConfig(), &stubProvider{})

	first := chat.Turn{Role: chat.RoleUser, Content: "hi"}
	second := chat.Turn{Role: chat.RoleAssistant, Content: "hello"}

	require.NoError(t, svc.AppendTurns(ctx, "+40711111111", first))
	require.NoError(t, svc.AppendTurns(ctx, "+40711111111", second))

	require.Equal(t, []chat.Turn{first, second}, svc.History(ctx, "+40711111111"))
}

func TestReplaceHistory_Rebuilds(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(testConfig(), &stubProvider{})

	require.NoError(t, svc.AppendTurns(ctx, "+40711111111",
		chat.Turn{Role: chat.RoleUser, Content: "old turn"}))

	summary := chat.Turn{Role: chat.RoleSystem, Content: "[CONVERSATION SUMMARY]: earlier chat"}
	recent := chat.Turn{Role: chat.RoleUser, Content: "latest question"}

	require.NoError(t, svc.ReplaceHistory(ctx, "+40711111111", []chat.Turn{summary, recent}))
	require.Equal(t, []chat.Turn{summary, recent}, svc.History(ctx, "+40711111111"))
}

func TestHistory_StorageFailureIsEmpty(t *testing.T) {
	svc := NewService(testConfig(), failingStore{}, stubCounter{}, stubDetector{}, &stubProvider{})

	require.Empty(t, svc.History(context.Background(), "+40711111111"))
}
