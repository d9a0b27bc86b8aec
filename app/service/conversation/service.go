package conversation

import (
	"chatgate/app/client/kvstore"
	"chatgate/app/client/llm"
	"chatgate/app/config"
	"chatgate/app/service/language"
	"chatgate/app/service/tokencount"
	"chatgate/app/util/chat"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
	"golang.org/x/sync/singleflight"
)

const (
	summaryCacheTTL = time.Hour
	summaryTimeout  = 30 * time.Second

	// Fallback summary shape: truncated snippets of the last few older turns
	fallbackTurns      = 3
	fallbackSnippetLen = 50

	// User turns sampled for language detection
	languageSampleTurns = 3
)

type Service struct {
	cfg      *config.Config
	store    kvstore.Store
	counter  Counter
	detector Detector
	provider CompletionProvider

	group singleflight.Group
}

func New(di *do.Injector) (*Service, error) {
	return NewService(
		do.MustInvoke[*config.Config](di),
		do.MustInvoke[kvstore.Store](di),
		do.MustInvoke[*tokencount.Service](di),
		do.MustInvoke[*language.Service](di),
		do.MustInvoke[*llm.Client](di),
	), nil
}

func NewService(
	cfg *config.Config,
	store kvstore.Store,
	counter Counter,
	detector Detector,
	provider CompletionProvider,
) *Service {
	return &Service{
		cfg:      cfg,
		store:    store,
		counter:  counter,
		detector: detector,
		provider: provider,
	}
}

// Compact decides whether the history plus the incoming turn fits the token
// budget and, if not, replaces older turns with a summary turn. The incoming
// turn is never included in the returned context; appending it afterward is
// the caller's responsibility.
func (s *Service) Compact(
	ctx context.Context,
	identity string,
	history []chat.Turn,
	incoming chat.Turn,
	now time.Time,
) Result {
	all := make([]chat.Turn, 0, len(history)+1)
	all = append(all, history...)
	all = append(all, incoming)

	total := s.counter.CountTurns(all)
	if total <= s.cfg.Context.SummaryTriggerTokens {
		return Result{Context: CompactedContext{Recent: history}}
	}

	slog.Info("Token limit exceeded, compacting",
		"identity", identity,
		"tokens", total,
		"trigger", s.cfg.Context.SummaryTriggerTokens,
	)

	cacheKey := summaryKey(identity, now)

	if cached, degraded, ok := s.cachedContext(ctx, cacheKey); ok {
		slog.Debug("Reusing cached summary", "identity", identity)
		return Result{Context: cached, Compacted: true, Degraded: degraded}
	}

	keep := s.cfg.Context.KeepRecentMessages
	if len(history) <= keep {
		// Nothing older to summarize, plain truncation
		return Result{Context: CompactedContext{Recent: history}}
	}

	recent := history[len(history)-keep:]
	older := history[:len(history)-keep]

	lang := s.conversationLanguage(recent)

	// Concurrent compactions of the same identity+hour share one summary
	value, _, _ := s.group.Do(cacheKey, func() (any, error) {
		text, degraded := s.summarize(ctx, older, lang)

		summary := chat.Turn{
			Role:    chat.RoleSystem,
			Content: summaryPrefix(lang) + ": " + text,
		}

		compacted := CompactedContext{Summary: &summary, Recent: recent}

		s.cacheContext(ctx, cacheKey, compacted, degraded)

		return summarized{context: compacted, degraded: degraded}, nil
	})
	outcome := value.(summarized)

	slog.Info("Conversation compacted",
		"identity", identity,
		"original_tokens", total,
		"optimized_tokens", s.counter.CountTurns(outcome.context.Turns()),
		"language", lang,
		"degraded", outcome.degraded,
	)

	return Result{Context: outcome.context, Compacted: true, Degraded: outcome.degraded}
}

type summarized struct {
	context  CompactedContext
	degraded bool
}

func (s *Service) summarize(ctx context.Context, older []chat.Turn, lang string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, summaryTimeout)
	defer cancel()

	text, err := s.provider.Summarize(ctx, older, lang, s.cfg.Context.SummaryTargetTokens)
	if err != nil {
		slog.Error("Summarization failed, using fallback summary", "error", err)
		return s.fallbackSummary(older), true
	}

	return text, false
}

func (s *Service) fallbackSummary(turns []chat.Turn) string {
	start := len(turns) - fallbackTurns
	if start < 0 {
		start = 0
	}

	topics := pie.Map(turns[start:], func(turn chat.Turn) string {
		content := turn.Content
		if utf8.RuneCountInString(content) > fallbackSnippetLen {
			content = string([]rune(content)[:fallbackSnippetLen]) + "..."
		}

		return content
	})

	return "Previous conversation covered: " + strings.Join(topics, ", ")
}

func (s *Service) conversationLanguage(recent []chat.Turn) string {
	userTurns := pie.Filter(recent, func(turn chat.Turn) bool {
		return turn.Role == chat.RoleUser
	})

	if len(userTurns) > languageSampleTurns {
		userTurns = userTurns[len(userTurns)-languageSampleTurns:]
	}

	sample := strings.Join(pie.Map(userTurns, func(turn chat.Turn) string {
		return turn.Content
	}), " ")

	if strings.TrimSpace(sample) == "" {
		return s.cfg.Language.Default
	}

	return s.detector.Detect(sample)
}

// cacheEntry is the serialized form of a compacted context. Degraded travels
// with it so a fallback summary served from cache is still reported as such.
type cacheEntry struct {
	Context  CompactedContext `json:"context"`
	Degraded bool             `json:"degraded"`
}

func (s *Service) cachedContext(ctx context.Context, key string) (CompactedContext, bool, bool) {
	value, found, err := s.store.Get(ctx, key)
	if err != nil {
		slog.Warn("Error reading summary cache", "key", key, "error", err)
		return CompactedContext{}, false, false
	}

	if !found {
		return CompactedContext{}, false, false
	}

	var cached cacheEntry
	if err = json.Unmarshal([]byte(value), &cached); err != nil {
		slog.Warn("Malformed summary cache entry", "key", key, "error", err)
		return CompactedContext{}, false, false
	}

	return cached.Context, cached.Degraded, true
}

func (s *Service) cacheContext(ctx context.Context, key string, compacted CompactedContext, degraded bool) {
	data, err := json.Marshal(cacheEntry{Context: compacted, Degraded: degraded})
	if err != nil {
		slog.Warn("Error serializing summary", "key", key, "error", err)
		return
	}

	if err = s.store.SetEx(ctx, key, string(data), summaryCacheTTL); err != nil {
		slog.Warn("Error caching summary", "key", key, "error", err)
	}
}

func summaryKey(identity string, now time.Time) string {
	return fmt.Sprintf("summary:%s:%s", identity, now.Format("2006-01-02-15"))
}
