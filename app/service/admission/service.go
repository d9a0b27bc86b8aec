package admission

import (
	"chatgate/app/client/kvstore"
	"chatgate/app/config"
	"context"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
)

const (
	dailyTTL       = 24 * time.Hour
	hourlyTTL      = time.Hour
	lastMessageTTL = time.Hour
	userExistsTTL  = 7 * 24 * time.Hour
	optOutTTL      = 365 * 24 * time.Hour
	firstSeenTTL   = 365 * 24 * time.Hour
	lockTTL        = 5 * time.Second

	// Delay applied when anti-ban pacing is disabled
	minimalDelay = 100 * time.Millisecond

	nightDelayFactor = 1.5
	maxWarmupTier    = 4
)

const keyLastMessageSent = "last_message_sent"

var optOutKeywords = []string{"stop", "unsubscribe", "opt out", "quit", "leave me alone"}

type Service struct {
	cfg   *config.Config
	store kvstore.Store
}

func New(di *do.Injector) (*Service, error) {
	return NewService(
		do.MustInvoke[*config.Config](di),
		do.MustInvoke[kvstore.Store](di),
	), nil
}

func NewService(cfg *config.Config, store kvstore.Store) *Service {
	return &Service{
		cfg:   cfg,
		store: store,
	}
}

// Decide runs the admission policy in fixed order; the first matching deny
// wins. Opt-out requests are honored regardless of the anti-ban toggle.
// Storage read failures resolve to allow.
func (s *Service) Decide(ctx context.Context, identity, message string, now time.Time) Decision {
	if s.isOptOutRequest(message) {
		s.setOptedOut(ctx, identity)

		slog.Info("User opted out", "identity", identity)

		return Decision{OptOutAck: true}
	}

	if s.cfg.AntiBan.Disabled {
		return Decision{Allowed: true}
	}

	if s.isOptedOut(ctx, identity) {
		return Decision{Reason: DenyOptedOut}
	}

	if !s.globalRateOK(ctx, now) {
		return Decision{Reason: DenyGlobalRateLimit}
	}

	if !s.newUserQuotaOK(ctx, identity, now) {
		return Decision{Reason: DenyNewUserQuota}
	}

	if !s.dailyQuotaOK(ctx, identity, now) {
		return Decision{Reason: DenyDailyQuota}
	}

	return Decision{Allowed: true}
}

// RecordSent updates the rate-limit counters after a message was actually
// answered. Each call increments; the caller must invoke it exactly once per
// answered message. Write failures are best-effort and never abort the
// response path.
func (s *Service) RecordSent(ctx context.Context, identity string, now time.Time) {
	if s.cfg.AntiBan.Disabled {
		return
	}

	timestamp := strconv.FormatFloat(float64(now.UnixNano())/float64(time.Second), 'f', -1, 64)
	if err := s.store.SetEx(ctx, keyLastMessageSent, timestamp, lastMessageTTL); err != nil {
		slog.Warn("Error recording last message time", "error", err)
	}

	dailyKey := "daily_messages:" + now.Format("2006-01-02")
	if _, err := s.store.Incr(ctx, dailyKey); err != nil {
		slog.Warn("Error incrementing daily counter", "error", err)
	} else if err = s.store.Expire(ctx, dailyKey, dailyTTL); err != nil {
		slog.Warn("Error setting daily counter TTL", "error", err)
	}

	known, err := s.store.Exists(ctx, "user_exists:"+identity)
	if err != nil {
		slog.Warn("Error checking user existence", "identity", identity, "error", err)
		return
	}

	if known {
		return
	}

	newUserKey := "new_user_messages:" + now.Format("2006-01-02-15")
	if _, err = s.store.Incr(ctx, newUserKey); err != nil {
		slog.Warn("Error incrementing new user counter", "error", err)
	} else if err = s.store.Expire(ctx, newUserKey, hourlyTTL); err != nil {
		slog.Warn("Error setting new user counter TTL", "error", err)
	}

	if err = s.store.SetEx(ctx, "user_exists:"+identity, "1", userExistsTTL); err != nil {
		slog.Warn("Error marking user as known", "identity", identity, "error", err)
	}

	// First-seen drives the warm-up tier; SetNX so a re-send never resets it
	timestampKey := "user_first_seen:" + identity
	if _, err = s.store.SetNX(ctx, timestampKey, strconv.FormatInt(now.Unix(), 10), firstSeenTTL); err != nil {
		slog.Warn("Error recording first-seen timestamp", "identity", identity, "error", err)
	}
}

// Delay returns a human-like pacing delay, stretched during night hours.
// Advisory only: the caller applies it per request without holding locks.
func (s *Service) Delay(now time.Time) time.Duration {
	if s.cfg.AntiBan.Disabled {
		return minimalDelay
	}

	minDelay := s.cfg.AntiBan.MinDelay()
	maxDelay := s.cfg.AntiBan.MaxDelay()

	delay := minDelay + time.Duration(rand.Float64()*float64(maxDelay-minDelay))

	hour := now.Hour()
	start := s.cfg.AntiBan.NightStartHour
	end := s.cfg.AntiBan.NightEndHour

	// The default window wraps midnight (22..6); a same-day window must not
	night := hour >= start || hour <= end
	if start <= end {
		night = hour >= start && hour <= end
	}

	if night {
		delay = time.Duration(float64(delay) * nightDelayFactor)
	}

	return delay
}

// TryLock acquires the optional per-identity admission lock. Always succeeds
// when the hardening option is off.
func (s *Service) TryLock(ctx context.Context, identity string) bool {
	if !s.cfg.AntiBan.AdmissionLock {
		return true
	}

	acquired, err := s.store.SetNX(ctx, "admission_lock:"+identity, "1", lockTTL)
	if err != nil {
		slog.Warn("Error acquiring admission lock", "identity", identity, "error", err)
		return true
	}

	return acquired
}

func (s *Service) Unlock(ctx context.Context, identity string) {
	if !s.cfg.AntiBan.AdmissionLock {
		return
	}

	if err := s.store.Del(ctx, "admission_lock:"+identity); err != nil {
		slog.Warn("Error releasing admission lock", "identity", identity, "error", err)
	}
}

// Stats snapshots the global send counters. Warm-up tiers are per identity,
// so the daily limit reported here is the steady-state one.
func (s *Service) Stats(ctx context.Context, now time.Time) Stats {
	dailySent := s.counterValue(ctx, "daily_messages:"+now.Format("2006-01-02"))
	newUsers := s.counterValue(ctx, "new_user_messages:"+now.Format("2006-01-02-15"))

	limits := s.cfg.AntiBan.DailyMessageLimits
	steadyLimit := limits[len(limits)-1]

	status := "healthy"
	if float64(dailySent) >= float64(steadyLimit)*0.8 {
		status = "approaching_limit"
	}

	remaining := int64(steadyLimit) - dailySent
	if remaining < 0 {
		remaining = 0
	}

	return Stats{
		DailySent:          dailySent,
		DailyLimit:         steadyLimit,
		DailyRemaining:     remaining,
		NewUsersThisHour:   newUsers,
		MaxNewUsersPerHour: s.cfg.AntiBan.MaxNewUsersPerHour,
		RateStatus:         status,
	}
}

func (s *Service) isOptOutRequest(message string) bool {
	lower := strings.ToLower(strings.TrimSpace(message))

	return pie.Any(optOutKeywords, func(keyword string) bool {
		return strings.Contains(lower, keyword)
	})
}

func (s *Service) setOptedOut(ctx context.Context, identity string) {
	if err := s.store.SetEx(ctx, "opted_out:"+identity, "1", optOutTTL); err != nil {
		slog.Error("Error setting opt-out status", "identity", identity, "error", err)
	}
}

func (s *Service) isOptedOut(ctx context.Context, identity string) bool {
	optedOut, err := s.store.Exists(ctx, "opted_out:"+identity)
	if err != nil {
		slog.Warn("Error checking opt-out status", "identity", identity, "error", err)
		return false
	}

	return optedOut
}

func (s *Service) globalRateOK(ctx context.Context, now time.Time) bool {
	value, found, err := s.store.Get(ctx, keyLastMessageSent)
	if err != nil {
		slog.Warn("Error checking global rate limit", "error", err)
		return true
	}

	if !found {
		return true
	}

	lastSent, err := strconv.ParseFloat(value, 64)
	if err != nil {
		slog.Warn("Malformed last message timestamp", "value", value, "error", err)
		return true
	}

	elapsed := float64(now.UnixNano())/float64(time.Second) - lastSent

	return elapsed >= s.cfg.AntiBan.GlobalRateLimit
}

func (s *Service) newUserQuotaOK(ctx context.Context, identity string, now time.Time) bool {
	known, err := s.store.Exists(ctx, "user_exists:"+identity)
	if err != nil {
		slog.Warn("Error checking user existence", "identity", identity, "error", err)
		return true
	}

	if known {
		return true
	}

	count := s.counterValue(ctx, "new_user_messages:"+now.Format("2006-01-02-15"))

	return count < int64(s.cfg.AntiBan.MaxNewUsersPerHour)
}

func (s *Service) dailyQuotaOK(ctx context.Context, identity string, now time.Time) bool {
	count := s.counterValue(ctx, "daily_messages:"+now.Format("2006-01-02"))

	tier := s.warmupTier(ctx, identity, now)
	limit := s.cfg.AntiBan.DailyMessageLimits[tier-1]

	return count < int64(limit)
}

// warmupTier derives the daily quota tier from account age in weeks, based
// on the per-identity first-seen timestamp. Unknown identities start at
// tier 1.
func (s *Service) warmupTier(ctx context.Context, identity string, now time.Time) int {
	value, found, err := s.store.Get(ctx, "user_first_seen:"+identity)
	if err != nil {
		slog.Warn("Error reading first-seen timestamp", "identity", identity, "error", err)
		return 1
	}

	if !found {
		return 1
	}

	firstSeen, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		slog.Warn("Malformed first-seen timestamp", "value", value, "error", err)
		return 1
	}

	weeks := int(now.Sub(time.Unix(firstSeen, 0)).Hours() / (24 * 7))

	tier := weeks + 1
	if tier < 1 {
		tier = 1
	}
	if tier > maxWarmupTier {
		tier = maxWarmupTier
	}

	return tier
}

func (s *Service) counterValue(ctx context.Context, key string) int64 {
	value, found, err := s.store.Get(ctx, key)
	if err != nil {
		slog.Warn("Error reading counter", "key", key, "error", err)
		return 0
	}

	if !found {
		return 0
	}

	count, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		slog.Warn("Malformed counter value", "key", key, "value", value, "error", err)
		return 0
	}

	return count
}
