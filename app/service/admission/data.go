package admission

type DenyReason string

const (
	DenyOptedOut        DenyReason = "opted_out"
	DenyGlobalRateLimit DenyReason = "global_rate_limited"
	DenyNewUserQuota    DenyReason = "new_user_quota_exceeded"
	DenyDailyQuota      DenyReason = "daily_quota_exceeded"
)

// Decision is the outcome of an admission check. OptOutAck is distinguished
// from a plain deny: the caller must send a one-time opt-out confirmation,
// not silence.
type Decision struct {
	Allowed   bool
	OptOutAck bool
	Reason    DenyReason
}

type Stats struct {
	DailySent          int64  `json:"daily_messages_sent"`
	DailyLimit         int    `json:"daily_limit"`
	DailyRemaining     int64  `json:"daily_remaining"`
	NewUsersThisHour   int64  `json:"new_users_this_hour"`
	MaxNewUsersPerHour int    `json:"new_user_limit"`
	RateStatus         string `json:"rate_limit_status"`
}
