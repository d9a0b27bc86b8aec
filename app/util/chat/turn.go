package chat

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Turn is a single conversation message. Turns are append-only; a turn is
// never mutated once recorded, only superseded by a summary turn.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
