package types

// ChatMessage is one persisted turn of a session's conversation.
type ChatMessage struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionID"`
	Role      string      `json:"role"` // "user" or "assistant"
	Content   string      `json:"content"`
	Model     *ModelRef   `json:"model,omitempty"`
	Time      MessageTime `json:"time"`
}

// MessageTime contains message timestamps in Unix milliseconds.
type MessageTime struct {
	Created int64  `json:"created"`
	Updated *int64 `json:"updated,omitempty"`
}

// ReasoningRecord accumulates the model's reasoning text for one
// reasoning session, flushed in batches from the runtime.
type ReasoningRecord struct {
	ID        string   `json:"id"`
	SessionID string   `json:"sessionID"`
	Chunks    []string `json:"chunks"`
	Updated   int64    `json:"updated"`
}
