// Package types provides the core data types for the quill server.
package types

// SessionStatus is the persisted lifecycle status of a session.
type SessionStatus string

const (
	StatusIdle      SessionStatus = "idle"
	StatusRunning   SessionStatus = "running"
	StatusPaused    SessionStatus = "paused"
	StatusCancelled SessionStatus = "cancelled"
	StatusCompleted SessionStatus = "completed"
	StatusError     SessionStatus = "error"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Mode is the tool-execution policy for a session.
type Mode string

const (
	// ModeBuild allows unrestricted tool execution inside the workspace.
	ModeBuild Mode = "build"
	// ModePlan restricts mutating tools to the plan directory.
	ModePlan Mode = "plan"
)

// Session represents one chat's agent-interaction lifecycle.
type Session struct {
	ID          string        `json:"id"`
	WorkspaceID string        `json:"workspaceID"`
	UserID      string        `json:"userID"`
	Title       string        `json:"title"`
	Status      SessionStatus `json:"status"`
	Mode        Mode          `json:"mode"`
	PlanPath    string        `json:"planPath,omitempty"`
	Model       string        `json:"model,omitempty"`
	Task        string        `json:"task,omitempty"`
	Time        SessionTime   `json:"time"`
}

// SessionTime contains timestamps for a session, in Unix milliseconds.
type SessionTime struct {
	Created int64  `json:"created"`
	Updated int64  `json:"updated"`
	Ended   *int64 `json:"ended,omitempty"`
}

// ModelRef identifies a provider/model pair for an interaction.
type ModelRef struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}
