package types

// StreamEventType identifies a session-scoped stream event.
type StreamEventType string

const (
	StreamSessionInit     StreamEventType = "session.init"
	StreamThought         StreamEventType = "thought"
	StreamCall            StreamEventType = "call"
	StreamObservation     StreamEventType = "observation"
	StreamFileUpdated     StreamEventType = "file.updated"
	StreamChunk           StreamEventType = "chunk"
	StreamError           StreamEventType = "error"
	StreamDone            StreamEventType = "done"
	StreamPing            StreamEventType = "ping"
	StreamStopped         StreamEventType = "stopped"
	StreamQuestionPending StreamEventType = "question.pending"
	StreamModeChanged     StreamEventType = "mode.changed"
	StreamStateChanged    StreamEventType = "state.changed"
)

// StreamEvent is the envelope published on a session's event bus and
// forwarded verbatim to SSE subscribers.
type StreamEvent struct {
	Type StreamEventType `json:"type"`
	Data any             `json:"properties"`
}

// SessionInitData is sent once when a stream subscriber attaches.
type SessionInitData struct {
	SessionID string        `json:"sessionID"`
	Status    SessionStatus `json:"status"`
	Mode      Mode          `json:"mode"`
}

// ThoughtData carries a chunk of model reasoning text.
type ThoughtData struct {
	Text string `json:"text"`
}

// CallData describes a tool call the agent is about to execute.
type CallData struct {
	Tool string `json:"tool"`
	Path string `json:"path,omitempty"`
	Args map[string]any `json:"args,omitempty"`
}

// ObservationData carries the result of a completed tool call.
type ObservationData struct {
	Tool    string `json:"tool"`
	Output  string `json:"output"`
	Success bool   `json:"success"`
}

// FileUpdatedData signals that a workspace file gained a new version.
type FileUpdatedData struct {
	Path    string `json:"path"`
	Version string `json:"version"`
}

// ChunkData carries a delta of assistant response text.
type ChunkData struct {
	Text string `json:"text"`
}

// ErrorData carries a terminal failure message.
type ErrorData struct {
	Message string `json:"message"`
}

// DoneData signals successful completion of an interaction.
type DoneData struct {
	Message string `json:"message,omitempty"`
}

// StoppedData signals a pause or cancellation, with any partial output
// flushed before the stop took effect.
type StoppedData struct {
	Reason          string `json:"reason"`
	PartialResponse string `json:"partialResponse,omitempty"`
}

// QuestionPendingData surfaces questions the agent raised for the user.
type QuestionPendingData struct {
	QuestionID string   `json:"questionID"`
	Questions  []string `json:"questions"`
	CreatedAt  int64    `json:"createdAt"`
}

// ModeChangedData signals a build/plan mode switch.
type ModeChangedData struct {
	Mode     Mode   `json:"mode"`
	PlanFile string `json:"planFile,omitempty"`
}

// StateChangedData signals an actor state transition.
type StateChangedData struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}
