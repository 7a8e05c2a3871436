package runtime

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	"github.com/quillworks/quill/internal/tool"
	"github.com/quillworks/quill/pkg/types"
)

// ActorState is the finite state an actor's state machine moves
// through. It mirrors the persisted session status; the transient
// shutdown phase never appears in storage.
type ActorState = types.SessionStatus

const (
	StateIdle      = types.StatusIdle
	StateRunning   = types.StatusRunning
	StatePaused    = types.StatusPaused
	StateCancelled = types.StatusCancelled
	StateCompleted = types.StatusCompleted
	StateError     = types.StatusError
)

// TextBuffer is an append-only chunk buffer drained atomically:
// Drain swaps the contents for an empty buffer in one critical
// section, so a concurrent writer can neither lose nor duplicate a
// chunk across a flush boundary.
type TextBuffer struct {
	mu     sync.Mutex
	chunks []string
}

// Append adds one chunk.
func (b *TextBuffer) Append(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = append(b.chunks, s)
}

// Drain takes all buffered chunks and installs an empty buffer.
func (b *TextBuffer) Drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.chunks
	b.chunks = nil
	return out
}

// Len returns the number of buffered chunks.
func (b *TextBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// SessionContext is the session-local mutable state owned by exactly
// one actor. The State field is touched only from the actor's own
// goroutine; fields shared with the interaction pipeline are guarded.
type SessionContext struct {
	SessionID   string
	WorkspaceID string
	UserID      string

	// State is the current actor state. Actor-goroutine only.
	State ActorState

	mu       sync.Mutex
	mode     types.Mode
	planPath string
	model    types.ModelRef
	task     string

	// currentTool and currentToolArgs describe the in-flight tool
	// call; always updated as a pair.
	currentTool     string
	currentToolArgs json.RawMessage

	cancel      func()
	interaction uint64

	activelyProcessing atomic.Bool

	reasoningID string

	// Reasoning buffers model reasoning text pending persistence;
	// Partial buffers assistant response text flushed on interrupt.
	Reasoning TextBuffer
	Partial   TextBuffer
}

// NewSessionContext builds the actor state from a session record.
func NewSessionContext(session *types.Session) *SessionContext {
	sc := &SessionContext{
		SessionID:   session.ID,
		WorkspaceID: session.WorkspaceID,
		UserID:      session.UserID,
		State:       session.Status,
		mode:        session.Mode,
		planPath:    session.PlanPath,
		task:        session.Task,
	}
	if sc.State == "" {
		sc.State = StateIdle
	}
	if sc.mode == "" {
		sc.mode = types.ModeBuild
	}
	return sc
}

// SetCurrentTool records the in-flight tool call name and arguments
// as one pair, for logging when the result arrives.
func (sc *SessionContext) SetCurrentTool(name string, args json.RawMessage) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.currentTool = name
	sc.currentToolArgs = args
}

// CurrentTool returns the in-flight tool call pair.
func (sc *SessionContext) CurrentTool() (string, json.RawMessage) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.currentTool, sc.currentToolArgs
}

// SetMode switches the tool-execution policy.
func (sc *SessionContext) SetMode(mode types.Mode, planPath string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.mode = mode
	sc.planPath = planPath
}

// ModeInfo returns the current mode and active plan path.
func (sc *SessionContext) ModeInfo() (types.Mode, string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.mode, sc.planPath
}

// Invocation derives the per-request tool invocation context from the
// session's current mode.
func (sc *SessionContext) Invocation() *tool.InvocationContext {
	mode, planPath := sc.ModeInfo()
	return &tool.InvocationContext{
		SessionID:      sc.SessionID,
		PlanMode:       mode == types.ModePlan,
		ActivePlanPath: planPath,
	}
}

// BeginInteraction installs the cancellation handle for a new
// interaction and returns its generation counter.
func (sc *SessionContext) BeginInteraction(cancel func()) uint64 {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.interaction++
	sc.cancel = cancel
	sc.activelyProcessing.Store(true)
	return sc.interaction
}

// EndInteraction drops the cancellation handle and clears the
// actively-processing flag.
func (sc *SessionContext) EndInteraction() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.cancel = nil
	sc.activelyProcessing.Store(false)
}

// Interrupt signals the in-flight interaction's cancellation handle,
// if any, and consumes it.
func (sc *SessionContext) Interrupt() {
	sc.mu.Lock()
	cancel := sc.cancel
	sc.cancel = nil
	sc.mu.Unlock()

	sc.activelyProcessing.Store(false)
	if cancel != nil {
		cancel()
	}
}

// CurrentInteraction returns the generation counter of the latest
// interaction.
func (sc *SessionContext) CurrentInteraction() uint64 {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.interaction
}

// ActivelyProcessing reports whether an interaction is in flight.
// Suppresses the inactivity timeout during long tool use.
func (sc *SessionContext) ActivelyProcessing() bool {
	return sc.activelyProcessing.Load()
}

// ReasoningID lazily assigns the reasoning-session identifier.
func (sc *SessionContext) ReasoningID() string {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.reasoningID == "" {
		sc.reasoningID = ulid.Make().String()
	}
	return sc.reasoningID
}

// SetModel records the model used by the current interaction.
func (sc *SessionContext) SetModel(ref types.ModelRef) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.model = ref
}

// Model returns the current model reference.
func (sc *SessionContext) Model() types.ModelRef {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.model
}

// SetTask records the current task description.
func (sc *SessionContext) SetTask(task string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.task = task
}

// Task returns the current task description.
func (sc *SessionContext) Task() string {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.task
}
