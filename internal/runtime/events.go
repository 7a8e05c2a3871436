package runtime

// Event is a typed request to change or inspect a session's state.
// Events are submitted through a session's command channel and applied
// strictly in submission order.
type Event interface {
	// Name identifies the event type for logging and processor lookup.
	Name() string
}

// ProcessInteraction starts (or resumes into) an AI interaction.
type ProcessInteraction struct {
	UserID string
}

func (ProcessInteraction) Name() string { return "process_interaction" }

// Pause interrupts any in-flight interaction and parks the session.
type Pause struct {
	Reason string
}

func (Pause) Name() string { return "pause" }

// Cancel terminates the session. Idempotent from the caller's view.
type Cancel struct {
	Reason string
}

func (Cancel) Name() string { return "cancel" }

// Ping keeps an idle-but-attached session alive.
type Ping struct{}

func (Ping) Name() string { return "ping" }

// Shutdown tears the worker down without changing session state.
type Shutdown struct{}

func (Shutdown) Name() string { return "shutdown" }

// SetMode switches the session between build and plan mode.
type SetMode struct {
	Mode     string
	PlanPath string
}

func (SetMode) Name() string { return "set_mode" }

// InactivityTimeout is injected by the actor's idle timer, never by
// external callers.
type InactivityTimeout struct{}

func (InactivityTimeout) Name() string { return "inactivity_timeout" }

// InteractionComplete is emitted by the AI pipeline when an
// interaction finishes. Interaction carries the generation counter it
// belongs to so a stale completion cannot affect a newer interaction.
type InteractionComplete struct {
	Interaction uint64
	Success     bool
	Err         error
}

func (InteractionComplete) Name() string { return "interaction_complete" }

// Envelope pairs an event with an optional reply channel. When Reply
// is non-nil the actor sends exactly one value: the validation or
// execution error, or nil on acceptance.
type Envelope struct {
	Event Event
	Reply chan error
}

func reply(env Envelope, err error) {
	if env.Reply != nil {
		env.Reply <- err
	}
}
