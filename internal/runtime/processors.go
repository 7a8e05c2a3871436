package runtime

import (
	"github.com/quillworks/quill/internal/apperr"
	"github.com/quillworks/quill/pkg/types"
)

// Action is a side effect produced by resolving an event. The actor
// executes actions in order after applying the state transition.
type Action interface {
	isAction()
}

// PersistStatus updates the persisted session status.
type PersistStatus struct {
	Status types.SessionStatus
}

// ResetTimer restarts the inactivity timer.
type ResetTimer struct{}

// StartInteraction hands off to the AI-processing pipeline.
type StartInteraction struct {
	UserID string
}

// Interrupt signals the in-flight interaction's cancellation handle
// and flushes any buffered partial output.
type Interrupt struct {
	Reason string
}

// Teardown stops the actor loop after the current event completes.
type Teardown struct{}

// Redispatch re-submits an event to the front of processing, used by
// the Paused resume path.
type Redispatch struct {
	Event Event
}

// PersistMode updates the persisted session mode.
type PersistMode struct {
	Mode     types.Mode
	PlanPath string
}

func (PersistStatus) isAction()    {}
func (ResetTimer) isAction()       {}
func (StartInteraction) isAction() {}
func (Interrupt) isAction()        {}
func (Teardown) isAction()         {}
func (Redispatch) isAction()       {}
func (PersistMode) isAction()      {}

// EventResult is the outcome of resolving one event: an optional
// transition, side-effect actions, and stream events to broadcast.
type EventResult struct {
	NewState *ActorState
	Actions  []Action
	Emit     []types.StreamEvent
}

// EventProcessor resolves one event type against the session state.
type EventProcessor interface {
	// Validate rejects the event before execution; the default
	// implementation rejects everything in a terminal state.
	Validate(ev Event, state ActorState) error

	// Execute resolves the event into a result. It may mutate the
	// session context but must not perform side effects itself.
	Execute(ev Event, sc *SessionContext) (EventResult, error)
}

// baseProcessor supplies the default terminal-state rejection.
type baseProcessor struct{}

func (baseProcessor) Validate(ev Event, state ActorState) error {
	if state.Terminal() {
		return apperr.Newf(apperr.KindConflict, "session is %s: %s rejected", state, ev.Name())
	}
	return nil
}

func processorFor(ev Event) (EventProcessor, error) {
	switch ev.(type) {
	case ProcessInteraction:
		return processInteractionProcessor{}, nil
	case Pause:
		return pauseProcessor{}, nil
	case Cancel:
		return cancelProcessor{}, nil
	case Ping:
		return pingProcessor{}, nil
	case Shutdown:
		return shutdownProcessor{}, nil
	case SetMode:
		return setModeProcessor{}, nil
	case InactivityTimeout:
		return inactivityProcessor{}, nil
	case InteractionComplete:
		return interactionCompleteProcessor{}, nil
	default:
		return nil, apperr.Newf(apperr.KindInternal, "no processor for event %s", ev.Name())
	}
}

func stateChanged(from, to ActorState, reason string) types.StreamEvent {
	return types.StreamEvent{
		Type: types.StreamStateChanged,
		Data: types.StateChangedData{From: string(from), To: string(to), Reason: reason},
	}
}

type processInteractionProcessor struct{ baseProcessor }

func (processInteractionProcessor) Execute(ev Event, sc *SessionContext) (EventResult, error) {
	cmd, ok := ev.(ProcessInteraction)
	if !ok {
		return EventResult{}, apperr.New(apperr.KindInternal, "wrong event type for process_interaction")
	}

	switch sc.State {
	case StateIdle:
		to := StateRunning
		return EventResult{
			NewState: &to,
			Actions: []Action{
				PersistStatus{Status: types.StatusRunning},
				StartInteraction{UserID: cmd.UserID},
			},
			Emit: []types.StreamEvent{stateChanged(StateIdle, StateRunning, "interaction started")},
		}, nil

	case StateRunning:
		// Already processing; the queued interaction is superseded
		// by the in-flight one's completion.
		return EventResult{}, nil

	case StatePaused:
		// Resume passes through Idle, then the same event is
		// re-dispatched to start the interaction from there. Both
		// transitions are observable on the stream.
		to := StateIdle
		return EventResult{
			NewState: &to,
			Actions: []Action{
				PersistStatus{Status: types.StatusIdle},
				Redispatch{Event: ev},
			},
			Emit: []types.StreamEvent{stateChanged(StatePaused, StateIdle, "resumed")},
		}, nil
	}

	return EventResult{}, nil
}

type pauseProcessor struct{ baseProcessor }

func (pauseProcessor) Execute(ev Event, sc *SessionContext) (EventResult, error) {
	cmd, ok := ev.(Pause)
	if !ok {
		return EventResult{}, apperr.New(apperr.KindInternal, "wrong event type for pause")
	}

	switch sc.State {
	case StateIdle:
		to := StatePaused
		return EventResult{
			NewState: &to,
			Actions:  []Action{PersistStatus{Status: types.StatusPaused}},
			Emit: []types.StreamEvent{
				stateChanged(StateIdle, StatePaused, cmd.Reason),
				{Type: types.StreamStopped, Data: types.StoppedData{Reason: pauseReason(cmd.Reason)}},
			},
		}, nil

	case StateRunning:
		to := StatePaused
		return EventResult{
			NewState: &to,
			Actions: []Action{
				Interrupt{Reason: pauseReason(cmd.Reason)},
				PersistStatus{Status: types.StatusPaused},
			},
			Emit: []types.StreamEvent{stateChanged(StateRunning, StatePaused, cmd.Reason)},
		}, nil

	case StatePaused:
		// Already paused: ack only.
		return EventResult{}, nil
	}

	return EventResult{}, nil
}

func pauseReason(reason string) string {
	if reason == "" {
		return "paused"
	}
	return reason
}

type cancelProcessor struct{ baseProcessor }

// Validate allows Cancel in any state: cancellation is idempotent
// from the caller's perspective.
func (cancelProcessor) Validate(ev Event, state ActorState) error { return nil }

func (cancelProcessor) Execute(ev Event, sc *SessionContext) (EventResult, error) {
	cmd, ok := ev.(Cancel)
	if !ok {
		return EventResult{}, apperr.New(apperr.KindInternal, "wrong event type for cancel")
	}

	if sc.State.Terminal() {
		return EventResult{}, nil
	}

	from := sc.State
	to := StateCancelled
	reason := cmd.Reason
	if reason == "" {
		reason = "cancelled"
	}

	actions := []Action{}
	if from == StateRunning {
		actions = append(actions, Interrupt{Reason: reason})
	}
	actions = append(actions,
		PersistStatus{Status: types.StatusCancelled},
		Teardown{},
	)

	emit := []types.StreamEvent{stateChanged(from, StateCancelled, reason)}
	if from != StateRunning {
		// The running path emits Stopped with the flushed partial
		// output from the Interrupt action instead.
		emit = append(emit, types.StreamEvent{
			Type: types.StreamStopped,
			Data: types.StoppedData{Reason: reason},
		})
	}

	return EventResult{NewState: &to, Actions: actions, Emit: emit}, nil
}

type pingProcessor struct{ baseProcessor }

// Validate allows Ping in any state, including terminal.
func (pingProcessor) Validate(ev Event, state ActorState) error { return nil }

func (pingProcessor) Execute(ev Event, sc *SessionContext) (EventResult, error) {
	if sc.State.Terminal() {
		return EventResult{}, nil
	}
	result := EventResult{
		Emit: []types.StreamEvent{{Type: types.StreamPing, Data: struct{}{}}},
	}
	// Running: ack only; the in-flight interaction already holds the
	// inactivity timer off.
	if sc.State != StateRunning {
		result.Actions = []Action{ResetTimer{}}
	}
	return result, nil
}

type shutdownProcessor struct{ baseProcessor }

// Validate allows Shutdown in any state; it only triggers teardown.
func (shutdownProcessor) Validate(ev Event, state ActorState) error { return nil }

func (shutdownProcessor) Execute(ev Event, sc *SessionContext) (EventResult, error) {
	return EventResult{Actions: []Action{Teardown{}}}, nil
}

type setModeProcessor struct{ baseProcessor }

func (setModeProcessor) Execute(ev Event, sc *SessionContext) (EventResult, error) {
	cmd, ok := ev.(SetMode)
	if !ok {
		return EventResult{}, apperr.New(apperr.KindInternal, "wrong event type for set_mode")
	}

	mode := types.Mode(cmd.Mode)
	switch mode {
	case types.ModeBuild, types.ModePlan:
	default:
		return EventResult{}, apperr.Newf(apperr.KindValidation, "unknown mode %q", cmd.Mode)
	}
	if mode == types.ModeBuild {
		cmd.PlanPath = ""
	}

	sc.SetMode(mode, cmd.PlanPath)
	return EventResult{
		Actions: []Action{PersistMode{Mode: mode, PlanPath: cmd.PlanPath}},
		Emit: []types.StreamEvent{{
			Type: types.StreamModeChanged,
			Data: types.ModeChangedData{Mode: mode, PlanFile: cmd.PlanPath},
		}},
	}, nil
}

type inactivityProcessor struct{ baseProcessor }

func (inactivityProcessor) Execute(ev Event, sc *SessionContext) (EventResult, error) {
	switch sc.State {
	case StateIdle, StatePaused:
		from := sc.State
		to := StateCompleted
		return EventResult{
			NewState: &to,
			Actions: []Action{
				PersistStatus{Status: types.StatusCompleted},
				Teardown{},
			},
			Emit: []types.StreamEvent{
				stateChanged(from, StateCompleted, "inactivity timeout"),
				{Type: types.StreamDone, Data: types.DoneData{Message: "session completed after inactivity"}},
			},
		}, nil
	}

	// Running: suppressed while actively processing.
	return EventResult{}, nil
}

type interactionCompleteProcessor struct{ baseProcessor }

// Validate accepts completions in any state; stale ones are dropped
// during execution.
func (interactionCompleteProcessor) Validate(ev Event, state ActorState) error { return nil }

func (interactionCompleteProcessor) Execute(ev Event, sc *SessionContext) (EventResult, error) {
	cmd, ok := ev.(InteractionComplete)
	if !ok {
		return EventResult{}, apperr.New(apperr.KindInternal, "wrong event type for interaction_complete")
	}

	if sc.State != StateRunning || cmd.Interaction != sc.CurrentInteraction() {
		// Stale completion from a superseded interaction.
		return EventResult{}, nil
	}

	sc.EndInteraction()

	if cmd.Success {
		to := StateIdle
		return EventResult{
			NewState: &to,
			Actions: []Action{
				PersistStatus{Status: types.StatusIdle},
				ResetTimer{},
			},
			Emit: []types.StreamEvent{stateChanged(StateRunning, StateIdle, "interaction complete")},
		}, nil
	}

	msg := "interaction failed"
	if cmd.Err != nil {
		msg = cmd.Err.Error()
	}
	to := StateError
	return EventResult{
		NewState: &to,
		Actions: []Action{
			PersistStatus{Status: types.StatusError},
			Teardown{},
		},
		Emit: []types.StreamEvent{
			{Type: types.StreamError, Data: types.ErrorData{Message: msg}},
			stateChanged(StateRunning, StateError, "interaction failed"),
		},
	}, nil
}
