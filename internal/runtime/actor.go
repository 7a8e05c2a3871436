package runtime

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/quillworks/quill/internal/event"
	"github.com/quillworks/quill/internal/logging"
	"github.com/quillworks/quill/internal/provider"
	"github.com/quillworks/quill/internal/storage"
	"github.com/quillworks/quill/internal/tool"
	"github.com/quillworks/quill/internal/workspace"
	"github.com/quillworks/quill/pkg/types"
)

const (
	// DefaultInactivityTimeout completes a session idle this long.
	DefaultInactivityTimeout = 5 * time.Minute

	commandBuffer = 32
)

// Deps bundles the collaborators the runtime needs.
type Deps struct {
	Records   *storage.Store
	Workspace *workspace.Store
	Providers *provider.Registry
	Tools     *tool.Registry
	Bus       *event.Bus
	Config    *types.Config
}

// Actor is the exclusive, serialized processor of events for one
// session. It consumes its command queue item-by-item; no two events
// for the same session are ever processed concurrently.
type Actor struct {
	key      string
	sc       *SessionContext
	commands chan Envelope
	done     chan struct{}

	registry *Registry
	deps     *Deps

	inactivity time.Duration
	timer      *time.Timer

	log zerolog.Logger
}

func newActor(key string, sc *SessionContext, registry *Registry, deps *Deps) *Actor {
	inactivity := DefaultInactivityTimeout
	if deps.Config != nil && deps.Config.InactivityTimeoutSec > 0 {
		inactivity = time.Duration(deps.Config.InactivityTimeoutSec) * time.Second
	}
	return &Actor{
		key:        key,
		sc:         sc,
		commands:   make(chan Envelope, commandBuffer),
		done:       make(chan struct{}),
		registry:   registry,
		deps:       deps,
		inactivity: inactivity,
		log:        logging.For("actor").With().Str("session", key).Logger(),
	}
}

// Handle returns the shared endpoint for this actor.
func (a *Actor) Handle() *Handle {
	return &Handle{commands: a.commands, done: a.done}
}

// Run processes the command queue until teardown. One goroutine per
// live session.
func (a *Actor) Run(ctx context.Context) {
	defer a.teardown()

	a.log.Debug().Str("state", string(a.sc.State)).Msg("actor started")

	a.timer = time.NewTimer(a.inactivity)
	defer a.timer.Stop()

	for {
		select {
		case env := <-a.commands:
			if stop := a.handle(ctx, env); stop {
				return
			}
		case <-a.timer.C:
			if a.sc.ActivelyProcessing() {
				// Long tool use suppresses the timeout.
				a.timer.Reset(a.inactivity)
				continue
			}
			if stop := a.handle(ctx, Envelope{Event: InactivityTimeout{}}); stop {
				return
			}
			a.timer.Reset(a.inactivity)
		case <-ctx.Done():
			return
		}
	}
}

// handle resolves one envelope: validate, execute, apply.
func (a *Actor) handle(ctx context.Context, env Envelope) (stop bool) {
	proc, err := processorFor(env.Event)
	if err != nil {
		a.log.Error().Err(err).Str("event", env.Event.Name()).Msg("unroutable event")
		reply(env, err)
		return false
	}

	if err := proc.Validate(env.Event, a.sc.State); err != nil {
		reply(env, err)
		return false
	}

	result, err := proc.Execute(env.Event, a.sc)
	if err != nil {
		a.log.Warn().Err(err).Str("event", env.Event.Name()).Msg("event rejected")
		reply(env, err)
		return false
	}

	from := a.sc.State
	if result.NewState != nil {
		a.sc.State = *result.NewState
		a.log.Info().
			Str("event", env.Event.Name()).
			Str("from", string(from)).
			Str("to", string(a.sc.State)).
			Msg("state transition")
	}

	extra, redispatch, stop := a.applyActions(ctx, result.Actions)
	for _, ev := range result.Emit {
		a.deps.Bus.Publish(a.key, ev)
	}
	for _, ev := range extra {
		a.deps.Bus.Publish(a.key, ev)
	}

	reply(env, nil)

	if redispatch != nil && !stop {
		return a.handle(ctx, Envelope{Event: redispatch})
	}
	return stop
}

// applyActions executes side effects in order. Some actions produce
// additional stream events (the flushed partial on interrupt).
func (a *Actor) applyActions(ctx context.Context, actions []Action) (extra []types.StreamEvent, redispatch Event, stop bool) {
	for _, act := range actions {
		switch act := act.(type) {
		case PersistStatus:
			a.persistStatus(ctx, act.Status)

		case PersistMode:
			a.persistMode(ctx, act.Mode, act.PlanPath)

		case ResetTimer:
			a.resetTimer()

		case StartInteraction:
			ictx, cancel := context.WithCancel(ctx)
			interaction := a.sc.BeginInteraction(cancel)
			go a.runInteraction(ictx, interaction, act.UserID)

		case Interrupt:
			a.sc.Interrupt()
			a.flushReasoning(ctx)
			partial := joinChunks(a.sc.Partial.Drain())
			extra = append(extra, types.StreamEvent{
				Type: types.StreamStopped,
				Data: types.StoppedData{Reason: act.Reason, PartialResponse: partial},
			})

		case Teardown:
			stop = true

		case Redispatch:
			redispatch = act.Event
		}
	}
	return extra, redispatch, stop
}

func (a *Actor) resetTimer() {
	if a.timer == nil {
		return
	}
	if !a.timer.Stop() {
		select {
		case <-a.timer.C:
		default:
		}
	}
	a.timer.Reset(a.inactivity)
}

func (a *Actor) persistStatus(ctx context.Context, status types.SessionStatus) {
	var session types.Session
	if err := a.deps.Records.Get(ctx, []string{"session", a.key}, &session); err != nil {
		a.log.Error().Err(err).Msg("persist status: session load failed")
		return
	}

	now := time.Now().UnixMilli()
	session.Status = status
	session.Time.Updated = now
	if status.Terminal() {
		session.Time.Ended = &now
	}

	if err := a.deps.Records.Put(ctx, []string{"session", a.key}, &session); err != nil {
		a.log.Error().Err(err).Str("status", string(status)).Msg("persist status failed")
	}
}

func (a *Actor) persistMode(ctx context.Context, mode types.Mode, planPath string) {
	var session types.Session
	if err := a.deps.Records.Get(ctx, []string{"session", a.key}, &session); err != nil {
		a.log.Error().Err(err).Msg("persist mode: session load failed")
		return
	}

	session.Mode = mode
	session.PlanPath = planPath
	session.Time.Updated = time.Now().UnixMilli()

	if err := a.deps.Records.Put(ctx, []string{"session", a.key}, &session); err != nil {
		a.log.Error().Err(err).Str("mode", string(mode)).Msg("persist mode failed")
	}
}

// teardown removes the registry entry and marks the handle dead. The
// bus topic deliberately survives so subscribers can reattach.
func (a *Actor) teardown() {
	a.sc.Interrupt()
	a.registry.Remove(a.key)
	close(a.done)
	a.log.Debug().Str("state", string(a.sc.State)).Msg("actor stopped")
}

func joinChunks(chunks []string) string {
	return strings.Join(chunks, "")
}
