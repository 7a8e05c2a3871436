// Package runtime implements the session runtime: the registry of
// live workers, the per-session actor with its state machine, and the
// AI interaction pipeline.
package runtime

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/quillworks/quill/internal/apperr"
	"github.com/quillworks/quill/internal/logging"
	"github.com/quillworks/quill/internal/provider"
	"github.com/quillworks/quill/internal/storage"
	"github.com/quillworks/quill/pkg/types"
)

const defaultTitle = "New Session"

// Service is the façade request handlers use to drive sessions. It
// owns the registry and spawns a worker for any session that receives
// a command while none is live.
type Service struct {
	registry *Registry
	deps     *Deps

	// ctx scopes actor lifetimes to the application, not to any one
	// HTTP request.
	ctx    context.Context
	cancel context.CancelFunc

	log zerolog.Logger
}

// NewService creates the session runtime service.
func NewService(deps *Deps) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		registry: NewRegistry(deps.Bus),
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
		log:      logging.For("runtime"),
	}
}

// Registry exposes the session registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// InteractRequest starts an interaction on a session, creating the
// session on first use.
type InteractRequest struct {
	SessionID   string
	WorkspaceID string
	UserID      string
	Content     string
	Model       *types.ModelRef
}

// Interact persists the user's message and dispatches a
// ProcessInteraction command to the session's worker.
func (s *Service) Interact(ctx context.Context, req InteractRequest) (*types.Session, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, apperr.New(apperr.KindValidation, "content must not be empty")
	}

	session, created, err := s.loadOrCreate(ctx, req)
	if err != nil {
		return nil, err
	}

	msg := &types.ChatMessage{
		ID:        ulid.Make().String(),
		SessionID: session.ID,
		Role:      "user",
		Content:   req.Content,
		Model:     req.Model,
		Time:      types.MessageTime{Created: time.Now().UnixMilli()},
	}
	if err := s.deps.Records.Put(ctx, []string{"message", session.ID, msg.ID}, msg); err != nil {
		return nil, err
	}

	if created {
		go s.deriveTitle(session.ID, req.Content)
	}

	if err := s.send(ctx, session, ProcessInteraction{UserID: req.UserID}); err != nil {
		return nil, err
	}
	// Reload: the accepted command has already persisted its transition.
	return s.Get(ctx, session.ID)
}

// Pause interrupts a session's in-flight interaction.
func (s *Service) Pause(ctx context.Context, sessionID, reason string) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	return s.send(ctx, session, Pause{Reason: reason})
}

// Cancel terminates a session. Idempotent.
func (s *Service) Cancel(ctx context.Context, sessionID, reason string) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status.Terminal() {
		return nil
	}
	return s.send(ctx, session, Cancel{Reason: reason})
}

// Ping resets a session's inactivity timer.
func (s *Service) Ping(ctx context.Context, sessionID string) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	return s.send(ctx, session, Ping{})
}

// SetMode switches a session between build and plan mode.
func (s *Service) SetMode(ctx context.Context, sessionID, mode, planPath string) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	return s.send(ctx, session, SetMode{Mode: mode, PlanPath: planPath})
}

// ShutdownSession tears down a session's worker without changing its
// state. No-op when no worker is live.
func (s *Service) ShutdownSession(ctx context.Context, sessionID string) error {
	h := s.registry.GetHandle(sessionID)
	if h == nil {
		return nil
	}
	env := Envelope{Event: Shutdown{}, Reply: make(chan error, 1)}
	if err := h.Send(ctx, env); err != nil {
		return nil
	}
	select {
	case err := <-env.Reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get loads a session record.
func (s *Service) Get(ctx context.Context, sessionID string) (*types.Session, error) {
	var session types.Session
	if err := s.deps.Records.Get(ctx, []string{"session", sessionID}, &session); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.Newf(apperr.KindNotFound, "session not found: %s", sessionID)
		}
		return nil, err
	}
	return &session, nil
}

// Subscribe attaches to a session's event stream.
func (s *Service) Subscribe(ctx context.Context, sessionID string) (<-chan types.StreamEvent, func(), error) {
	return s.registry.GetOrCreateBus(sessionID).Subscribe(ctx, sessionID)
}

// Shutdown broadcasts Shutdown to all live workers and stops spawning.
func (s *Service) Shutdown(ctx context.Context) {
	for _, key := range s.registry.Keys() {
		if err := s.ShutdownSession(ctx, key); err != nil {
			s.log.Warn().Err(err).Str("session", key).Msg("session shutdown failed")
		}
	}
	s.cancel()
}

// send delivers a command to the session's worker, spawning one if
// none is live, and waits for the actor's acceptance or rejection.
// Terminal sessions never get a worker: an actor spawned for one
// would have nothing to tear it down again.
func (s *Service) send(ctx context.Context, session *types.Session, ev Event) error {
	if session.Status.Terminal() {
		switch ev.(type) {
		case Ping, Cancel:
			// Acknowledged without a worker, same as a live actor
			// no-ops these in a terminal state.
			return nil
		default:
			return apperr.Newf(apperr.KindConflict, "session is %s: %s rejected", session.Status, ev.Name())
		}
	}

	env := Envelope{Event: ev, Reply: make(chan error, 1)}

	for attempt := 0; attempt < 3; attempt++ {
		h := s.registry.GetOrRegister(session.ID, func() *Handle {
			return s.startActor(session)
		})
		if err := h.Send(ctx, env); err != nil {
			if apperr.Is(err, apperr.KindConflict) {
				// Worker died between lookup and send; respawn.
				continue
			}
			return err
		}

		select {
		case err := <-env.Reply:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return apperr.New(apperr.KindConflict, "session worker unavailable")
}

// startActor spawns a worker for the session, loading its state from
// the persisted record.
func (s *Service) startActor(session *types.Session) *Handle {
	sc := NewSessionContext(session)
	actor := newActor(session.ID, sc, s.registry, s.deps)
	s.deps.Bus.EnsureTopic(session.ID)
	go actor.Run(s.ctx)
	return actor.Handle()
}

func (s *Service) loadOrCreate(ctx context.Context, req InteractRequest) (*types.Session, bool, error) {
	var session types.Session
	err := s.deps.Records.Get(ctx, []string{"session", req.SessionID}, &session)
	if err == nil {
		return &session, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, err
	}

	if req.WorkspaceID == "" {
		return nil, false, apperr.New(apperr.KindValidation, "workspaceID required to create a session")
	}

	now := time.Now().UnixMilli()
	session = types.Session{
		ID:          req.SessionID,
		WorkspaceID: req.WorkspaceID,
		UserID:      req.UserID,
		Title:       defaultTitle,
		Status:      types.StatusIdle,
		Mode:        types.ModeBuild,
		Task:        req.Content,
		Time:        types.SessionTime{Created: now, Updated: now},
	}
	if req.Model != nil {
		session.Model = req.Model.ProviderID + "/" + req.Model.ModelID
	}
	if err := s.deps.Records.Put(ctx, []string{"session", session.ID}, &session); err != nil {
		return nil, false, err
	}
	return &session, true, nil
}

const titleSystemPrompt = `You are a title generator. You output ONLY a thread title. Nothing else.

Generate a brief title that would help the user find this conversation later.

Rules:
- A single line, no more than 50 characters
- No explanations
- Use -ing verbs for actions (Debugging, Implementing, Analyzing)
- Keep exact: technical terms, numbers, filenames
- Remove: the, this, my, a, an
- Always output something meaningful`

// deriveTitle asks the default model for a short session title based
// on the first user request. Best effort.
func (s *Service) deriveTitle(sessionID, content string) {
	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	session, err := s.Get(ctx, sessionID)
	if err != nil || session.Title != defaultTitle {
		return
	}

	ref, err := s.deps.Providers.Default()
	if err != nil {
		return
	}
	prov, err := s.deps.Providers.Get(ref.ProviderID)
	if err != nil {
		return
	}

	stream, err := prov.CreateCompletion(ctx, &provider.CompletionRequest{
		Model: ref.ModelID,
		Messages: []*schema.Message{
			{Role: schema.System, Content: titleSystemPrompt},
			{Role: schema.User, Content: "Generate a title for this conversation:\n\n" + content},
		},
		MaxTokens: 50,
	})
	if err != nil {
		return
	}
	defer stream.Close()

	var title strings.Builder
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return
		}
		title.WriteString(msg.Content)
	}

	text := firstLine(title.String())
	if text == "" {
		return
	}
	if len(text) > 100 {
		text = text[:97] + "..."
	}

	session, err = s.Get(ctx, sessionID)
	if err != nil || session.Title != defaultTitle {
		return
	}
	session.Title = text
	session.Time.Updated = time.Now().UnixMilli()
	if err := s.deps.Records.Put(ctx, []string{"session", sessionID}, session); err != nil {
		s.log.Warn().Err(err).Str("session", sessionID).Msg("title update failed")
	}
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}
