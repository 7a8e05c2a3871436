package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"

	"github.com/quillworks/quill/internal/apperr"
	"github.com/quillworks/quill/internal/prompt"
	"github.com/quillworks/quill/internal/provider"
	"github.com/quillworks/quill/internal/tool"
	"github.com/quillworks/quill/pkg/types"
)

const (
	// MaxSteps bounds the agentic tool loop.
	MaxSteps = 50

	// RetryInitialInterval is the base interval for exponential backoff.
	RetryInitialInterval = time.Second
	// RetryMaxInterval caps a single backoff wait.
	RetryMaxInterval = 30 * time.Second
	// RetryMaxElapsedTime caps the total retry budget.
	RetryMaxElapsedTime = 2 * time.Minute
	// DefaultMaxRetries bounds transient-error retries per call.
	DefaultMaxRetries = 3

	// DefaultTokenBudget bounds the assembled prompt context.
	DefaultTokenBudget = 120000
)

// newRetryBackoff builds the exponential backoff with jitter used for
// transient provider errors.
func newRetryBackoff(ctx context.Context, maxRetries int) backoff.BackOff {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)
}

// runInteraction drives one AI interaction and reports its completion
// back into the command queue. Runs on its own goroutine; the actor
// stays responsive to pause/cancel while this is in flight.
func (a *Actor) runInteraction(ctx context.Context, interaction uint64, userID string) {
	err := a.interact(ctx, userID)
	if ctx.Err() != nil {
		// Paused or cancelled; the interrupt path already flushed
		// partial output and transitioned the state machine.
		return
	}

	env := Envelope{Event: InteractionComplete{
		Interaction: interaction,
		Success:     err == nil,
		Err:         err,
	}}
	select {
	case a.commands <- env:
	case <-a.done:
	}
}

func (a *Actor) interact(ctx context.Context, userID string) error {
	var session types.Session
	if err := a.deps.Records.Get(ctx, []string{"session", a.key}, &session); err != nil {
		return apperr.Wrap(apperr.KindNotFound, "session not found", err)
	}

	messages, err := a.loadMessages(ctx)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return apperr.New(apperr.KindValidation, "no messages in session")
	}
	last := messages[len(messages)-1]
	if last.Role != "user" {
		return apperr.Newf(apperr.KindValidation, "expected user message, got %s", last.Role)
	}
	a.sc.SetTask(last.Content)

	ref := a.resolveModel(&session, last)
	prov, err := a.deps.Providers.Get(ref.ProviderID)
	if err != nil {
		return err
	}
	model, err := a.deps.Providers.GetModel(ref.ProviderID, ref.ModelID)
	if err != nil {
		return err
	}
	a.sc.SetModel(ref)

	systemContent := a.assembleContext(ctx, &session, messages, ref)

	einoMessages := []*schema.Message{
		{Role: schema.System, Content: systemContent},
		{Role: schema.User, Content: last.Content},
	}

	var tools []*schema.ToolInfo
	if model.SupportsTools {
		tools = a.toolInfos()
	}

	maxTokens := model.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	maxRetries := DefaultMaxRetries
	if a.deps.Config != nil && a.deps.Config.MaxRetries > 0 {
		maxRetries = a.deps.Config.MaxRetries
	}
	bo := newRetryBackoff(ctx, maxRetries)

	var response strings.Builder

	for step := 0; step < MaxSteps; step++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		req := &provider.CompletionRequest{
			Model:     model.ID,
			Messages:  einoMessages,
			Tools:     tools,
			MaxTokens: maxTokens,
		}

		text, calls, err := a.completeWithRetry(ctx, prov, req, bo)
		if err != nil {
			return err
		}
		response.WriteString(text)

		if len(calls) == 0 {
			a.finishInteraction(ctx, &session, ref, response.String())
			return nil
		}

		einoMessages = append(einoMessages, &schema.Message{
			Role:      schema.Assistant,
			Content:   text,
			ToolCalls: calls,
		})
		for _, call := range calls {
			result := a.executeToolCall(ctx, userID, call)
			einoMessages = append(einoMessages, &schema.Message{
				Role:       schema.Tool,
				ToolCallID: call.ID,
				Content:    result,
			})
		}
	}

	return apperr.Newf(apperr.KindInternal, "interaction exceeded %d steps", MaxSteps)
}

// resolveModel picks the model for this interaction: the message's
// explicit choice, then the session's, then the configured default.
func (a *Actor) resolveModel(session *types.Session, last *types.ChatMessage) types.ModelRef {
	if last.Model != nil && last.Model.ProviderID != "" && last.Model.ModelID != "" {
		return *last.Model
	}
	if session.Model != "" {
		ref := provider.ParseModelRef(session.Model)
		if ref.ProviderID != "" {
			return ref
		}
	}
	ref, err := a.deps.Providers.Default()
	if err != nil {
		a.log.Warn().Err(err).Msg("no default model")
	}
	return ref
}

// assembleContext builds the bounded system prompt from prioritized
// fragments. The current user request occupies the chat turn itself;
// its token estimate is reserved off the budget before optimization.
func (a *Actor) assembleContext(ctx context.Context, session *types.Session, messages []*types.ChatMessage, ref types.ModelRef) string {
	mgr := prompt.NewManager()
	mgr.AddFragment("persona", buildPersona(session, ref.ProviderID, ref.ModelID), prompt.PriorityPersona, true)
	mgr.AddFragment("environment", environmentInfo(session), prompt.PriorityEnvironment, false)

	mode, planPath := a.sc.ModeInfo()
	if mode == types.ModePlan && planPath != "" {
		if content, _, err := a.deps.Workspace.Read(ctx, session.WorkspaceID, planPath); err == nil {
			mgr.AddFragment("plan:"+planPath, "# Active Plan ("+planPath+")\n\n"+string(content), prompt.PriorityAttachment, false)
		}
	}

	if history := renderHistory(messages[:len(messages)-1]); history != "" {
		mgr.AddFragment("history", history, prompt.PriorityHistory, false)
	}

	budget := DefaultTokenBudget
	if a.deps.Config != nil && a.deps.Config.TokenBudget > 0 {
		budget = a.deps.Config.TokenBudget
	}
	reserve := prompt.EstimateTokens(messages[len(messages)-1].Content)
	mgr.OptimizeForLimit(budget - reserve)

	return mgr.Render()
}

// renderHistory formats prior turns as a transcript fragment.
func renderHistory(messages []*types.ChatMessage) string {
	if len(messages) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("# Conversation So Far\n")
	for _, msg := range messages {
		b.WriteString("\n")
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func (a *Actor) toolInfos() []*schema.ToolInfo {
	var infos []provider.ToolInfo
	for _, t := range a.deps.Tools.List() {
		infos = append(infos, provider.ToolInfo{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return provider.ConvertToEinoTools(infos)
}

// streamProgress counts the bytes of assistant text and reasoning
// already published for one completion call. It spans retry attempts:
// a retried stream replays content the failed attempt already
// delivered, and only the suffix past these marks may be emitted
// again.
type streamProgress struct {
	text      int
	reasoning int
}

// completeWithRetry makes one streaming completion call, retrying
// transient failures with backoff. Non-transient errors fail fast.
// Progress carries across attempts so a retry never re-emits chunks
// the failed attempt already streamed.
func (a *Actor) completeWithRetry(ctx context.Context, prov provider.Provider, req *provider.CompletionRequest, bo backoff.BackOff) (string, []schema.ToolCall, error) {
	var progress streamProgress
	for {
		stream, err := prov.CreateCompletion(ctx, req)
		if err == nil {
			var text string
			var calls []schema.ToolCall
			text, calls, err = a.consumeStream(ctx, stream, &progress)
			stream.Close()
			if err == nil {
				bo.Reset()
				return text, calls, nil
			}
		}

		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		if !provider.IsTransient(err) {
			return "", nil, err
		}

		next := bo.NextBackOff()
		if next == backoff.Stop {
			return "", nil, apperr.Wrap(apperr.KindTransient, "provider retries exhausted", err)
		}
		a.log.Warn().Err(err).Dur("backoff", next).Msg("transient provider error, retrying")
		select {
		case <-time.After(next):
		case <-ctx.Done():
			return "", nil, ctx.Err()
		}
	}
}

// consumeStream reads one completion stream to the end, forwarding
// text and reasoning deltas as stream events and merging tool-call
// argument deltas by call ID. Content up to the progress marks was
// already published by a previous attempt of the same call and is
// swallowed, so subscribers and the partial buffer see each byte once.
func (a *Actor) consumeStream(ctx context.Context, stream *provider.CompletionStream, progress *streamProgress) (string, []schema.ToolCall, error) {
	var text, reasoning strings.Builder
	var order []string
	calls := make(map[string]*schema.ToolCall)
	lastCallID := ""

	for {
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		default:
		}

		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, err
		}

		if msg.Content != "" {
			text.WriteString(msg.Content)
			if n := text.Len(); n > progress.text {
				delta := text.String()[progress.text:]
				progress.text = n
				a.sc.Partial.Append(delta)
				a.publish(types.StreamChunk, types.ChunkData{Text: delta})
			}
		}

		if msg.ReasoningContent != "" {
			reasoning.WriteString(msg.ReasoningContent)
			if n := reasoning.Len(); n > progress.reasoning {
				delta := reasoning.String()[progress.reasoning:]
				progress.reasoning = n
				a.sc.Reasoning.Append(delta)
				a.publish(types.StreamThought, types.ThoughtData{Text: delta})
			}
		}

		for _, tc := range msg.ToolCalls {
			id := tc.ID
			if id == "" {
				// Argument continuation frames omit the call ID.
				id = lastCallID
			}
			if id == "" {
				continue
			}
			call, ok := calls[id]
			if !ok {
				call = &schema.ToolCall{ID: id}
				calls[id] = call
				order = append(order, id)
			}
			if tc.Function.Name != "" {
				call.Function.Name = tc.Function.Name
			}
			call.Function.Arguments += tc.Function.Arguments
			lastCallID = id
		}
	}

	out := make([]schema.ToolCall, 0, len(order))
	for _, id := range order {
		out = append(out, *calls[id])
	}
	return text.String(), out, nil
}

// executeToolCall dispatches one tool call through the sandbox and
// returns the observation text fed back to the model. Tool failures
// never abort the interaction.
func (a *Actor) executeToolCall(ctx context.Context, userID string, call schema.ToolCall) string {
	name := call.Function.Name
	args := json.RawMessage(call.Function.Arguments)
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	a.sc.SetCurrentTool(name, args)

	var argMap map[string]any
	_ = json.Unmarshal(args, &argMap)
	path, _ := argMap["path"].(string)
	a.publish(types.StreamCall, types.CallData{Tool: name, Path: path, Args: argMap})

	resp := a.deps.Tools.Dispatch(ctx, name, a.sc.WorkspaceID, userID, a.sc.Invocation(), args)

	output := resp.Error
	if resp.Success {
		if data, err := json.Marshal(resp.Result); err == nil {
			output = string(data)
		}
	}

	toolName, _ := a.sc.CurrentTool()
	a.log.Debug().
		Str("tool", toolName).
		Bool("success", resp.Success).
		Msg("tool call finished")

	a.publish(types.StreamObservation, types.ObservationData{
		Tool:    name,
		Output:  output,
		Success: resp.Success,
	})
	a.emitToolEffects(resp)

	return output
}

// emitToolEffects surfaces tool side effects as dedicated stream
// events: file version changes and pending questions.
func (a *Actor) emitToolEffects(resp *tool.Response) {
	if !resp.Success {
		return
	}

	switch result := resp.Result.(type) {
	case tool.WriteResult:
		a.publish(types.StreamFileUpdated, types.FileUpdatedData{Path: result.Path, Version: result.Version})
	case tool.EditResult:
		a.publish(types.StreamFileUpdated, types.FileUpdatedData{Path: result.Path, Version: result.Version})
	case tool.AskResult:
		a.publish(types.StreamQuestionPending, types.QuestionPendingData{
			QuestionID: result.QuestionID,
			Questions:  result.Questions,
			CreatedAt:  result.CreatedAt,
		})
	case map[string]any:
		path, _ := result["path"].(string)
		version, _ := result["version"].(string)
		if path != "" && version != "" {
			a.publish(types.StreamFileUpdated, types.FileUpdatedData{Path: path, Version: version})
		}
	}
}

// finishInteraction persists the assistant turn and flushes state.
func (a *Actor) finishInteraction(ctx context.Context, session *types.Session, ref types.ModelRef, response string) {
	a.sc.Partial.Drain()
	a.flushReasoning(ctx)

	msg := &types.ChatMessage{
		ID:        ulid.Make().String(),
		SessionID: session.ID,
		Role:      "assistant",
		Content:   response,
		Model:     &ref,
		Time:      types.MessageTime{Created: time.Now().UnixMilli()},
	}
	if err := a.deps.Records.Put(ctx, []string{"message", session.ID, msg.ID}, msg); err != nil {
		a.log.Error().Err(err).Msg("persist assistant message failed")
	}

	a.publish(types.StreamDone, types.DoneData{Message: response})
}

// flushReasoning drains the reasoning buffer into its persistent
// record. Safe to call with an empty buffer.
func (a *Actor) flushReasoning(ctx context.Context) {
	chunks := a.sc.Reasoning.Drain()
	if len(chunks) == 0 {
		return
	}

	id := a.sc.ReasoningID()
	var record types.ReasoningRecord
	if err := a.deps.Records.Get(ctx, []string{"reasoning", a.key, id}, &record); err != nil {
		record = types.ReasoningRecord{ID: id, SessionID: a.key}
	}
	record.Chunks = append(record.Chunks, chunks...)
	record.Updated = time.Now().UnixMilli()

	if err := a.deps.Records.Put(ctx, []string{"reasoning", a.key, id}, &record); err != nil {
		a.log.Error().Err(err).Msg("reasoning flush failed")
	}
}

func (a *Actor) loadMessages(ctx context.Context) ([]*types.ChatMessage, error) {
	var messages []*types.ChatMessage
	err := a.deps.Records.Scan(ctx, []string{"message", a.key}, func(key string, data json.RawMessage) error {
		var msg types.ChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		messages = append(messages, &msg)
		return nil
	})
	return messages, err
}

func (a *Actor) publish(t types.StreamEventType, data any) {
	a.deps.Bus.Publish(a.key, types.StreamEvent{Type: t, Data: data})
}
