// Package session implements the agent turn loop: it drives the model,
// routes tool calls through the guard pipeline, and emits the typed event
// stream a client renders.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/appforge-ai/appforge/internal/event"
	"github.com/appforge-ai/appforge/internal/guard"
	"github.com/appforge-ai/appforge/internal/metrics"
	"github.com/appforge-ai/appforge/internal/provider"
	"github.com/appforge-ai/appforge/internal/stream"
	"github.com/appforge-ai/appforge/internal/tool"
)

const (
	// MaxRetries is the maximum number of retries for model API errors.
	MaxRetries = 3
	// RetryInitialInterval is the initial interval for exponential backoff.
	RetryInitialInterval = time.Second
	// RetryMaxInterval is the maximum interval for exponential backoff.
	RetryMaxInterval = 30 * time.Second
	// RetryMaxElapsedTime is the maximum total time for retries.
	RetryMaxElapsedTime = 2 * time.Minute

	// DefaultModelTimeout bounds one streaming model call.
	DefaultModelTimeout = 5 * time.Minute
	// DefaultToolTimeout bounds one tool execution.
	DefaultToolTimeout = time.Minute

	// terminalSendTimeout bounds delivery of the final event when the run
	// context is already dead.
	terminalSendTimeout = 2 * time.Second
)

// newRetryBackoff creates an exponential backoff with jitter for model API
// retries. Context cancellation stops the retry sequence early.
func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx)
}

// OrchestratorConfig tunes one orchestrator instance.
type OrchestratorConfig struct {
	// MaxTurns bounds the number of model calls per session.
	MaxTurns int
	// ChunkSize and ChunkDelay shape the delta stream.
	ChunkSize  int
	ChunkDelay time.Duration

	ModelTimeout time.Duration
	ToolTimeout  time.Duration
}

func (c *OrchestratorConfig) withDefaults() {
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = DefaultModelTimeout
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = DefaultToolTimeout
	}
}

// Orchestrator runs agent sessions. One instance is shared by all sessions;
// per-session state lives in AgentSession and the stream channel.
type Orchestrator struct {
	cfg       OrchestratorConfig
	prov      provider.Provider
	tools     *tool.Registry
	paths     guard.PathAuthorizer
	redactor  guard.Redactor
	urls      guard.URLChecker
	quota     guard.QuotaChecker
	collector *metrics.Collector
	bus       *event.Bus
	log       zerolog.Logger
}

// NewOrchestrator wires an orchestrator. All collaborators are required.
func NewOrchestrator(
	cfg OrchestratorConfig,
	prov provider.Provider,
	tools *tool.Registry,
	paths guard.PathAuthorizer,
	redactor guard.Redactor,
	urls guard.URLChecker,
	quota guard.QuotaChecker,
	collector *metrics.Collector,
	bus *event.Bus,
	log zerolog.Logger,
) *Orchestrator {
	cfg.withDefaults()
	return &Orchestrator{
		cfg:       cfg,
		prov:      prov,
		tools:     tools,
		paths:     paths,
		redactor:  redactor,
		urls:      urls,
		quota:     quota,
		collector: collector,
		bus:       bus,
		log:       log,
	}
}

// Run executes the turn loop for one prompt and closes the channel when the
// session reaches a terminal state. Exactly one terminal event, stream_end
// or error, is emitted on every path, including panic and cancellation.
func (o *Orchestrator) Run(ctx context.Context, sess *AgentSession, prompt string, ch *stream.Channel) {
	messageID := ulid.Make().String()
	sess.setState(StateRunning)
	o.bus.Publish(event.Event{Type: event.SessionStarted, Data: event.SessionStartedData{SessionID: sess.ID}})

	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Str("session", sess.ID).Interface("panic", r).Msg("turn loop panicked")
			sess.setState(StateFailed)
			o.sendTerminal(ch, stream.Error{SessionID: sess.ID, Message: "internal error"})
		}
		ch.Close()
		o.bus.Publish(event.Event{Type: event.SessionEnded, Data: event.SessionEndedData{
			SessionID: sess.ID,
			State:     string(sess.State()),
		}})
	}()

	_ = ch.Send(ctx, stream.StreamStart{SessionID: sess.ID, MessageID: messageID})

	err := o.runLoop(ctx, sess, prompt, messageID, ch)
	switch {
	case err == nil:
		sess.setState(StateCompleted)
	case errors.Is(err, ErrTurnLimitExceeded):
		o.log.Warn().Str("session", sess.ID).Int("turns", sess.Turns()).Msg("turn limit exceeded")
		sess.setState(StateTurnLimitExceeded)
		o.sendTerminal(ch, stream.Error{SessionID: sess.ID, Message: ErrTurnLimitExceeded.Error()})
	case errors.Is(err, context.Canceled):
		sess.setState(StateCancelled)
		o.sendTerminal(ch, stream.Error{SessionID: sess.ID, Message: "session cancelled"})
	default:
		o.log.Error().Err(err).Str("session", sess.ID).Msg("turn loop failed")
		sess.setState(StateFailed)
		o.sendTerminal(ch, stream.Error{SessionID: sess.ID, Message: publicMessage(err)})
	}
}

// runLoop drives model turns until the model stops calling tools, a limit
// trips, or the context dies. A nil return means normal completion and the
// stream_end event has been sent.
func (o *Orchestrator) runLoop(ctx context.Context, sess *AgentSession, prompt, messageID string, ch *stream.Channel) error {
	transcript := []*schema.Message{schema.UserMessage(prompt)}
	toolInfos := o.tools.ToolInfos()
	chk := newChunker(ch, sess.ID, o.cfg.ChunkSize, o.cfg.ChunkDelay)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		turn, ok := sess.startTurn(o.cfg.MaxTurns)
		if !ok {
			return ErrTurnLimitExceeded
		}
		o.log.Debug().Str("session", sess.ID).Int("turn", turn).Msg("starting turn")

		if sess.setPhase(stream.PhaseThinking) {
			if err := ch.Send(ctx, stream.PhaseChange{SessionID: sess.ID, Name: stream.PhaseThinking}); err != nil {
				return &TransportError{Err: err}
			}
		}

		reply, err := o.callModelWithRetry(ctx, sess, transcript, toolInfos, chk)
		if err != nil {
			return err
		}

		if len(reply.toolCalls) == 0 {
			if sess.setPhase(stream.PhaseCompleted) {
				_ = ch.Send(ctx, stream.PhaseChange{SessionID: sess.ID, Name: stream.PhaseCompleted})
			}
			o.sendTerminal(ch, stream.StreamEnd{SessionID: sess.ID, Usage: reply.usage})
			return nil
		}

		// Only the first requested tool runs; the rest of the batch is
		// discarded and the model re-plans from the tool result.
		call := reply.toolCalls[0]
		transcript = append(transcript,
			schema.AssistantMessage(reply.text, []schema.ToolCall{call}))

		output, err := o.invokeTool(ctx, sess, messageID, ch, call)
		if err != nil {
			return err
		}
		transcript = append(transcript, schema.ToolMessage(output, call.ID))
	}
}

// modelReply is the accumulated result of one streaming model call.
type modelReply struct {
	text      string
	toolCalls []schema.ToolCall
	usage     *stream.Usage
}

func (o *Orchestrator) callModelWithRetry(
	ctx context.Context,
	sess *AgentSession,
	transcript []*schema.Message,
	toolInfos []*schema.ToolInfo,
	chk *chunker,
) (*modelReply, error) {
	var reply *modelReply
	op := func() error {
		r, err := o.callModel(ctx, transcript, toolInfos)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			o.log.Warn().Err(err).Str("session", sess.ID).Msg("model call failed, retrying")
			return err
		}
		reply = r
		return nil
	}
	if err := backoff.Retry(op, newRetryBackoff(ctx)); err != nil {
		return nil, err
	}

	// Text goes out only once the call has succeeded, so a retried call
	// never replays partial deltas to the client.
	if reply.text != "" {
		if err := chk.write(ctx, reply.text); err != nil {
			return nil, &TransportError{Err: err}
		}
	}
	return reply, nil
}

// callModel performs one streaming completion, accumulating text, tool
// calls, and usage. The caller streams the text after the call succeeds.
func (o *Orchestrator) callModel(
	ctx context.Context,
	transcript []*schema.Message,
	toolInfos []*schema.ToolInfo,
) (*modelReply, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.ModelTimeout)
	defer cancel()

	cs, err := o.prov.CreateCompletion(callCtx, &provider.CompletionRequest{
		Messages: transcript,
		Tools:    toolInfos,
	})
	if err != nil {
		return nil, err
	}
	defer cs.Close()

	reply := &modelReply{}
	for {
		chunk, err := cs.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		if chunk.Content != "" {
			reply.text += chunk.Content
		}
		reply.toolCalls = append(reply.toolCalls, chunk.ToolCalls...)
		if chunk.ResponseMeta != nil && chunk.ResponseMeta.Usage != nil {
			u := chunk.ResponseMeta.Usage
			reply.usage = &stream.Usage{
				InputTokens:  u.PromptTokens,
				OutputTokens: u.CompletionTokens,
			}
		}
	}
	return reply, nil
}

// invokeTool runs one guarded tool call and returns the redacted output fed
// back to the model. Guard rejections are normal control flow: they produce
// a tool-failure message for the model, never an error. The returned error
// is reserved for transport failure.
func (o *Orchestrator) invokeTool(
	ctx context.Context,
	sess *AgentSession,
	messageID string,
	ch *stream.Channel,
	call schema.ToolCall,
) (string, error) {
	name := call.Function.Name
	input := json.RawMessage(call.Function.Arguments)

	if err := ch.Send(ctx, stream.ToolBoundary{
		SessionID: sess.ID,
		Event:     "start",
		ToolUseID: call.ID,
		ToolName:  name,
	}); err != nil {
		return "", &TransportError{Err: err}
	}

	started := time.Now()
	outcome, output, files := o.executeGuarded(ctx, sess, messageID, call.ID, name, input)

	o.collector.Record(metrics.Invocation{
		SessionID:   sess.ID,
		Tool:        name,
		Outcome:     outcome,
		Latency:     time.Since(started),
		InputBytes:  len(input),
		OutputBytes: len(output),
		StartedAt:   started,
	})

	if err := ch.Send(ctx, stream.ToolBoundary{
		SessionID: sess.ID,
		Event:     "end",
		ToolUseID: call.ID,
		ToolName:  name,
		Outcome:   string(outcome),
	}); err != nil {
		return "", &TransportError{Err: err}
	}

	if len(files) > 0 {
		if err := ch.Send(ctx, stream.FilesUpdated{SessionID: sess.ID, Files: files}); err != nil {
			return "", &TransportError{Err: err}
		}
		o.bus.Publish(event.Event{Type: event.FileChanged, Data: event.FileChangedData{
			SessionID: sess.ID,
			Paths:     files,
		}})
	}

	if phase := phaseForTool(name); phase != "" && sess.setPhase(phase) {
		if err := ch.Send(ctx, stream.PhaseChange{SessionID: sess.ID, Name: phase}); err != nil {
			return "", &TransportError{Err: err}
		}
	}

	return output, nil
}

// executeGuarded applies the guard pipeline in order: quota, then path and
// URL policy, then execution. A rejection at any stage skips execution
// entirely.
func (o *Orchestrator) executeGuarded(
	ctx context.Context,
	sess *AgentSession,
	messageID, callID, name string,
	input json.RawMessage,
) (metrics.Outcome, string, []string) {
	if d := o.quota.CheckLimit(name); !d.Allowed {
		err := &QuotaExceededError{Tool: name, RetryAfter: d.RetryAfter}
		o.log.Warn().Str("session", sess.ID).Str("tool", name).Int("retryAfter", d.RetryAfter).Msg("tool rate limited")
		return metrics.OutcomeRateLimited, err.Error(), nil
	}

	t, ok := o.tools.Get(name)
	if !ok {
		return metrics.OutcomeError, fmt.Sprintf("unknown tool %q", name), nil
	}

	if pr, ok := t.(tool.PathResolver); ok {
		for _, p := range pr.ResolvePaths(input) {
			if !o.paths.IsPathAllowed(p) {
				err := &PolicyDeniedError{Tool: name, Target: p, Reason: "path not permitted by security policy"}
				o.log.Warn().Str("session", sess.ID).Str("tool", name).Str("path", p).Msg("path denied")
				return metrics.OutcomeDenied, err.Error(), nil
			}
		}
	}

	if ur, ok := t.(tool.URLResolver); ok {
		if raw := ur.ResolveURL(input); raw != "" {
			if res := o.urls.Validate(raw); !res.Valid {
				err := &PolicyDeniedError{Tool: name, Target: raw, Reason: res.Message}
				o.log.Warn().Str("session", sess.ID).Str("tool", name).Str("url", raw).Str("code", res.Code).Msg("url denied")
				return metrics.OutcomeDenied, err.Error(), nil
			}
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, o.cfg.ToolTimeout)
	defer cancel()

	result, err := t.Execute(execCtx, input, &tool.Context{
		SessionID: sess.ID,
		MessageID: messageID,
		CallID:    callID,
	})
	if err != nil {
		wrapped := &ToolExecutionError{Tool: name, Err: err}
		return metrics.OutcomeError, wrapped.Error(), nil
	}

	return metrics.OutcomeSuccess, o.redactor.RedactSecrets(result.Output), filesFromMetadata(result.Metadata)
}

// phaseForTool maps a tool to the coarse phase it advances the session
// into. Tools that don't change the phase return "".
func phaseForTool(name string) stream.Phase {
	switch name {
	case "write_file":
		return stream.PhaseCodeWriting
	default:
		return ""
	}
}

func filesFromMetadata(md map[string]any) []string {
	if md == nil {
		return nil
	}
	switch v := md["files"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, f := range v {
			if s, ok := f.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// sendTerminal delivers a terminal event on its own deadline so it still
// goes out after the run context is cancelled.
func (o *Orchestrator) sendTerminal(ch *stream.Channel, e stream.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), terminalSendTimeout)
	defer cancel()
	_ = ch.Send(ctx, e)
}

// publicMessage maps an internal failure to a message safe to stream to a
// client. Raw provider and IO errors never cross the boundary.
func publicMessage(err error) string {
	var te *TransportError
	if errors.As(err, &te) {
		return "client disconnected"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "model request timed out"
	}
	return "agent run failed"
}
