// Package conversation drives the registration and login flows: it asks
// each question, checks the reply with the agent adapter, stores what was
// extracted and decides which step listens next.
package conversation

import (
	"context"

	"github.com/Goofygiraffe06/blaze/internal/agent"
	"github.com/Goofygiraffe06/blaze/internal/logging"
	"github.com/Goofygiraffe06/blaze/internal/metrics"
	"github.com/Goofygiraffe06/blaze/internal/models"
)

// ApologyMessage is sent when an error message itself could not be generated.
const ApologyMessage = "Oops! Something went wrong. Please try again."

// Emitter writes one outbound frame to the client.
type Emitter interface {
	Emit(ctx context.Context, frame models.Outbound) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, frame models.Outbound) error

func (f EmitterFunc) Emit(ctx context.Context, frame models.Outbound) error { return f(ctx, frame) }

// Armer is implemented by emitters that listen for replies. Arm receives a
// frame's next step before the frame is emitted.
type Armer interface {
	Arm(step string)
}

// Policy holds the local checks applied on top of the adapter.
type Policy struct {
	PasswordMinLength int
	// MaxStepAttempts is how many rejected replies a step retries before
	// the flow ends. Zero means unbounded.
	MaxStepAttempts int
}

// Engine runs flows. It is stateless across sessions and safe for concurrent use.
type Engine struct {
	adapter agent.Adapter
	gateway Gateway
	policy  Policy
	metrics *metrics.Collectors
	flows   map[Flow]*FlowDef
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records step outcomes on m.
func WithMetrics(m *metrics.Collectors) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithPolicy overrides the default policy.
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// NewEngine builds the registration and login flows over adapter and gw.
func NewEngine(adapter agent.Adapter, gw Gateway, opts ...Option) *Engine {
	e := &Engine{
		adapter: adapter,
		gateway: gw,
		policy:  Policy{PasswordMinLength: 6},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.flows = map[Flow]*FlowDef{
		Registration: e.registrationFlow(),
		Login:        e.loginFlow(),
	}
	return e
}

// Flow returns a flow's step table.
func (e *Engine) Flow(f Flow) (*FlowDef, bool) {
	def, ok := e.flows[f]
	return def, ok
}

// StartEvents maps each flow's start event to the flow.
func (e *Engine) StartEvents() map[string]Flow {
	out := make(map[string]Flow, len(e.flows))
	for f, def := range e.flows {
		out[def.StartEvent] = f
	}
	return out
}

// Start emits the flow's introduction and returns the step it asked for.
func (e *Engine) Start(ctx context.Context, sess *Session, emit Emitter) string {
	def, ok := e.flows[sess.Flow()]
	if !ok {
		logging.ErrorLog("Engine: unknown flow %s", sess.Flow())
		return ""
	}
	first := def.First()
	text, err := e.adapter.AskQuestion(ctx, def.Intro)
	if err != nil {
		logging.WarnLog("Engine: %s intro fell back: %v", def.Flow, err)
	}
	sess.await(text, first)
	e.emit(ctx, emit, models.Ask(text, first), first)
	logging.InfoLog("Engine: %s started", def.Flow)
	return first
}

// Handle processes one reply for step and returns the step the emitted frame
// names, or "" when the flow has ended.
func (e *Engine) Handle(ctx context.Context, sess *Session, step string, in models.InboundPayload, emit Emitter) string {
	def, ok := e.flows[sess.Flow()]
	if !ok {
		logging.ErrorLog("Engine: unknown flow %s", sess.Flow())
		return ""
	}
	st, ok := def.Step(step)
	if !ok || sess.Done() {
		logging.WarnLog("Engine: %s has no live step %s", def.Flow, step)
		return ""
	}

	raw := st.input(in)
	if raw == "" {
		return e.reject(ctx, sess, st, st.Name, st.Missing, metrics.OutcomeEmpty, emit)
	}
	if st.Precheck != nil {
		if instruction, ok := st.Precheck(raw); !ok {
			return e.reject(ctx, sess, st, st.Name, instruction, metrics.OutcomePolicy, emit)
		}
	}

	question := sess.PendingQuestion()
	if !e.adapter.IsIntentSatisfied(ctx, question, raw) {
		return e.reject(ctx, sess, st, st.Name, st.Invalid, metrics.OutcomeRejected, emit)
	}
	value, ok := e.adapter.Extract(ctx, question, raw, st.Kind)
	if !ok {
		return e.reject(ctx, sess, st, st.Name, st.Invalid, metrics.OutcomeRejected, emit)
	}
	if st.Normalize != nil {
		var instruction string
		if value, instruction, ok = st.Normalize(value); !ok {
			return e.reject(ctx, sess, st, st.Name, instruction, metrics.OutcomePolicy, emit)
		}
	}

	if st.Field != "" && !st.Secret {
		sess.set(st.Field, value)
	}
	action := st.OnSuccess(ctx, sess, Reply{Raw: raw, Value: value, Payload: in})
	return e.apply(ctx, sess, def, st, action, emit)
}

func (e *Engine) apply(ctx context.Context, sess *Session, def *FlowDef, st *Step, a NextAction, emit Emitter) string {
	flow := string(def.Flow)
	switch a.kind {
	case actionAskNext:
		next, ok := def.Step(a.step)
		if !ok {
			logging.ErrorLog("Engine: %s step %s points at unknown step %s", flow, st.Name, a.step)
			return e.fail(ctx, sess, def, "", emit)
		}
		e.metrics.Step(flow, st.Name, metrics.OutcomeAccepted)
		text, err := e.adapter.AskQuestion(ctx, next.Prompt(sess.Collected()))
		if err != nil {
			logging.WarnLog("Engine: %s question for %s fell back: %v", flow, next.Name, err)
		}
		sess.await(text, next.Name)
		e.emit(ctx, emit, models.Ask(text, next.Name), next.Name)
		return next.Name

	case actionComplete:
		e.metrics.Step(flow, st.Name, metrics.OutcomeAccepted)
		text, err := e.adapter.AskQuestion(ctx, a.instruction)
		if err != nil {
			logging.WarnLog("Engine: %s success message fell back: %v", flow, err)
			text = a.fallback
		}
		if a.step != "" {
			sess.await(text, a.step)
			e.emit(ctx, emit, models.Success(text, a.data, a.token, a.step), a.step)
			return a.step
		}
		sess.finish()
		e.metrics.Terminal(flow, "success")
		e.emit(ctx, emit, models.Success(text, a.data, a.token, ""), "")
		logging.InfoLog("Engine: %s completed", flow)
		return ""

	case actionRetry:
		if st.Field != "" && !st.Secret {
			sess.unset(st.Field)
		}
		return e.reject(ctx, sess, st, a.step, a.instruction, metrics.OutcomePolicy, emit)

	default:
		if st.Field != "" && !st.Secret {
			sess.unset(st.Field)
		}
		e.metrics.Step(flow, st.Name, metrics.OutcomeFailed)
		return e.fail(ctx, sess, def, a.instruction, emit)
	}
}

// reject answers a refused reply with an error naming retryStep, unless st
// has used up its attempts.
func (e *Engine) reject(ctx context.Context, sess *Session, st *Step, retryStep, instruction, outcome string, emit Emitter) string {
	def := e.flows[sess.Flow()]
	e.metrics.Step(string(def.Flow), st.Name, outcome)

	if n := sess.fail(st.Name); e.policy.MaxStepAttempts > 0 && n > e.policy.MaxStepAttempts {
		logging.WarnLog("Engine: %s step %s hit %d failed replies", def.Flow, st.Name, n)
		return e.fail(ctx, sess, def, "Generate a short message telling the user they have made too many attempts and should start over later.", emit)
	}

	text := e.errorText(ctx, instruction)
	if retryStep != st.Name {
		sess.await(text, retryStep)
	}
	e.emit(ctx, emit, models.Fail(text, retryStep), retryStep)
	return retryStep
}

// fail ends the flow with an error naming no step.
func (e *Engine) fail(ctx context.Context, sess *Session, def *FlowDef, instruction string, emit Emitter) string {
	text := ApologyMessage
	if instruction != "" {
		text = e.errorText(ctx, instruction)
	}
	sess.finish()
	e.metrics.Terminal(string(def.Flow), "error")
	e.emit(ctx, emit, models.Fail(text, ""), "")
	logging.InfoLog("Engine: %s ended with error", def.Flow)
	return ""
}

func (e *Engine) errorText(ctx context.Context, instruction string) string {
	text, err := e.adapter.AskQuestion(ctx, instruction)
	if err != nil {
		logging.WarnLog("Engine: error message fell back: %v", err)
		return ApologyMessage
	}
	return text
}

func (e *Engine) emit(ctx context.Context, emit Emitter, frame models.Outbound, next string) {
	if a, ok := emit.(Armer); ok && next != "" {
		a.Arm(next)
	}
	if err := emit.Emit(ctx, frame); err != nil {
		logging.DebugLog("Engine: emit %s dropped: %v", frame.Event, err)
	}
}
