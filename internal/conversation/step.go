package conversation

import (
	"context"
	"strings"

	"github.com/Goofygiraffe06/blaze/internal/agent"
	"github.com/Goofygiraffe06/blaze/internal/models"
)

// Reply is an accepted answer handed to a step's OnSuccess.
type Reply struct {
	Raw     string
	Value   any
	Payload models.InboundPayload
}

// String returns the extracted value as a string.
func (r Reply) String() string {
	s, _ := r.Value.(string)
	return s
}

// Step is one question/answer unit of a flow.
type Step struct {
	Name string
	// Field is the collected key the extracted value is stored under.
	Field string
	Kind  agent.Kind
	// Secret values are handed to OnSuccess but never stored by the engine.
	Secret bool

	// Prompt is the instruction for this step's question, given what has
	// been collected so far.
	Prompt func(collected map[string]any) string
	// Missing and Invalid are instructions for error messages when the reply
	// is empty, or fails intent checking or extraction.
	Missing string
	Invalid string

	// Input picks the raw reply out of the payload. Defaults to Response.
	Input func(models.InboundPayload) string
	// Precheck applies local policy to the raw reply before the adapter is consulted.
	Precheck func(raw string) (instruction string, ok bool)
	// Normalize applies local policy to the extracted value.
	Normalize func(v any) (out any, instruction string, ok bool)

	// OnSuccess may only read fields collected by earlier steps.
	OnSuccess func(ctx context.Context, s *Session, r Reply) NextAction
}

func (st *Step) input(p models.InboundPayload) string {
	if st.Input != nil {
		return strings.TrimSpace(st.Input(p))
	}
	return strings.TrimSpace(p.Response)
}

type actionKind int

const (
	actionAskNext actionKind = iota
	actionComplete
	actionRetry
	actionFail
)

// NextAction tells the engine where a step goes after an accepted reply.
type NextAction struct {
	kind        actionKind
	step        string
	instruction string
	fallback    string
	data        any
	token       string
}

// AskNext asks the question of step next.
func AskNext(next string) NextAction {
	return NextAction{kind: actionAskNext, step: next}
}

// Complete emits a success event phrased from instruction. When then is set
// the flow continues at that step; otherwise the flow ends.
func Complete(instruction, fallback string, data any, token, then string) NextAction {
	return NextAction{kind: actionComplete, step: then, instruction: instruction, fallback: fallback, data: data, token: token}
}

// Retry rejects the reply on policy grounds and re-arms step.
func Retry(step, instruction string) NextAction {
	return NextAction{kind: actionRetry, step: step, instruction: instruction}
}

// Fail ends the flow with an error event and no retry.
func Fail(instruction string) NextAction {
	return NextAction{kind: actionFail, instruction: instruction}
}

// FlowDef is the ordered step table of a flow.
type FlowDef struct {
	Flow       Flow
	StartEvent string
	Intro      string
	steps      map[string]*Step
	order      []string
}

func newFlowDef(flow Flow, startEvent, intro string, steps ...*Step) *FlowDef {
	def := &FlowDef{
		Flow:       flow,
		StartEvent: startEvent,
		Intro:      intro,
		steps:      make(map[string]*Step, len(steps)),
	}
	for _, st := range steps {
		def.steps[st.Name] = st
		def.order = append(def.order, st.Name)
	}
	return def
}

// First is the step answering the introduction.
func (d *FlowDef) First() string {
	if len(d.order) == 0 {
		return ""
	}
	return d.order[0]
}

// Step looks up a step by name.
func (d *FlowDef) Step(name string) (*Step, bool) {
	st, ok := d.steps[name]
	return st, ok
}

// Steps lists step names in flow order.
func (d *FlowDef) Steps() []string {
	return append([]string(nil), d.order...)
}
