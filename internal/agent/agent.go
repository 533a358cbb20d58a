// Package agent wraps a text-completion service as the flow's field
// validator and extractor: it phrases questions, judges whether a reply
// answers a question, and pulls a typed value out of a reply.
package agent

import (
	"context"
	"errors"
)

// Kind is the type a reply is extracted into.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindJSON    Kind = "json"
)

// FallbackQuestion is returned by AskQuestion when the service fails.
const FallbackQuestion = "Could you please provide the information requested?"

// ErrEmptyCompletion is returned when the service answers with no choices.
var ErrEmptyCompletion = errors.New("completion returned no content")

// Adapter is the capability the conversation engine depends on.
//
// AskQuestion always returns usable text: on failure it returns
// FallbackQuestion together with the error. IsIntentSatisfied fails closed.
// Extract reports ok=false when the reply could not be normalised.
type Adapter interface {
	AskQuestion(ctx context.Context, instruction string) (string, error)
	IsIntentSatisfied(ctx context.Context, question, answer string) bool
	Extract(ctx context.Context, question, answer string, kind Kind) (any, bool)
}
