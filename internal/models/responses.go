package models

type StatusResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Outbound event names.
const (
	EventAsk     = "ask"
	EventError   = "error"
	EventSuccess = "success"
)

// Outbound is a single server frame on the socket.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// AskPayload asks the user for the field named by NextEvent.
type AskPayload struct {
	Content   string `json:"content"`
	Status    bool   `json:"status"`
	NextEvent string `json:"nextevent"`
}

// ErrorPayload reports a rejected reply. NextEvent names the step to retry, empty when none.
type ErrorPayload struct {
	Content   string `json:"content"`
	Status    bool   `json:"status"`
	NextEvent string `json:"nextevent"`
}

// SuccessPayload reports a completed step with its artifact.
type SuccessPayload struct {
	Content   string `json:"content"`
	Status    bool   `json:"status"`
	Data      any    `json:"data"`
	Token     string `json:"token,omitempty"`
	NextEvent string `json:"nextevent"`
}

// Ask builds an ask frame.
func Ask(content, next string) Outbound {
	return Outbound{Event: EventAsk, Data: AskPayload{Content: content, Status: true, NextEvent: next}}
}

// Fail builds an error frame.
func Fail(content, next string) Outbound {
	return Outbound{Event: EventError, Data: ErrorPayload{Content: content, Status: false, NextEvent: next}}
}

// Success builds a success frame.
func Success(content string, data any, token, next string) Outbound {
	return Outbound{Event: EventSuccess, Data: SuccessPayload{Content: content, Status: true, Data: data, Token: token, NextEvent: next}}
}
