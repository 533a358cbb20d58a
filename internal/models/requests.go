package models

import "encoding/json"

// Envelope is a single client frame on the socket.
type Envelope struct {
	Event string          `json:"event" validate:"required,max=64"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// InboundPayload carries a free-text reply. The otp step may also send email and otp.
type InboundPayload struct {
	Response string `json:"response"`
	Email    string `json:"email,omitempty"`
	OTP      string `json:"otp,omitempty"`
}
