package openairealtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrChannelNotOpen is returned by Send when the event channel is not
	// open yet or has already closed. Callers treat it as a dropped event.
	ErrChannelNotOpen = errors.New("openai-realtime: event channel not open")

	// ErrClosed is returned by Connect on a transport that was closed.
	ErrClosed = errors.New("openai-realtime: transport closed")
)

// Error is an API error reported by the provider or by our backend relay.
type Error struct {
	Type    string `json:"type,omitzero"`
	Code    string `json:"code,omitzero"`
	Message string `json:"message,omitzero"`
	Param   string `json:"param,omitzero"`
	EventID string `json:"event_id,omitzero"`

	// HTTPStatus is set when the error came from an HTTP response.
	HTTPStatus int `json:"-"`
}

func (e *Error) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("openai-realtime: %s: %s", e.Code, e.Message)
	case e.Type != "":
		return fmt.Sprintf("openai-realtime: %s: %s", e.Type, e.Message)
	case e.HTTPStatus != 0:
		return fmt.Sprintf("openai-realtime: http %d: %s", e.HTTPStatus, e.Message)
	}
	return "openai-realtime: " + e.Message
}

// decodeEventError reads the "error" member of a server event. The provider
// sends an object, some relays send a bare string.
func decodeEventError(raw json.RawMessage) *Error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var e Error
	if err := json.Unmarshal(raw, &e); err == nil {
		return &e
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &Error{Message: s}
	}
	return &Error{Message: string(raw)}
}

// Step names one phase of the connect sequence.
type Step string

const (
	StepCredential  Step = "credential"
	StepMedia       Step = "media"
	StepOffer       Step = "offer"
	StepSDPExchange Step = "sdp_exchange"
	StepAnswer      Step = "answer"
)

// ConnectionError reports which connect step failed. It is the only error
// surfaced to the user when a session cannot start.
type ConnectionError struct {
	Step Step
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect failed at %s: %v", e.Step, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func stepError(step Step, err error) error {
	if err == nil {
		return nil
	}
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return err
	}
	return &ConnectionError{Step: step, Err: err}
}
