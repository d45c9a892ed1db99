package openairealtime

import (
	"context"
	"sync"
)

// ConnState is the transport connection state reported to OnStateChange.
type ConnState int

const (
	StateNew ConnState = iota
	StateConnecting
	// StateOpen means the event channel is open and Send works.
	StateOpen
	StateDisconnected
	StateFailed
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Terminal reports whether the state ends the session.
func (s ConnState) Terminal() bool {
	return s == StateDisconnected || s == StateFailed || s == StateClosed
}

// Transport carries realtime events between the client and the provider.
//
// A Transport is single use: after Close (or a failed Connect, which closes
// it) a new one must be created. Handlers must be registered before Connect.
// They are invoked on transport goroutines.
type Transport interface {
	Connect(ctx context.Context, cred Credential) error
	Send(event any) error
	OnMessage(fn func(data []byte))
	OnStateChange(fn func(ConnState))
	Close() error
}

// Signaler exchanges an SDP offer for the provider's answer.
type Signaler interface {
	ExchangeSDP(ctx context.Context, cred Credential, offer string) (answer string, err error)
}

// handlers is the callback registry shared by both transports.
type handlers struct {
	mu      sync.RWMutex
	message func([]byte)
	state   func(ConnState)
}

func (h *handlers) OnMessage(fn func(data []byte)) {
	h.mu.Lock()
	h.message = fn
	h.mu.Unlock()
}

func (h *handlers) OnStateChange(fn func(ConnState)) {
	h.mu.Lock()
	h.state = fn
	h.mu.Unlock()
}

func (h *handlers) emitMessage(data []byte) {
	h.mu.RLock()
	fn := h.message
	h.mu.RUnlock()
	if fn != nil {
		fn(data)
	}
}

func (h *handlers) emitState(s ConnState) {
	h.mu.RLock()
	fn := h.state
	h.mu.RUnlock()
	if fn != nil {
		fn(s)
	}
}
