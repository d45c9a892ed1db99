// Package sink persists finalized conversation turns through the backend.
//
// Store never blocks the caller and never reports failure: records are
// queued and posted by a single worker, and failures are only logged.
package sink

import (
	"context"
	"io"
	"time"

	"github.com/haivivi/ishe/pkg/turns"
)

// Record types written into metadata["type"].
const (
	TypeUserInput         = "user_input"
	TypeAssistantResponse = "assistant_response"
)

// Metadata is free-form record metadata. The backend stringifies values.
type Metadata map[string]any

// Sink accepts conversation records.
type Sink interface {
	Store(text string, metadata Metadata)
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Store(string, Metadata) {}

// TurnSink writes assembler output to a Sink: one user_input record per
// pairing and one assistant_response record per Turn.
type TurnSink struct {
	Sink Sink
	// Mode is recorded with every record.
	Mode func() string
}

// StorePairing records the user side of a response.
func (t TurnSink) StorePairing(responseID, userInput string) {
	md := Metadata{"type": TypeUserInput, "responseId": responseID}
	t.addMode(md)
	t.Sink.Store(userInput, md)
}

// StoreTurn records the assistant side of a finalized turn.
func (t TurnSink) StoreTurn(turn turns.Turn) {
	md := Metadata{
		"type":        TypeAssistantResponse,
		"responseId":  turn.ResponseID,
		"startedAt":   turn.StartedAt.UTC().Format(time.RFC3339Nano),
		"completedAt": turn.CompletedAt.UTC().Format(time.RFC3339Nano),
	}
	if turn.UserInput != "" {
		md["userInput"] = turn.UserInput
	}
	t.addMode(md)
	t.Sink.Store(turn.AssistantText, md)
}

func (t TurnSink) addMode(md Metadata) {
	if t.Mode != nil {
		if m := t.Mode(); m != "" {
			md["mode"] = m
		}
	}
}

// Uploader uploads a finished session recording.
type Uploader interface {
	UploadAudio(ctx context.Context, name string, audio io.Reader, duration time.Duration) error
}
