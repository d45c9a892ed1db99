package openairealtime

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Client event types.
const (
	EventTypeSessionUpdate          = "session.update"
	EventTypeConversationItemCreate = "conversation.item.create"
	EventTypeResponseCreate         = "response.create"
	EventTypeResponseCancel         = "response.cancel"
)

// Server event types.
const (
	EventTypeError = "error"

	EventTypeSessionCreated = "session.created"
	EventTypeSessionUpdated = "session.updated"
	EventTypeSessionError   = "session.error"

	EventTypeConversationItemCreated              = "conversation.item.created"
	EventTypeInputAudioTranscriptionDelta     = "conversation.item.input_audio_transcription.delta"
	EventTypeInputAudioTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	EventTypeInputAudioTranscriptionFailed    = "conversation.item.input_audio_transcription.failed"

	EventTypeInputAudioBufferCommitted     = "input_audio_buffer.committed"
	EventTypeInputAudioBufferSpeechStarted = "input_audio_buffer.speech_started"
	EventTypeInputAudioBufferSpeechStopped = "input_audio_buffer.speech_stopped"

	EventTypeResponseCreated          = "response.created"
	EventTypeResponseDone             = "response.done"
	EventTypeResponseOutputItemAdded  = "response.output_item.added"
	EventTypeResponseOutputItemDone   = "response.output_item.done"
	EventTypeResponseContentPartAdded = "response.content_part.added"
	EventTypeResponseContentPartDone  = "response.content_part.done"
	EventTypeResponseAudioDelta       = "response.audio.delta"
	EventTypeResponseAudioDone        = "response.audio.done"
	EventTypeResponseTextDelta        = "response.text.delta"
	EventTypeResponseTextDone         = "response.text.done"

	EventTypeResponseAudioTranscriptDelta = "response.audio_transcript.delta"
	EventTypeResponseAudioTranscriptDone  = "response.audio_transcript.done"

	EventTypeOutputAudioBufferStarted = "output_audio_buffer.started"
	EventTypeOutputAudioBufferStopped = "output_audio_buffer.stopped"
	EventTypeOutputAudioBufferCleared = "output_audio_buffer.cleared"

	EventTypeRateLimitsUpdated = "rate_limits.updated"

	// Emitted by the WebRTC relay when the assistant starts and stops
	// talking on the audio track.
	EventTypeSpeechStarted = "speech.started"
	EventTypeSpeechEnded   = "speech.ended"

	// Legacy live-transcript event carrying a "text" member.
	EventTypeTranscript = "transcript"
)

// ServerEvent is the union of the server event fields this client reads.
type ServerEvent struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitzero"`

	Session *SessionResource  `json:"session,omitzero"`
	Item    *ConversationItem `json:"item,omitzero"`

	ItemID         string `json:"item_id,omitzero"`
	PreviousItemID string `json:"previous_item_id,omitzero"`

	Transcript string `json:"transcript,omitzero"`
	Text       string `json:"text,omitzero"`
	Delta      string `json:"delta,omitzero"`

	Response   *ResponseResource `json:"response,omitzero"`
	ResponseID string            `json:"response_id,omitzero"`

	// RawError holds the "error" member; see Err.
	RawError json.RawMessage `json:"error,omitzero"`

	Raw []byte `json:"-"`
}

// Err decodes the event's error member, or returns nil when absent.
func (e *ServerEvent) Err() *Error {
	return decodeEventError(e.RawError)
}

// FenceID returns the response id this event is scoped to, if any.
// response.* lifecycle events carry it inside the response object.
func (e *ServerEvent) FenceID() string {
	if e.ResponseID != "" {
		return e.ResponseID
	}
	if e.Response != nil {
		return e.Response.ID
	}
	return ""
}

// ParseServerEvent decodes one data-channel or WebSocket message.
func ParseServerEvent(data []byte) (*ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("parse server event: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("parse server event: missing type")
	}
	ev.Raw = data
	return &ev, nil
}

// ClientEvent is an outbound event.
type ClientEvent struct {
	EventID  string                 `json:"event_id,omitzero"`
	Type     string                 `json:"type"`
	Session  *SessionConfig         `json:"session,omitzero"`
	Item     *ConversationItem      `json:"item,omitzero"`
	Response *ResponseCreateOptions `json:"response,omitzero"`
}

// SessionUpdate builds a session.update event.
func SessionUpdate(cfg *SessionConfig) *ClientEvent {
	return &ClientEvent{EventID: newEventID(), Type: EventTypeSessionUpdate, Session: cfg}
}

// ResponseCreate builds a response.create event.
func ResponseCreate(opts *ResponseCreateOptions) *ClientEvent {
	return &ClientEvent{EventID: newEventID(), Type: EventTypeResponseCreate, Response: opts}
}

// UserText builds a response.create that injects a typed user message.
func UserText(text string) *ClientEvent {
	return ResponseCreate(&ResponseCreateOptions{
		Modalities: []string{ModalityText, ModalityAudio},
		Input: []ConversationItem{{
			Type:    ItemTypeMessage,
			Role:    RoleUser,
			Content: []ContentPart{{Type: ContentTypeInputText, Text: text}},
		}},
	})
}

func newEventID() string {
	return "evt_" + uuid.NewString()[:12]
}
