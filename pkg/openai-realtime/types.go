package openairealtime

import "time"

// DefaultModel is the realtime model the backend mints sessions for.
const DefaultModel = "gpt-4o-realtime-preview-2025-06-03"

const (
	AudioFormatPCM16 = "pcm16"

	VoiceAlloy = "alloy"

	VADServerVAD = "server_vad"

	ModalityText  = "text"
	ModalityAudio = "audio"

	ToolChoiceNone = "none"

	TranscriptionModelWhisper = "whisper-1"
)

const (
	ItemTypeMessage = "message"

	RoleUser      = "user"
	RoleAssistant = "assistant"

	ContentTypeInputText = "input_text"
)

// Response statuses reported in response.done.
const (
	ResponseStatusCompleted  = "completed"
	ResponseStatusCancelled  = "cancelled"
	ResponseStatusFailed     = "failed"
	ResponseStatusIncomplete = "incomplete"
)

// Credential is a short-lived client secret minted by the backend.
type Credential struct {
	Value     string
	ExpiresAt time.Time
}

// Expired reports whether the credential is past its expiry at now.
// A zero ExpiresAt never expires.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// SessionConfig is the session payload of session.update and of the
// session-creation request.
type SessionConfig struct {
	Modalities              []string             `json:"modalities,omitzero"`
	Instructions            string               `json:"instructions,omitzero"`
	Voice                   string               `json:"voice,omitzero"`
	InputAudioFormat        string               `json:"input_audio_format,omitzero"`
	OutputAudioFormat       string               `json:"output_audio_format,omitzero"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitzero"`
	TurnDetection           *TurnDetection       `json:"turn_detection,omitzero"`
	Tools                   []any                `json:"tools,omitzero"`
	ToolChoice              string               `json:"tool_choice,omitzero"`
	Temperature             *float64             `json:"temperature,omitzero"`

	// MaxResponseOutputTokens is an int or the string "inf".
	MaxResponseOutputTokens any `json:"max_response_output_tokens,omitzero"`
}

// TranscriptionConfig configures transcription of the user's audio.
type TranscriptionConfig struct {
	Model    string `json:"model,omitzero"`
	Language string `json:"language,omitzero"`
	Prompt   string `json:"prompt,omitzero"`
}

// TurnDetection configures server voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type,omitzero"`
	Threshold         float64 `json:"threshold,omitzero"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitzero"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitzero"`
	InterruptResponse bool    `json:"interrupt_response,omitzero"`
	CreateResponse    bool    `json:"create_response,omitzero"`
}

// SessionRequest is the body of the provider's session-creation call.
type SessionRequest struct {
	Model string `json:"model"`
	SessionConfig
}

// SessionResponse is the provider's reply to session creation, also relayed
// verbatim by the backend's /session endpoint.
type SessionResponse struct {
	ID           string       `json:"id,omitzero"`
	Model        string       `json:"model,omitzero"`
	ExpiresAt    int64        `json:"expires_at,omitzero"`
	ClientSecret ClientSecret `json:"client_secret"`
}

// ClientSecret is the ephemeral key of a session.
type ClientSecret struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at,omitzero"`
}

// Credential converts the response into a Credential.
func (r *SessionResponse) Credential() Credential {
	c := Credential{Value: r.ClientSecret.Value}
	if r.ClientSecret.ExpiresAt > 0 {
		c.ExpiresAt = time.Unix(r.ClientSecret.ExpiresAt, 0)
	}
	return c
}

// ResponseCreateOptions are the options of response.create.
type ResponseCreateOptions struct {
	Modalities   []string           `json:"modalities,omitzero"`
	Instructions string             `json:"instructions,omitzero"`
	Input        []ConversationItem `json:"input,omitzero"`
}

// SessionResource is the session object of session.created and
// session.updated.
type SessionResource struct {
	ID           string `json:"id,omitzero"`
	Model        string `json:"model,omitzero"`
	Instructions string `json:"instructions,omitzero"`
}

// ConversationItem is a conversation item.
type ConversationItem struct {
	ID      string        `json:"id,omitzero"`
	Type    string        `json:"type,omitzero"`
	Status  string        `json:"status,omitzero"`
	Role    string        `json:"role,omitzero"`
	Content []ContentPart `json:"content,omitzero"`
}

// ContentPart is one part of an item's content.
type ContentPart struct {
	Type       string `json:"type,omitzero"`
	Text       string `json:"text,omitzero"`
	Transcript string `json:"transcript,omitzero"`
}

// ResponseResource is the response object of response.created and
// response.done.
type ResponseResource struct {
	ID            string         `json:"id,omitzero"`
	Status        string         `json:"status,omitzero"`
	StatusDetails *StatusDetails `json:"status_details,omitzero"`
}

// StatusDetails explains a non-completed response.
type StatusDetails struct {
	Type   string `json:"type,omitzero"`
	Reason string `json:"reason,omitzero"`
	Error  *Error `json:"error,omitzero"`
}
