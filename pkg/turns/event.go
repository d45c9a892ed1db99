package turns

// Event is a classified server event. The concrete types below are the only
// implementations.
type Event interface {
	event()
}

// Speaker identifies who is talking in SpeechStarted/SpeechEnded.
type Speaker int

const (
	Assistant Speaker = iota
	User
)

func (s Speaker) String() string {
	if s == User {
		return "user"
	}
	return "assistant"
}

// UserTranscriptChunk is a completed transcription of one user audio item.
type UserTranscriptChunk struct {
	ItemID string
	Text   string
}

// UserTranscriptDelta is partial live transcription of a user item.
type UserTranscriptDelta struct {
	ItemID string
	Delta  string
	// Replace is set when Delta is the full live text, not an increment.
	Replace bool
}

// ResponseCreated marks the start of a new assistant response.
type ResponseCreated struct {
	ResponseID string
}

// AssistantItemLinked carries one half of the link between an assistant
// item, its response and the user item it answers. Either ResponseID or
// PreviousItemID may be empty depending on the source event.
type AssistantItemLinked struct {
	ItemID         string
	ResponseID     string
	PreviousItemID string
}

// UserItemCreated announces a user item.
type UserItemCreated struct {
	ItemID         string
	PreviousItemID string
}

// AssistantTranscriptDelta is a piece of the assistant's spoken transcript.
type AssistantTranscriptDelta struct {
	ResponseID string
	ItemID     string
	Delta      string
}

// AssistantTranscriptFinal is the assistant's complete transcript.
type AssistantTranscriptFinal struct {
	ResponseID string
	ItemID     string
	Transcript string
}

// ResponseDone reports the terminal status of a response.
type ResponseDone struct {
	ResponseID string
	Status     string
	Reason     string
}

// SpeechStarted reports that Who started talking.
type SpeechStarted struct{ Who Speaker }

// SpeechEnded reports that Who stopped talking.
type SpeechEnded struct{ Who Speaker }

// SessionLifecycle is session.created or session.updated.
type SessionLifecycle struct {
	Kind      string
	SessionID string
}

// ErrorEvent is an error reported on the event channel.
type ErrorEvent struct {
	Kind    string
	Code    string
	Message string
}

// Unclassified is a well-formed event this package does not act on.
type Unclassified struct {
	Type string
}

// Ignored is an event dropped by the classifier: unparseable or fenced.
type Ignored struct {
	Type   string
	Reason string
}

func (UserTranscriptChunk) event()      {}
func (UserTranscriptDelta) event()      {}
func (ResponseCreated) event()          {}
func (AssistantItemLinked) event()      {}
func (UserItemCreated) event()          {}
func (AssistantTranscriptDelta) event() {}
func (AssistantTranscriptFinal) event() {}
func (ResponseDone) event()             {}
func (SpeechStarted) event()            {}
func (SpeechEnded) event()              {}
func (SessionLifecycle) event()         {}
func (ErrorEvent) event()               {}
func (Unclassified) event()             {}
func (Ignored) event()                  {}
