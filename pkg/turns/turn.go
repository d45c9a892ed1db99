package turns

import "time"

// Role is the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the visible conversation. Messages are append-only.
type Message struct {
	ID        string
	Role      Role
	Text      string
	Timestamp time.Time
}

// Turn is one finalized user/assistant exchange. UserInput is empty when no
// user transcript could be attributed to the response.
type Turn struct {
	ResponseID    string
	UserInput     string
	AssistantText string
	StartedAt     time.Time
	CompletedAt   time.Time
}

// Output receives everything an Assembler produces.
type Output interface {
	// Message appends to the visible conversation.
	Message(Message)
	// Paired is called once per response when its user input is known.
	Paired(responseID, userInput string)
	// Turn is called exactly once per finalized response.
	Turn(Turn)
	Speaking(who Speaker, on bool)
	// Transcript carries the live text of who's current utterance.
	Transcript(who Speaker, text string)
}

// OutputFuncs adapts optional functions to Output.
type OutputFuncs struct {
	OnMessage    func(Message)
	OnPaired     func(responseID, userInput string)
	OnTurn       func(Turn)
	OnSpeaking   func(who Speaker, on bool)
	OnTranscript func(who Speaker, text string)
}

var _ Output = OutputFuncs{}

func (f OutputFuncs) Message(m Message) {
	if f.OnMessage != nil {
		f.OnMessage(m)
	}
}

func (f OutputFuncs) Paired(responseID, userInput string) {
	if f.OnPaired != nil {
		f.OnPaired(responseID, userInput)
	}
}

func (f OutputFuncs) Turn(t Turn) {
	if f.OnTurn != nil {
		f.OnTurn(t)
	}
}

func (f OutputFuncs) Speaking(who Speaker, on bool) {
	if f.OnSpeaking != nil {
		f.OnSpeaking(who, on)
	}
}

func (f OutputFuncs) Transcript(who Speaker, text string) {
	if f.OnTranscript != nil {
		f.OnTranscript(who, text)
	}
}
