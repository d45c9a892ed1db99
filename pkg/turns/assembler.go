package turns

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	openairealtime "github.com/haivivi/ishe/pkg/openai-realtime"
)

// finishedCapacity bounds how many finished response ids are remembered for
// duplicate suppression.
const finishedCapacity = 256

type chunk struct {
	itemID string
	text   string
}

type itemLink struct {
	responseID     string
	previousItemID string
}

// Assembler pairs user transcripts with assistant responses and emits one
// Turn per finalized response.
//
// The three signals that pair a response with its user input (the
// transcript chunk, the assistant item link and response.created) arrive in
// any order. Whichever combination completes first records the pairing and
// later ones are no-ops. Events for a response that already finished, or
// was superseded by a newer response, are dropped.
//
// An Assembler is not safe for concurrent use.
type Assembler struct {
	out    Output
	now    func() time.Time
	newID  func() string
	logger *slog.Logger

	active  string
	pending []chunk
	live    chunk

	userTranscripts map[string]string    // user item -> completed transcript
	assistantItems  map[string]*itemLink // assistant item -> link halves
	awaiting        map[string]string    // user item -> response waiting for its transcript
	pairs           map[string]string    // response -> user input
	pairedItems     map[string][]string  // response -> user items consumed by the pairing
	shownUser       map[string]bool
	deltas          map[string]*strings.Builder
	started         map[string]time.Time

	speaking [2]bool
	finished *idSet
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithClock sets the time source for message and turn timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// WithIDFunc sets the generator for user message ids.
func WithIDFunc(fn func() string) Option {
	return func(a *Assembler) { a.newID = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

// NewAssembler returns an Assembler writing to out.
func NewAssembler(out Output, opts ...Option) *Assembler {
	a := &Assembler{
		out:      out,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   slog.Default(),
		finished: newIDSet(finishedCapacity),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.clear()
	return a
}

// ActiveResponseID is the response currently allowed to stream. Pass it to
// Classify.
func (a *Assembler) ActiveResponseID() string { return a.active }

// Reset drops all in-flight state. Finished response ids are kept so a
// response can never produce a second Turn.
func (a *Assembler) Reset() {
	for who, on := range a.speaking {
		if on {
			a.out.Speaking(Speaker(who), false)
		}
	}
	a.clear()
}

func (a *Assembler) clear() {
	a.active = ""
	a.pending = nil
	a.live = chunk{}
	a.userTranscripts = make(map[string]string)
	a.assistantItems = make(map[string]*itemLink)
	a.awaiting = make(map[string]string)
	a.pairs = make(map[string]string)
	a.pairedItems = make(map[string][]string)
	a.shownUser = make(map[string]bool)
	a.deltas = make(map[string]*strings.Builder)
	a.started = make(map[string]time.Time)
	a.speaking = [2]bool{}
}

// Handle applies one classified event.
func (a *Assembler) Handle(ev Event) {
	switch e := ev.(type) {
	case UserTranscriptDelta:
		a.userDelta(e)
	case UserTranscriptChunk:
		a.userChunk(e)
	case UserItemCreated:
		// Nothing to pair yet; the assistant item that follows names it.
	case AssistantItemLinked:
		a.assistantItem(e)
	case ResponseCreated:
		a.responseCreated(e.ResponseID)
	case AssistantTranscriptDelta:
		a.assistantDelta(e)
	case AssistantTranscriptFinal:
		a.assistantFinal(e)
	case ResponseDone:
		a.responseDone(e)
	case SpeechStarted:
		a.setSpeaking(e.Who, true)
	case SpeechEnded:
		a.setSpeaking(e.Who, false)
	}
}

func (a *Assembler) userDelta(e UserTranscriptDelta) {
	switch {
	case e.Replace:
		a.live = chunk{itemID: e.ItemID, text: e.Delta}
	case a.live.itemID != e.ItemID:
		a.live = chunk{itemID: e.ItemID, text: e.Delta}
	default:
		a.live.text += e.Delta
	}
	a.out.Transcript(User, a.live.text)
}

func (a *Assembler) userChunk(e UserTranscriptChunk) {
	if a.live.itemID == e.ItemID || a.live.itemID == "" {
		a.live = chunk{}
	}
	text := strings.TrimSpace(e.Text)
	if text == "" {
		return
	}
	if e.ItemID != "" {
		a.userTranscripts[e.ItemID] = text
		if resp, ok := a.awaiting[e.ItemID]; ok {
			delete(a.awaiting, e.ItemID)
			a.pair(resp, []string{e.ItemID}, text)
			return
		}
	}
	a.pending = append(a.pending, chunk{itemID: e.ItemID, text: text})
}

func (a *Assembler) assistantItem(e AssistantItemLinked) {
	if e.ResponseID != "" && a.finished.has(e.ResponseID) {
		return
	}
	link := a.assistantItems[e.ItemID]
	if link == nil {
		link = &itemLink{}
		a.assistantItems[e.ItemID] = link
	}
	if e.ResponseID != "" {
		link.responseID = e.ResponseID
	}
	if e.PreviousItemID != "" {
		link.previousItemID = e.PreviousItemID
	}
	if link.responseID == "" || link.previousItemID == "" {
		return
	}
	// A second output item of the same response follows an assistant item,
	// not the user's.
	if _, ok := a.assistantItems[link.previousItemID]; ok {
		return
	}
	if _, ok := a.pairs[link.responseID]; ok {
		return
	}
	if text, ok := a.userTranscripts[link.previousItemID]; ok {
		a.pair(link.responseID, []string{link.previousItemID}, text)
		return
	}
	a.awaiting[link.previousItemID] = link.responseID
}

func (a *Assembler) responseCreated(id string) {
	if a.finished.has(id) {
		return
	}
	if a.active != "" && a.active != id {
		a.logger.Debug("response superseded", "response_id", a.active, "by", id)
		a.drop(a.active)
	}
	a.active = id
	if _, ok := a.started[id]; !ok {
		a.started[id] = a.now()
	}
	if _, ok := a.pairs[id]; ok {
		return
	}
	if text, items, ok := a.takeFallback(); ok {
		a.pair(id, items, text)
	}
}

// takeFallback consumes the pending chunks, or the live transcript when
// there are none.
func (a *Assembler) takeFallback() (string, []string, bool) {
	if len(a.pending) > 0 {
		texts := make([]string, 0, len(a.pending))
		items := make([]string, 0, len(a.pending))
		for _, c := range a.pending {
			texts = append(texts, c.text)
			if c.itemID != "" {
				items = append(items, c.itemID)
			}
		}
		a.pending = nil
		return strings.Join(texts, " "), items, true
	}
	if text := strings.TrimSpace(a.live.text); text != "" {
		var items []string
		if a.live.itemID != "" {
			items = []string{a.live.itemID}
		}
		a.live = chunk{}
		return text, items, true
	}
	return "", nil, false
}

func (a *Assembler) pair(responseID string, items []string, text string) {
	if a.finished.has(responseID) {
		return
	}
	if _, ok := a.pairs[responseID]; ok {
		return
	}
	a.pairs[responseID] = text
	a.pairedItems[responseID] = items
	a.removePending(items)
	a.showUser(responseID, text)
	a.out.Paired(responseID, text)
}

func (a *Assembler) removePending(items []string) {
	if len(items) == 0 || len(a.pending) == 0 {
		return
	}
	kept := a.pending[:0]
	for _, c := range a.pending {
		consumed := false
		for _, id := range items {
			if c.itemID == id {
				consumed = true
				break
			}
		}
		if !consumed {
			kept = append(kept, c)
		}
	}
	a.pending = kept
}

func (a *Assembler) showUser(responseID, text string) {
	if a.shownUser[responseID] {
		return
	}
	a.shownUser[responseID] = true
	a.out.Message(Message{ID: a.newID(), Role: RoleUser, Text: text, Timestamp: a.now()})
}

func (a *Assembler) assistantDelta(e AssistantTranscriptDelta) {
	id := e.ResponseID
	if id == "" {
		id = a.active
	}
	if id == "" || a.finished.has(id) {
		return
	}
	if a.active != "" && id != a.active {
		return
	}
	buf := a.deltas[id]
	if buf == nil {
		buf = &strings.Builder{}
		a.deltas[id] = buf
	}
	buf.WriteString(e.Delta)
	a.out.Transcript(Assistant, buf.String())
}

func (a *Assembler) assistantFinal(e AssistantTranscriptFinal) {
	id := e.ResponseID
	if id == "" {
		id = a.active
	}
	if id == "" {
		a.logger.Warn("final transcript without response id")
		return
	}
	if a.finished.has(id) {
		return
	}
	text := strings.TrimSpace(e.Transcript)
	if text == "" {
		if buf := a.deltas[id]; buf != nil {
			text = strings.TrimSpace(buf.String())
		}
	}
	a.finalize(id, text)
}

func (a *Assembler) responseDone(e ResponseDone) {
	id := e.ResponseID
	if id == "" {
		id = a.active
	}
	defer func() {
		if a.active == id {
			a.active = ""
		}
	}()
	if id == "" || a.finished.has(id) {
		return
	}

	switch e.Status {
	case openairealtime.ResponseStatusFailed:
		a.logger.Error("response failed", "response_id", id, "reason", e.Reason)
		a.drop(id)
	case openairealtime.ResponseStatusCancelled, openairealtime.ResponseStatusIncomplete:
		a.logger.Warn("response ended early", "response_id", id, "status", e.Status, "reason", e.Reason)
		a.drop(id)
	default:
		// No final transcript arrived; fall back to the streamed deltas.
		var text string
		if buf := a.deltas[id]; buf != nil {
			text = strings.TrimSpace(buf.String())
		}
		a.finalize(id, text)
	}
}

func (a *Assembler) finalize(id, text string) {
	if text == "" {
		a.logger.Warn("response finished without transcript", "response_id", id)
		a.drop(id)
		return
	}

	userInput, ok := a.pairs[id]
	if !ok {
		if fb, _, found := a.takeFallback(); found {
			userInput = fb
			a.showUser(id, fb)
			a.out.Paired(id, fb)
		}
	}

	now := a.now()
	started, ok := a.started[id]
	if !ok {
		started = now
	}
	a.out.Message(Message{ID: id, Role: RoleAssistant, Text: text, Timestamp: now})
	a.out.Turn(Turn{
		ResponseID:    id,
		UserInput:     userInput,
		AssistantText: text,
		StartedAt:     started,
		CompletedAt:   now,
	})
	a.drop(id)
	if a.active == id {
		a.active = ""
	}
}

// drop marks id finished and forgets everything held for it.
func (a *Assembler) drop(id string) {
	a.finished.add(id)
	for _, item := range a.pairedItems[id] {
		delete(a.userTranscripts, item)
	}
	delete(a.pairs, id)
	delete(a.pairedItems, id)
	delete(a.shownUser, id)
	delete(a.deltas, id)
	delete(a.started, id)
	for item, resp := range a.awaiting {
		if resp == id {
			delete(a.awaiting, item)
		}
	}
	for item, link := range a.assistantItems {
		if link.responseID == id {
			delete(a.assistantItems, item)
		}
	}
}

func (a *Assembler) setSpeaking(who Speaker, on bool) {
	if a.speaking[who] == on {
		return
	}
	a.speaking[who] = on
	a.out.Speaking(who, on)
}
