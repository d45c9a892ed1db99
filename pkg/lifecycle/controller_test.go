package lifecycle_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/ishe/pkg/lifecycle"
	openairealtime "github.com/haivivi/ishe/pkg/openai-realtime"
	"github.com/haivivi/ishe/pkg/prompt"
	"github.com/haivivi/ishe/pkg/sink"
	"github.com/haivivi/ishe/pkg/turns"
)

type fakeTransport struct {
	mu      sync.Mutex
	onMsg   func([]byte)
	onState func(openairealtime.ConnState)
	sent    []*openairealtime.ClientEvent
	closes  int
	connect func(ctx context.Context) error
}

func (f *fakeTransport) Connect(ctx context.Context, _ openairealtime.Credential) error {
	if f.connect != nil {
		if err := f.connect(ctx); err != nil {
			return err
		}
	}
	f.state(openairealtime.StateOpen)
	return nil
}

func (f *fakeTransport) Send(event any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closes > 0 {
		return openairealtime.ErrClosed
	}
	f.sent = append(f.sent, event.(*openairealtime.ClientEvent))
	return nil
}

func (f *fakeTransport) OnMessage(fn func([]byte))                      { f.onMsg = fn }
func (f *fakeTransport) OnStateChange(fn func(openairealtime.ConnState)) { f.onState = fn }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeTransport) state(s openairealtime.ConnState) { f.onState(s) }
func (f *fakeTransport) deliver(raw string)               { f.onMsg([]byte(raw)) }

func (f *fakeTransport) sentEvents() []*openairealtime.ClientEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*openairealtime.ClientEvent(nil), f.sent...)
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

type credFunc func(ctx context.Context) (openairealtime.Credential, error)

func (f credFunc) FetchCredential(ctx context.Context) (openairealtime.Credential, error) {
	return f(ctx)
}

var okCreds = credFunc(func(context.Context) (openairealtime.Credential, error) {
	return openairealtime.Credential{Value: "ek_test"}, nil
})

type memSink struct {
	mu   sync.Mutex
	recs []sink.Metadata
	text []string
}

func (s *memSink) Store(text string, md sink.Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, md)
	s.text = append(s.text, text)
}

type countingRecorder struct {
	mu            sync.Mutex
	starts, stops int
}

func (r *countingRecorder) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	return nil
}

func (r *countingRecorder) Stop(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return nil
}

func testPrompts(t *testing.T) *prompt.Generator {
	t.Helper()
	g := prompt.New()
	if err := g.Override(prompt.ModeConversation, "conversation for {{.UserName}}{{if .Context}}|{{.Context}}{{end}}"); err != nil {
		t.Fatal(err)
	}
	if err := g.Override(prompt.ModeQuestions, "questions for {{.UserName}}{{if .Context}}|{{.Context}}{{end}}"); err != nil {
		t.Fatal(err)
	}
	return g
}

func newController(t *testing.T, tr *fakeTransport, mod func(*lifecycle.Config)) *lifecycle.Controller {
	t.Helper()
	cfg := lifecycle.Config{
		Credentials:  okCreds,
		NewTransport: func() openairealtime.Transport { return tr },
		Prompts:      testPrompts(t),
		UserName:     "Ayşe",
	}
	if mod != nil {
		mod(&cfg)
	}
	c, err := lifecycle.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestInitAndStop(t *testing.T) {
	tr := &fakeTransport{}
	rec := &countingRecorder{}
	var states []lifecycle.State
	c := newController(t, tr, func(cfg *lifecycle.Config) {
		cfg.Recorder = rec
		cfg.Hooks.OnState = func(s lifecycle.State) { states = append(states, s) }
	})

	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if got := c.State(); got != lifecycle.Active {
		t.Fatalf("state = %v", got)
	}
	sent := tr.sentEvents()
	if len(sent) != 1 || sent[0].Type != openairealtime.EventTypeSessionUpdate {
		t.Fatalf("sent = %+v", sent)
	}
	s := sent[0].Session
	if s.Instructions != "conversation for Ayşe" {
		t.Errorf("instructions = %q", s.Instructions)
	}
	if s.InputAudioTranscription == nil || s.InputAudioTranscription.Language != "tr" {
		t.Errorf("transcription = %+v", s.InputAudioTranscription)
	}

	// Init on a live session is a no-op.
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("second Init: %v", err)
	}

	c.Stop()
	c.Stop()
	if got := c.State(); got != lifecycle.Idle {
		t.Errorf("state after stop = %v", got)
	}
	if n := tr.closeCount(); n != 1 {
		t.Errorf("transport closed %d times", n)
	}
	if rec.starts != 1 || rec.stops != 1 {
		t.Errorf("recorder starts=%d stops=%d", rec.starts, rec.stops)
	}
	want := []lifecycle.State{lifecycle.Connecting, lifecycle.Active, lifecycle.Stopping, lifecycle.Idle}
	if len(states) != len(want) {
		t.Fatalf("states = %v", states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %v, want %v", i, states[i], want[i])
		}
	}
}

func TestStopWhenIdle(t *testing.T) {
	c := newController(t, &fakeTransport{}, nil)
	c.Stop()
	if got := c.State(); got != lifecycle.Idle {
		t.Errorf("state = %v", got)
	}
}

func TestStopDuringConnect(t *testing.T) {
	entered := make(chan struct{})
	tr := &fakeTransport{connect: func(ctx context.Context) error {
		close(entered)
		<-ctx.Done()
		return &openairealtime.ConnectionError{Step: openairealtime.StepSDPExchange, Err: ctx.Err()}
	}}
	var hookErr error
	c := newController(t, tr, func(cfg *lifecycle.Config) {
		cfg.Hooks.OnError = func(err error) { hookErr = err }
	})

	done := make(chan error, 1)
	go func() { done <- c.Init(context.Background()) }()
	<-entered
	if !c.Loading() {
		t.Error("Loading() = false while connecting")
	}
	c.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Init = %v, want nil after stop", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Init did not return after Stop")
	}
	if got := c.State(); got != lifecycle.Idle {
		t.Errorf("state = %v", got)
	}
	if hookErr != nil {
		t.Errorf("OnError called with %v", hookErr)
	}
	if tr.closeCount() != 1 {
		t.Errorf("closes = %d", tr.closeCount())
	}
}

func TestConnectFailure(t *testing.T) {
	tr := &fakeTransport{}
	rec := &countingRecorder{}
	var hookErr error
	c := newController(t, tr, func(cfg *lifecycle.Config) {
		cfg.Recorder = rec
		cfg.Credentials = credFunc(func(context.Context) (openairealtime.Credential, error) {
			return openairealtime.Credential{}, errors.New("backend down")
		})
		cfg.Hooks.OnError = func(err error) { hookErr = err }
	})

	err := c.Init(context.Background())
	var ce *openairealtime.ConnectionError
	if !errors.As(err, &ce) || ce.Step != openairealtime.StepCredential {
		t.Fatalf("Init = %v, want credential ConnectionError", err)
	}
	if hookErr != err {
		t.Errorf("OnError = %v", hookErr)
	}
	if got := c.State(); got != lifecycle.Idle {
		t.Errorf("state = %v", got)
	}
	if rec.stops != 1 {
		t.Errorf("recorder stops = %d", rec.stops)
	}
}

func TestExpiredCredential(t *testing.T) {
	now := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)
	c := newController(t, &fakeTransport{}, func(cfg *lifecycle.Config) {
		cfg.Clock = func() time.Time { return now }
		cfg.Credentials = credFunc(func(context.Context) (openairealtime.Credential, error) {
			return openairealtime.Credential{Value: "ek", ExpiresAt: now.Add(-time.Second)}, nil
		})
	})
	err := c.Init(context.Background())
	var ce *openairealtime.ConnectionError
	if !errors.As(err, &ce) || ce.Step != openairealtime.StepCredential {
		t.Fatalf("Init = %v", err)
	}
}

func TestSwitchModeKeepsTransport(t *testing.T) {
	tr := &fakeTransport{}
	c := newController(t, tr, nil)

	if err := c.SwitchMode(context.Background(), prompt.ModeQuestions); !errors.Is(err, lifecycle.ErrNotActive) {
		t.Fatalf("SwitchMode idle = %v", err)
	}
	if err := c.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.SwitchMode(context.Background(), prompt.ModeQuestions); err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}
	if tr.closeCount() != 0 {
		t.Error("transport closed on mode switch")
	}
	if c.Mode() != prompt.ModeQuestions || c.State() != lifecycle.Active {
		t.Errorf("mode=%v state=%v", c.Mode(), c.State())
	}
	sent := tr.sentEvents()
	if len(sent) != 2 || sent[1].Session.Instructions != "questions for Ayşe" {
		t.Fatalf("sent = %+v", sent)
	}
}

const turnEvents = `{"type":"conversation.item.input_audio_transcription.completed","item_id":"u1","transcript":"Merhaba"}
{"type":"response.created","response":{"id":"r1","status":"in_progress"}}
{"type":"response.audio_transcript.delta","response_id":"r1","item_id":"a1","delta":"Merhaba, "}
{"type":"response.audio_transcript.done","response_id":"r1","item_id":"a1","transcript":"Merhaba, nasılsınız?"}
{"type":"response.done","response":{"id":"r1","status":"completed"}}`

func TestTurnReachesSinkAndHistory(t *testing.T) {
	tr := &fakeTransport{}
	ms := &memSink{}
	c := newController(t, tr, func(cfg *lifecycle.Config) { cfg.Sink = ms })
	if err := c.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, line := range strings.Split(turnEvents, "\n") {
		tr.deliver(line)
	}

	msgs := c.Messages(prompt.ModeConversation)
	if len(msgs) != 2 {
		t.Fatalf("messages = %+v", msgs)
	}
	if msgs[0].Role != turns.RoleUser || msgs[0].Text != "Merhaba" {
		t.Errorf("user message = %+v", msgs[0])
	}
	if msgs[1].Role != turns.RoleAssistant || msgs[1].Text != "Merhaba, nasılsınız?" {
		t.Errorf("assistant message = %+v", msgs[1])
	}

	ms.mu.Lock()
	if len(ms.recs) != 2 || ms.recs[1]["type"] != sink.TypeAssistantResponse || ms.recs[1]["mode"] != "conversation" {
		t.Errorf("records = %+v", ms.recs)
	}
	ms.mu.Unlock()

	// Switching back to a mode rebuilds its prompt with that mode's history.
	if err := c.SwitchMode(context.Background(), prompt.ModeQuestions); err != nil {
		t.Fatal(err)
	}
	if err := c.SwitchMode(context.Background(), prompt.ModeConversation); err != nil {
		t.Fatal(err)
	}
	sent := tr.sentEvents()
	last := sent[len(sent)-1].Session.Instructions
	if !strings.Contains(last, "Merhaba, nasılsınız?") {
		t.Errorf("instructions without history: %q", last)
	}

	c.Stop()
	if got := c.Messages(prompt.ModeConversation); len(got) != 0 {
		t.Errorf("messages after stop = %+v", got)
	}
}

func TestSwitchModeMidResponseKeepsPairing(t *testing.T) {
	tr := &fakeTransport{}
	ms := &memSink{}
	var finished []turns.Turn
	c := newController(t, tr, func(cfg *lifecycle.Config) {
		cfg.Sink = ms
		cfg.Hooks.OnTurn = func(tn turns.Turn) { finished = append(finished, tn) }
	})
	if err := c.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(turnEvents, "\n")
	for _, line := range lines[:3] {
		tr.deliver(line)
	}
	if err := c.SwitchMode(context.Background(), prompt.ModeQuestions); err != nil {
		t.Fatal(err)
	}
	for _, line := range lines[3:] {
		tr.deliver(line)
	}
	if msgs := c.Messages(prompt.ModeQuestions); len(msgs) != 1 || msgs[0].Role != turns.RoleAssistant {
		t.Errorf("questions messages = %+v", msgs)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	var turn sink.Metadata
	for _, md := range ms.recs {
		if md["type"] == sink.TypeAssistantResponse {
			if turn != nil {
				t.Fatalf("assistant response stored twice: %+v", ms.recs)
			}
			turn = md
		}
	}
	if turn == nil {
		t.Fatalf("no assistant response in %+v", ms.recs)
	}
	if got := turn["userInput"]; got != "Merhaba" {
		t.Errorf("userInput = %v", got)
	}
	if len(finished) != 1 || finished[0].UserInput != "Merhaba" {
		t.Errorf("OnTurn = %+v", finished)
	}
}

func TestSendTextPairsWithResponse(t *testing.T) {
	tr := &fakeTransport{}
	ms := &memSink{}
	c := newController(t, tr, func(cfg *lifecycle.Config) { cfg.Sink = ms })

	if err := c.SendText(context.Background(), "Nasılsın?"); !errors.Is(err, lifecycle.ErrNotActive) {
		t.Fatalf("SendText idle = %v", err)
	}
	if err := c.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.SendText(context.Background(), "Nasılsın?"); err != nil {
		t.Fatal(err)
	}
	sent := tr.sentEvents()
	if got := sent[len(sent)-1]; got.Type != openairealtime.EventTypeResponseCreate {
		t.Fatalf("last sent = %+v", got)
	}
	tr.deliver(`{"type":"response.created","response":{"id":"r2"}}`)
	tr.deliver(`{"type":"response.audio_transcript.done","response_id":"r2","transcript":"İyiyim."}`)

	msgs := c.Messages(prompt.ModeConversation)
	if len(msgs) != 2 || msgs[0].Text != "Nasılsın?" {
		t.Fatalf("messages = %+v", msgs)
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if got := ms.recs[len(ms.recs)-1]["userInput"]; got != "Nasılsın?" {
		t.Errorf("userInput = %v", got)
	}
}

func TestConnectionLossStops(t *testing.T) {
	tr := &fakeTransport{}
	c := newController(t, tr, nil)
	if err := c.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	tr.state(openairealtime.StateFailed)
	if got := c.State(); got != lifecycle.Idle {
		t.Errorf("state = %v", got)
	}
	if tr.closeCount() != 1 {
		t.Errorf("closes = %d", tr.closeCount())
	}
}

func TestSpeakingFlags(t *testing.T) {
	tr := &fakeTransport{}
	c := newController(t, tr, nil)
	if err := c.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	tr.deliver(`{"type":"output_audio_buffer.started"}`)
	if !c.Speaking(turns.Assistant) {
		t.Error("assistant not speaking")
	}
	c.Stop()
	if c.Speaking(turns.Assistant) {
		t.Error("still speaking after stop")
	}
}

func TestClose(t *testing.T) {
	tr := &fakeTransport{}
	c := newController(t, tr, nil)
	if err := c.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Close()
		}()
	}
	wg.Wait()
	c.Close()
	if tr.closeCount() != 1 {
		t.Errorf("closes = %d", tr.closeCount())
	}
	if err := c.Init(context.Background()); !errors.Is(err, lifecycle.ErrClosed) {
		t.Errorf("Init after Close = %v", err)
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := lifecycle.New(lifecycle.Config{}); err == nil {
		t.Error("New without credentials succeeded")
	}
	if _, err := lifecycle.New(lifecycle.Config{Credentials: okCreds}); err == nil {
		t.Error("New without transport succeeded")
	}
}
