// Package lifecycle drives one realtime voice session at a time: connect,
// configure, switch prompt modes and stop.
//
// Every input (transport messages, transport state changes and control
// calls) is handled on a single event-loop goroutine, so the turn assembler
// and the session state are never touched concurrently.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	openairealtime "github.com/haivivi/ishe/pkg/openai-realtime"
	"github.com/haivivi/ishe/pkg/prompt"
	"github.com/haivivi/ishe/pkg/sink"
	"github.com/haivivi/ishe/pkg/turns"
)

var (
	// ErrNotActive is returned by operations that need a live session.
	ErrNotActive = errors.New("lifecycle: session not active")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("lifecycle: controller closed")
)

// CredentialSource mints the ephemeral credential for a session.
type CredentialSource interface {
	FetchCredential(ctx context.Context) (openairealtime.Credential, error)
}

// Recorder captures session audio. Stop must not block on slow I/O.
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Hooks receive UI notifications on the event loop. They must return
// quickly and must not call back into the Controller.
type Hooks struct {
	OnState      func(State)
	OnMessage    func(prompt.Mode, turns.Message)
	OnTranscript func(turns.Speaker, string)
	OnSpeaking   func(turns.Speaker, bool)
	// OnTurn follows the assistant message of each finalized response.
	OnTurn func(turns.Turn)
	// OnError reports the connection error that ended a session start.
	OnError func(error)
}

// Config configures a Controller.
type Config struct {
	Credentials  CredentialSource
	NewTransport func() openairealtime.Transport

	Prompts  *prompt.Generator
	UserName string
	Mode     prompt.Mode
	// Session is the base session.update payload; see DefaultSession.
	Session *openairealtime.SessionConfig

	Sink     sink.Sink
	Recorder Recorder
	Hooks    Hooks
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Controller is the session lifecycle state machine.
type Controller struct {
	cfg    Config
	logger *slog.Logger

	inbox     chan func()
	quit      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	// Owned by the event loop.
	state     State
	mode      prompt.Mode
	gen       int
	transport openairealtime.Transport
	cancel    context.CancelFunc
	asm       *turns.Assembler
	messages  map[prompt.Mode][]turns.Message
	speaking  [2]bool
}

// New validates cfg and starts the event loop.
func New(cfg Config) (*Controller, error) {
	if cfg.Credentials == nil {
		return nil, errors.New("lifecycle: no credential source")
	}
	if cfg.NewTransport == nil {
		return nil, errors.New("lifecycle: no transport factory")
	}
	if cfg.Prompts == nil {
		cfg.Prompts = prompt.New()
	}
	if cfg.Mode == "" {
		cfg.Mode = prompt.ModeConversation
	}
	if cfg.Session == nil {
		s := DefaultSession()
		cfg.Session = &s
	}
	if cfg.Sink == nil {
		cfg.Sink = sink.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	c := &Controller{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "lifecycle"),
		inbox:    make(chan func(), 256),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
		mode:     cfg.Mode,
		messages: make(map[prompt.Mode][]turns.Message),
	}
	go c.loop()
	return c, nil
}

func (c *Controller) loop() {
	defer close(c.loopDone)
	for {
		select {
		case fn := <-c.inbox:
			fn()
		case <-c.quit:
			return
		}
	}
}

// call runs fn on the loop and waits for it.
func (c *Controller) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case c.inbox <- func() { fn(); close(done) }:
	case <-c.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-c.quit:
		return ErrClosed
	}
}

// post queues fn without waiting. Used by transport callbacks.
func (c *Controller) post(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.quit:
	}
}

// Init starts a session. It is a no-op unless the controller is Idle. It
// blocks for the connect phase only; if Stop runs meanwhile Init returns
// nil and the controller is back to Idle. A failed connect returns the
// *openairealtime.ConnectionError after cleaning up.
func (c *Controller) Init(ctx context.Context) error {
	var (
		gen        int
		t          openairealtime.Transport
		sessionCtx context.Context
		started    bool
	)
	err := c.call(ctx, func() {
		if c.state != Idle {
			c.logger.Debug("init ignored", "state", c.state)
			return
		}
		c.gen++
		gen = c.gen
		sessionCtx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
		t = c.cfg.NewTransport()
		c.transport = t
		c.asm = turns.NewAssembler(c.output(),
			turns.WithClock(c.cfg.Clock),
			turns.WithLogger(c.logger))
		t.OnMessage(func(data []byte) {
			c.post(func() { c.handleMessage(gen, data) })
		})
		t.OnStateChange(func(s openairealtime.ConnState) {
			c.post(func() { c.handleConnState(gen, s) })
		})
		c.setState(Connecting)
		started = true
	})
	if err != nil || !started {
		return err
	}

	connectCtx, cancelConnect := context.WithCancel(ctx)
	stopWatch := context.AfterFunc(sessionCtx, cancelConnect)
	connErr := c.connect(connectCtx, sessionCtx, t)
	stopWatch()
	cancelConnect()

	var result error
	err = c.call(context.Background(), func() {
		if gen != c.gen || c.state != Connecting {
			c.logger.Info("connect finished after stop", "error", connErr)
			if c.state == Idle {
				// Stop may have run before the recorder started.
				c.stopRecorder()
			}
			return
		}
		if connErr != nil {
			c.logger.Error("session start failed", "error", connErr)
			c.teardown()
			if c.cfg.Hooks.OnError != nil {
				c.cfg.Hooks.OnError(connErr)
			}
			result = connErr
			return
		}
		c.setState(Active)
		c.logger.Info("session active", "mode", c.mode)
	})
	if err != nil {
		return err
	}
	return result
}

// connect runs off the loop. It only touches t, which is safe for
// concurrent Close.
func (c *Controller) connect(ctx, sessionCtx context.Context, t openairealtime.Transport) error {
	if r := c.cfg.Recorder; r != nil {
		if err := r.Start(sessionCtx); err != nil {
			c.logger.Warn("recorder start failed", "error", err)
		}
	}

	cred, err := c.cfg.Credentials.FetchCredential(ctx)
	if err != nil {
		var ce *openairealtime.ConnectionError
		if !errors.As(err, &ce) {
			err = &openairealtime.ConnectionError{Step: openairealtime.StepCredential, Err: err}
		}
		return err
	}
	if cred.Expired(c.cfg.Clock()) {
		return &openairealtime.ConnectionError{Step: openairealtime.StepCredential, Err: errors.New("credential already expired")}
	}
	return t.Connect(ctx, cred)
}

// teardown releases every session resource and returns to Idle. Runs on
// the loop.
func (c *Controller) teardown() {
	c.setState(Stopping)
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.transport != nil {
		if err := c.transport.Close(); err != nil {
			c.logger.Debug("transport close", "error", err)
		}
		c.transport = nil
	}
	c.stopRecorder()
	if c.asm != nil {
		c.asm.Reset()
		c.asm = nil
	}
	c.messages = make(map[prompt.Mode][]turns.Message)
	c.speaking = [2]bool{}
	c.setState(Idle)
}

// stopRecorder may run when Start never did; Recorder.Stop is idempotent.
func (c *Controller) stopRecorder() {
	if c.cfg.Recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.cfg.Recorder.Stop(ctx); err != nil {
		c.logger.Warn("recorder stop failed", "error", err)
	}
}

// Stop ends the session from any state, including mid-connect. Calling it
// when Idle does nothing.
func (c *Controller) Stop() {
	c.call(context.Background(), func() {
		if c.state == Idle {
			return
		}
		c.logger.Info("stopping session", "state", c.state)
		c.teardown()
	})
}

// SwitchMode changes the prompt family of a live session. The transport
// stays open; the model is reconfigured with a session.update built from
// the target mode's history.
func (c *Controller) SwitchMode(ctx context.Context, mode prompt.Mode) error {
	var result error
	err := c.call(ctx, func() {
		if c.state != Active {
			result = ErrNotActive
			return
		}
		if mode == c.mode {
			return
		}
		// A response in flight keeps its pairing across the switch.
		c.setState(SwitchingMode)
		c.mode = mode
		if err := c.sendSessionUpdate(); err != nil {
			c.logger.Warn("session update on mode switch", "error", err)
		}
		c.setState(Active)
	})
	if err != nil {
		return err
	}
	return result
}

// SendText asks the model to answer a typed user message.
func (c *Controller) SendText(ctx context.Context, text string) error {
	var result error
	err := c.call(ctx, func() {
		if c.state != Active {
			result = ErrNotActive
			return
		}
		// The provider sends no transcription for typed input, so feed it
		// to the assembler as a completed user chunk.
		c.asm.Handle(turns.UserTranscriptChunk{Text: text})
		result = c.transport.Send(openairealtime.UserText(text))
	})
	if err != nil {
		return err
	}
	return result
}

func (c *Controller) handleMessage(gen int, data []byte) {
	if gen != c.gen || c.asm == nil {
		return
	}
	ev := turns.Classify(data, c.asm.ActiveResponseID())
	switch e := ev.(type) {
	case turns.SessionLifecycle:
		c.logger.Info("realtime session", "event", e.Kind, "session_id", e.SessionID)
	case turns.ErrorEvent:
		c.logger.Error("realtime error", "event", e.Kind, "code", e.Code, "message", e.Message)
	case turns.Ignored:
		c.logger.Debug("event ignored", "type", e.Type, "reason", e.Reason)
	}
	c.asm.Handle(ev)
}

func (c *Controller) handleConnState(gen int, s openairealtime.ConnState) {
	if gen != c.gen {
		return
	}
	switch {
	case s == openairealtime.StateOpen:
		if c.state == Connecting || c.state == Active {
			if err := c.sendSessionUpdate(); err != nil {
				c.logger.Warn("initial session update", "error", err)
			}
		}
	case s.Terminal():
		if c.state == Active || c.state == SwitchingMode {
			c.logger.Warn("connection lost", "state", s)
			c.teardown()
		}
	}
}

func (c *Controller) sendSessionUpdate() error {
	if c.transport == nil {
		return ErrNotActive
	}
	lines := make([]prompt.Line, 0, len(c.messages[c.mode]))
	for _, m := range c.messages[c.mode] {
		lines = append(lines, prompt.Line{Role: string(m.Role), Text: m.Text})
	}
	instructions, err := c.cfg.Prompts.Build(c.mode, c.cfg.UserName, prompt.RenderContext(lines))
	if err != nil {
		return fmt.Errorf("build prompt: %w", err)
	}
	session := *c.cfg.Session
	session.Instructions = instructions
	return c.transport.Send(openairealtime.SessionUpdate(&session))
}

func (c *Controller) output() turns.Output {
	ts := sink.TurnSink{Sink: c.cfg.Sink, Mode: func() string { return string(c.mode) }}
	return turns.OutputFuncs{
		OnMessage: func(m turns.Message) {
			c.messages[c.mode] = append(c.messages[c.mode], m)
			if c.cfg.Hooks.OnMessage != nil {
				c.cfg.Hooks.OnMessage(c.mode, m)
			}
		},
		OnPaired: ts.StorePairing,
		OnTurn: func(t turns.Turn) {
			ts.StoreTurn(t)
			if c.cfg.Hooks.OnTurn != nil {
				c.cfg.Hooks.OnTurn(t)
			}
		},
		OnSpeaking: func(who turns.Speaker, on bool) {
			c.speaking[who] = on
			if c.cfg.Hooks.OnSpeaking != nil {
				c.cfg.Hooks.OnSpeaking(who, on)
			}
		},
		OnTranscript: func(who turns.Speaker, text string) {
			if c.cfg.Hooks.OnTranscript != nil {
				c.cfg.Hooks.OnTranscript(who, text)
			}
		},
	}
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.cfg.Hooks.OnState != nil {
		c.cfg.Hooks.OnState(s)
	}
}

// State returns the current state.
func (c *Controller) State() State {
	var s State
	c.call(context.Background(), func() { s = c.state })
	return s
}

// Mode returns the current prompt mode.
func (c *Controller) Mode() prompt.Mode {
	var m prompt.Mode
	c.call(context.Background(), func() { m = c.mode })
	return m
}

// Messages returns a copy of the visible conversation for mode.
func (c *Controller) Messages(mode prompt.Mode) []turns.Message {
	var out []turns.Message
	c.call(context.Background(), func() {
		out = append(out, c.messages[mode]...)
	})
	return out
}

// Loading reports whether a connect or mode switch is in progress.
func (c *Controller) Loading() bool {
	s := c.State()
	return s == Connecting || s == SwitchingMode
}

// Speaking reports whether who is currently talking.
func (c *Controller) Speaking(who turns.Speaker) bool {
	var on bool
	c.call(context.Background(), func() { on = c.speaking[who] })
	return on
}

// Close stops any session and ends the event loop.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.Stop()
		close(c.quit)
	})
	<-c.loopDone
	return nil
}
