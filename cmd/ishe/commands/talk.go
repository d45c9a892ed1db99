package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/ishe/pkg/cli"
	"github.com/haivivi/ishe/pkg/gesture"
	"github.com/haivivi/ishe/pkg/lifecycle"
	openairealtime "github.com/haivivi/ishe/pkg/openai-realtime"
	"github.com/haivivi/ishe/pkg/prompt"
	"github.com/haivivi/ishe/pkg/sink"
	"github.com/haivivi/ishe/pkg/turns"
)

var (
	talkProfile string
	talkMode    string
	talkHold    time.Duration
)

var talkCmd = &cobra.Command{
	Use:   "talk",
	Short: "Run a realtime voice session against a backend",
	Long: `Open an interactive session against the current context's backend.

Type commands on stdin:
  start            start a session
  stop             end the session
  press / release  hold the talk button (starts or stops after the hold)
  mode <name>      switch to conversation or questions
  say <text>       send a typed message
  messages         print the current mode's conversation
  quit             stop and exit

Session settings can be overridden with a YAML or JSON profile:
  ishe talk --profile talk.yaml`,
	RunE: runTalk,
}

func init() {
	talkCmd.Flags().StringVarP(&talkProfile, "profile", "f", "", "session profile file (YAML or JSON)")
	talkCmd.Flags().StringVar(&talkMode, "mode", "", "initial mode: conversation or questions")
	talkCmd.Flags().DurationVar(&talkHold, "hold", gesture.DefaultHold, "press duration that toggles the session")
}

func runTalk(cmd *cobra.Command, args []string) error {
	cctx, err := getContext()
	if err != nil {
		return err
	}
	profile := &cli.Profile{}
	if talkProfile != "" {
		if profile, err = cli.LoadProfile(talkProfile); err != nil {
			return err
		}
	}
	logger, closeLog, err := talkLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	prompts := prompt.New()
	if profile.Prompts != "" {
		if err := prompts.LoadDir(profile.Prompts); err != nil {
			return err
		}
	}
	mode := prompt.ModeConversation
	if name := firstNonEmpty(talkMode, profile.Mode); name != "" {
		if mode, err = prompt.ParseMode(name); err != nil {
			return err
		}
	}
	session := lifecycle.DefaultSession()
	applyProfile(&session, profile)

	hc := &http.Client{Timeout: 30 * time.Second}
	if cctx.Timeout > 0 {
		hc.Timeout = time.Duration(cctx.Timeout) * time.Second
	}
	backendOpts := []openairealtime.BackendOption{
		openairealtime.WithAccessToken(cctx.Token),
		openairealtime.WithHTTPClient(hc),
	}
	if cctx.Model != "" {
		backendOpts = append(backendOpts, openairealtime.WithModel(cctx.Model))
	}
	backend := openairealtime.NewBackendClient(cctx.Server, backendOpts...)
	store := sink.NewHTTPSink(cctx.Server, sink.WithToken(cctx.Token), sink.WithLogger(logger))
	recorder := lifecycle.NewOggRecorder(store, logger)
	con := newConsole(os.Stdout, cli.NewStyles(cli.DefaultTheme))

	ctrl, err := lifecycle.New(lifecycle.Config{
		Credentials:  backend,
		NewTransport: transportFactory(cctx, backend, recorder, logger),
		Prompts:      prompts,
		UserName:     firstNonEmpty(profile.UserName, cctx.UserName),
		Mode:         mode,
		Session:      &session,
		Sink:         store,
		Recorder:     recorder,
		Hooks:        con.hooks(),
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := &repl{ctx: ctx, session: ctrl, out: con}
	r.press = gesture.NewLongPress(gesture.Config{
		Hold:       talkHold,
		OnFire:     r.toggle,
		OnProgress: con.progress,
	})
	con.setMode(mode)

	err = r.run(os.Stdin)

	ctrl.Close()
	recorder.Wait()
	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if cerr := store.Close(drainCtx); cerr != nil {
		logger.Warn("conversation sink did not drain", "error", cerr)
	}
	return err
}

func transportFactory(cctx *cli.Context, backend *openairealtime.BackendClient, rec *lifecycle.OggRecorder, logger *slog.Logger) func() openairealtime.Transport {
	if cctx.GetTransport() == cli.TransportWebSocket {
		return func() openairealtime.Transport {
			return openairealtime.NewWebSocketTransport(openairealtime.WebSocketConfig{
				Model:  cctx.Model,
				Logger: logger,
			})
		}
	}
	return func() openairealtime.Transport {
		t := openairealtime.NewWebRTCTransport(openairealtime.WebRTCConfig{
			Signaler: backend,
			Media:    &openairealtime.SilenceSource{},
			Logger:   logger,
		})
		t.OnRemoteTrack(rec.Attach)
		return t
	}
}

func applyProfile(s *openairealtime.SessionConfig, p *cli.Profile) {
	if p.Voice != "" {
		s.Voice = p.Voice
	}
	if p.Temperature != nil {
		s.Temperature = p.Temperature
	}
	if p.Language != "" && s.InputAudioTranscription != nil {
		tc := *s.InputAudioTranscription
		tc.Language = p.Language
		s.InputAudioTranscription = &tc
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// session is the part of lifecycle.Controller the REPL drives.
type session interface {
	Init(ctx context.Context) error
	Stop()
	SwitchMode(ctx context.Context, mode prompt.Mode) error
	SendText(ctx context.Context, text string) error
	State() lifecycle.State
	Mode() prompt.Mode
	Messages(mode prompt.Mode) []turns.Message
}

type pressable interface {
	PressIn()
	PressOut()
}

// repl reads one command per line until quit, EOF or ctx ends.
type repl struct {
	ctx     context.Context
	session session
	press   pressable
	out     *console

	starting sync.WaitGroup
}

var errQuit = errors.New("quit")

func (r *repl) run(in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-r.ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
		close(lines)
	}()

	defer r.starting.Wait()
	for {
		select {
		case <-r.ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			if err := r.handle(line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				r.out.error(err)
			}
		}
	}
}

func (r *repl) handle(line string) error {
	verb, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(verb) {
	case "":
		return nil
	case "start":
		return r.session.Init(r.ctx)
	case "stop":
		r.session.Stop()
		return nil
	case "press":
		if r.press != nil {
			r.press.PressIn()
		}
		return nil
	case "release":
		if r.press != nil {
			r.press.PressOut()
		}
		return nil
	case "mode":
		mode, err := prompt.ParseMode(rest)
		if err != nil {
			return err
		}
		if err := r.session.SwitchMode(r.ctx, mode); err != nil {
			return err
		}
		r.out.setMode(mode)
		return nil
	case "say":
		if rest == "" {
			return errors.New("say: text is required")
		}
		return r.session.SendText(r.ctx, rest)
	case "messages":
		for _, m := range r.session.Messages(r.session.Mode()) {
			r.out.message(m)
		}
		return nil
	case "quit", "exit":
		r.session.Stop()
		return errQuit
	default:
		return fmt.Errorf("unknown command %q (start, stop, press, release, mode, say, messages, quit)", verb)
	}
}

// toggle runs when a long press completes: start when idle, stop otherwise.
func (r *repl) toggle() {
	if r.session.State() != lifecycle.Idle {
		r.session.Stop()
		return
	}
	r.starting.Add(1)
	go func() {
		defer r.starting.Done()
		if err := r.session.Init(r.ctx); err != nil {
			r.out.error(err)
		}
	}()
}

// console serializes transcript output from the controller's event loop,
// the gesture timers and the REPL.
type console struct {
	mu     sync.Mutex
	w      io.Writer
	styles cli.Styles
	state  lifecycle.State
	mode   prompt.Mode
}

func newConsole(w io.Writer, styles cli.Styles) *console {
	return &console{w: w, styles: styles, mode: prompt.ModeConversation}
}

func (c *console) println(s string) {
	c.mu.Lock()
	fmt.Fprintln(c.w, s)
	c.mu.Unlock()
}

func (c *console) hooks() lifecycle.Hooks {
	return lifecycle.Hooks{
		OnState: func(s lifecycle.State) {
			c.mu.Lock()
			c.state = s
			mode := c.mode
			c.mu.Unlock()
			c.status(s, mode, 0)
		},
		OnMessage: func(mode prompt.Mode, m turns.Message) {
			c.mu.Lock()
			c.mode = mode
			c.mu.Unlock()
			c.message(m)
		},
		OnTranscript: func(who turns.Speaker, text string) {
			if text == "" {
				return
			}
			c.println(c.styles.LiveLine(who == turns.User, text, 100))
		},
		OnTurn:  c.turn,
		OnError: c.error,
	}
}

func (c *console) turn(t turns.Turn) {
	if t.StartedAt.IsZero() || t.CompletedAt.Before(t.StartedAt) {
		return
	}
	c.println(c.styles.Status.Render("  ↳ " + cli.FormatDuration(t.CompletedAt.Sub(t.StartedAt))))
}

func (c *console) setMode(mode prompt.Mode) {
	c.mu.Lock()
	c.mode = mode
	s := c.state
	c.mu.Unlock()
	c.status(s, mode, 0)
}

func (c *console) message(m turns.Message) {
	c.println(c.styles.MessageLine(m.Role == turns.RoleUser, m.Timestamp, m.Text))
}

func (c *console) status(s lifecycle.State, mode prompt.Mode, progress float64) {
	c.println(c.styles.StatusLine(s.String(), string(mode), progress))
}

func (c *console) progress(percent float64) {
	c.mu.Lock()
	s, mode := c.state, c.mode
	c.mu.Unlock()
	c.status(s, mode, percent)
}

func (c *console) error(err error) {
	c.println(c.styles.Error.Render("error: " + err.Error()))
}
