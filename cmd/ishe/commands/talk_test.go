package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/ishe/pkg/cli"
	"github.com/haivivi/ishe/pkg/lifecycle"
	openairealtime "github.com/haivivi/ishe/pkg/openai-realtime"
	"github.com/haivivi/ishe/pkg/prompt"
	"github.com/haivivi/ishe/pkg/turns"
)

type fakeSession struct {
	mu    sync.Mutex
	calls []string
	state lifecycle.State
	mode  prompt.Mode
	msgs  []turns.Message
	err   error
}

func (f *fakeSession) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeSession) Init(context.Context) error {
	f.record("init")
	f.mu.Lock()
	f.state = lifecycle.Active
	f.mu.Unlock()
	return f.err
}

func (f *fakeSession) Stop() {
	f.record("stop")
	f.mu.Lock()
	f.state = lifecycle.Idle
	f.mu.Unlock()
}

func (f *fakeSession) SwitchMode(_ context.Context, m prompt.Mode) error {
	f.record("mode " + string(m))
	f.mode = m
	return nil
}

func (f *fakeSession) SendText(_ context.Context, text string) error {
	f.record("say " + text)
	return nil
}

func (f *fakeSession) State() lifecycle.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) Mode() prompt.Mode { return f.mode }
func (f *fakeSession) Messages(prompt.Mode) []turns.Message { return f.msgs }

func (f *fakeSession) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakePress struct{ in, out int }

func (p *fakePress) PressIn()  { p.in++ }
func (p *fakePress) PressOut() { p.out++ }

func newTestREPL(s *fakeSession) (*repl, *bytes.Buffer, *fakePress) {
	var buf bytes.Buffer
	p := &fakePress{}
	return &repl{
		ctx:     context.Background(),
		session: s,
		press:   p,
		out:     newConsole(&buf, cli.NewStyles(cli.DefaultTheme)),
	}, &buf, p
}

func TestREPLCommands(t *testing.T) {
	s := &fakeSession{mode: prompt.ModeConversation}
	r, out, press := newTestREPL(s)

	input := strings.Join([]string{
		"start",
		"say  nasılsın bugün ",
		"mode questions",
		"mode bogus",
		"press",
		"release",
		"",
		"dance",
		"quit",
		"say never reached",
	}, "\n")
	if err := r.run(strings.NewReader(input)); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []string{"init", "say nasılsın bugün", "mode questions", "stop"}
	if got := s.Calls(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("calls = %q, want %q", got, want)
	}
	if press.in != 1 || press.out != 1 {
		t.Errorf("press = %+v, want one in and one out", press)
	}
	text := out.String()
	if !strings.Contains(text, "unknown mode") {
		t.Errorf("output should report the bad mode: %s", text)
	}
	if !strings.Contains(text, `unknown command "dance"`) {
		t.Errorf("output should report the unknown command: %s", text)
	}
}

func TestREPLEOF(t *testing.T) {
	s := &fakeSession{}
	r, _, _ := newTestREPL(s)
	if err := r.run(strings.NewReader("stop\n")); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := s.Calls(); len(got) != 1 || got[0] != "stop" {
		t.Errorf("calls = %q", got)
	}
}

func TestREPLMessages(t *testing.T) {
	at := time.Date(2025, 6, 3, 9, 30, 0, 0, time.Local)
	s := &fakeSession{
		mode: prompt.ModeConversation,
		msgs: []turns.Message{
			{Role: turns.RoleUser, Text: "günaydın", Timestamp: at},
			{Role: turns.RoleAssistant, Text: "Günaydın!", Timestamp: at},
		},
	}
	r, out, _ := newTestREPL(s)
	if err := r.handle("messages"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "günaydın") || !strings.Contains(out.String(), "Günaydın!") {
		t.Errorf("output = %s", out.String())
	}
}

func TestREPLToggle(t *testing.T) {
	s := &fakeSession{err: errors.New("connect failed")}
	r, out, _ := newTestREPL(s)

	r.toggle()
	r.starting.Wait()
	if s.State() != lifecycle.Active {
		t.Fatalf("state = %v, want active", s.State())
	}
	if !strings.Contains(out.String(), "connect failed") {
		t.Errorf("Init error should be printed: %s", out.String())
	}

	r.toggle()
	if got := s.Calls(); strings.Join(got, "|") != "init|stop" {
		t.Errorf("calls = %q", got)
	}
}

func TestApplyProfile(t *testing.T) {
	s := lifecycle.DefaultSession()
	temp := 0.5
	applyProfile(&s, &cli.Profile{Voice: openairealtime.VoiceAlloy, Language: "en", Temperature: &temp})
	if s.Voice != openairealtime.VoiceAlloy {
		t.Errorf("Voice = %q", s.Voice)
	}
	if s.Temperature == nil || *s.Temperature != 0.5 {
		t.Errorf("Temperature = %v", s.Temperature)
	}
	if s.InputAudioTranscription.Language != "en" {
		t.Errorf("Language = %q", s.InputAudioTranscription.Language)
	}
	if lifecycle.DefaultSession().InputAudioTranscription.Language != "tr" {
		t.Error("applyProfile must not modify the default session")
	}
}

func TestConsoleHooks(t *testing.T) {
	var buf bytes.Buffer
	c := newConsole(&buf, cli.NewStyles(cli.DefaultTheme))
	h := c.hooks()
	h.OnState(lifecycle.Connecting)
	h.OnTranscript(turns.User, "merha")
	h.OnTranscript(turns.User, "")
	h.OnMessage(prompt.ModeQuestions, turns.Message{Role: turns.RoleAssistant, Text: "Soru 1", Timestamp: time.Now()})
	c.progress(40)

	text := buf.String()
	for _, want := range []string{"[connecting] conversation", "merha", "Soru 1", "[connecting] questions"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	if lines := strings.Count(text, "\n"); lines != 4 {
		t.Errorf("got %d lines, want 4 (empty transcript skipped):\n%s", lines, text)
	}
}

func TestConsoleTurnDuration(t *testing.T) {
	var buf bytes.Buffer
	c := newConsole(&buf, cli.NewStyles(cli.DefaultTheme))
	h := c.hooks()
	start := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)
	h.OnTurn(turns.Turn{ResponseID: "r1", StartedAt: start, CompletedAt: start.Add(1500 * time.Millisecond)})
	h.OnTurn(turns.Turn{ResponseID: "r2"})

	text := buf.String()
	if !strings.Contains(text, "1.5s") {
		t.Errorf("output missing turn duration:\n%s", text)
	}
	if lines := strings.Count(text, "\n"); lines != 1 {
		t.Errorf("got %d lines, want 1 (turn without start skipped):\n%s", lines, text)
	}
}

func TestTalkLoggerVerboseWritesLogFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := cli.LoadConfigWithPath(appName, filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	oldCfg, oldVerbose := globalConfig, verbose
	globalConfig, verbose = cfg, true
	t.Cleanup(func() { globalConfig, verbose = oldCfg, oldVerbose })

	logger, closeLog, err := talkLogger()
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("transport state", "state", "open")
	closeLog()

	data, err := os.ReadFile(filepath.Join(dir, "logs", "talk.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "transport state") {
		t.Errorf("talk.log = %q", data)
	}
}
