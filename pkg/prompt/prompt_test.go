package prompt_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haivivi/ishe/pkg/prompt"
)

func TestBuildBuiltins(t *testing.T) {
	g := prompt.New()

	conv, err := g.Build(prompt.ModeConversation, "Ayşe", "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(conv, `"Ayşe"`) {
		t.Errorf("conversation prompt lacks user name: %s", conv)
	}
	if strings.Contains(conv, "Earlier in this conversation") {
		t.Error("empty context rendered a context section")
	}

	q, err := g.Build(prompt.ModeQuestions, "", "user: merhaba")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(q, prompt.DefaultUserName) {
		t.Error("questions prompt lacks default user name")
	}
	if !strings.Contains(q, "SPMSQ") || !strings.HasSuffix(q, "user: merhaba") {
		t.Errorf("questions prompt = %s", q)
	}
	if conv == q {
		t.Error("modes render the same prompt")
	}
}

func TestBuildUnknownMode(t *testing.T) {
	_, err := prompt.New().Build("nope", "x", "")
	if !errors.Is(err, prompt.ErrUnknownMode) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := prompt.ParseMode(" Questions "); err != nil || m != prompt.ModeQuestions {
		t.Errorf("ParseMode = %q, %v", m, err)
	}
	if _, err := prompt.ParseMode("session"); err == nil {
		t.Error("session is not client-selectable")
	}
}

func TestLoadDirOverrides(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "conversation.tmpl"), []byte("Hi {{.UserName}}"), 0o644); err != nil {
		t.Fatal(err)
	}
	g := prompt.New()
	if err := g.LoadDir(dir); err != nil {
		t.Fatal(err)
	}
	got, _ := g.Build(prompt.ModeConversation, "Ali", "")
	if got != "Hi Ali" {
		t.Errorf("override = %q", got)
	}
	if q, _ := g.Build(prompt.ModeQuestions, "Ali", ""); !strings.Contains(q, "SPMSQ") {
		t.Error("missing file replaced builtin")
	}

	if err := g.Override(prompt.ModeSession, "{{.Nope"); err == nil {
		t.Error("bad template accepted")
	}
}

func TestRenderContext(t *testing.T) {
	got := prompt.RenderContext([]prompt.Line{{Role: "user", Text: "a"}, {Role: "assistant", Text: "b"}})
	if got != "user: a\nassistant: b" {
		t.Errorf("RenderContext = %q", got)
	}
}
