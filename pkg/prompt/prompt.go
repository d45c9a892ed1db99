// Package prompt renders the system instructions sent to the realtime
// model. Prompt text lives in templates; the built-in ones are embedded and
// any of them can be replaced at runtime.
package prompt

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
)

// Mode selects the prompt family.
type Mode string

const (
	ModeConversation Mode = "conversation"
	ModeQuestions    Mode = "questions"
	// ModeSession is the backend's prompt for a freshly minted session.
	ModeSession Mode = "session"
)

// DefaultUserName is used when the user has no display name.
const DefaultUserName = "Değerli Kullanıcı"

// ErrUnknownMode is returned for a mode with no template.
var ErrUnknownMode = errors.New("prompt: unknown mode")

// ParseMode validates a client-selectable mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeConversation, ModeQuestions:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

//go:embed templates/*.tmpl
var builtin embed.FS

// Data is what templates see.
type Data struct {
	UserName string
	Context  string
}

// Generator renders prompts. It is safe for concurrent use.
type Generator struct {
	mu    sync.RWMutex
	tmpls map[Mode]*template.Template
}

// New returns a Generator with the built-in templates.
func New() *Generator {
	g := &Generator{tmpls: make(map[Mode]*template.Template)}
	for _, m := range []Mode{ModeConversation, ModeQuestions, ModeSession} {
		name := "templates/" + string(m) + ".tmpl"
		g.tmpls[m] = template.Must(template.ParseFS(builtin, name))
	}
	return g
}

// Override replaces the template for mode.
func (g *Generator) Override(mode Mode, text string) error {
	t, err := template.New(string(mode)).Parse(text)
	if err != nil {
		return fmt.Errorf("prompt: parse %s: %w", mode, err)
	}
	g.mu.Lock()
	g.tmpls[mode] = t
	g.mu.Unlock()
	return nil
}

// LoadDir overrides templates from <dir>/<mode>.tmpl files. Missing files
// keep the built-in template.
func (g *Generator) LoadDir(dir string) error {
	for _, m := range []Mode{ModeConversation, ModeQuestions, ModeSession} {
		data, err := os.ReadFile(filepath.Join(dir, string(m)+".tmpl"))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("prompt: %w", err)
		}
		if err := g.Override(m, string(data)); err != nil {
			return err
		}
	}
	return nil
}

// Build renders the prompt for mode.
func (g *Generator) Build(mode Mode, userName, context string) (string, error) {
	g.mu.RLock()
	t, ok := g.tmpls[mode]
	g.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if strings.TrimSpace(userName) == "" {
		userName = DefaultUserName
	}
	var b strings.Builder
	if err := t.Execute(&b, Data{UserName: userName, Context: strings.TrimSpace(context)}); err != nil {
		return "", fmt.Errorf("prompt: render %s: %w", mode, err)
	}
	return strings.TrimSpace(b.String()), nil
}

// Line is one entry of conversation context.
type Line struct {
	Role string
	Text string
}

// RenderContext formats lines as "role: text", one per line.
func RenderContext(lines []Line) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.Role)
		b.WriteString(": ")
		b.WriteString(l.Text)
	}
	return b.String()
}
