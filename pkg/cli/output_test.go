package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOutput_JSON(t *testing.T) {
	var buf bytes.Buffer

	data := map[string]any{
		"name":  "test",
		"value": 123,
	}

	if err := Output(data, OutputOptions{Format: FormatJSON, Writer: &buf}); err != nil {
		t.Fatalf("Output error: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}
	if result["name"] != "test" {
		t.Errorf("name = %v, want %q", result["name"], "test")
	}
	if !strings.Contains(buf.String(), "\n  ") {
		t.Errorf("JSON should be indented, got: %s", buf.String())
	}
}

func TestOutput_DefaultFormat(t *testing.T) {
	var buf bytes.Buffer

	// Empty format should default to YAML
	if err := Output(map[string]string{"key": "value"}, OutputOptions{Writer: &buf}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	if !strings.Contains(buf.String(), "key: value") {
		t.Errorf("Default format should be YAML, got: %s", buf.String())
	}
}

type greeting struct{ Name string }

func (g greeting) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "merhaba %s\n", g.Name)
	return err
}

func TestOutput_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := Output(greeting{Name: "Ayşe"}, OutputOptions{Format: FormatText, Writer: &buf}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	if buf.String() != "merhaba Ayşe\n" {
		t.Errorf("Output = %q", buf.String())
	}

	// Results without a text form fall back to YAML.
	buf.Reset()
	if err := Output(map[string]int{"count": 42}, OutputOptions{Format: FormatText, Writer: &buf}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	if !strings.Contains(buf.String(), "count: 42") {
		t.Errorf("Output should contain YAML, got: %s", buf.String())
	}
}

func TestOutput_UnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := Output("data", OutputOptions{Format: "invalid", Writer: &buf}); err == nil {
		t.Error("Output should fail for unsupported format")
	}
}

func TestOutput_ToFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "output.json")

	if err := Output(map[string]string{"key": "value"}, OutputOptions{Format: FormatJSON, File: filePath}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	content, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if !strings.Contains(string(content), `"key": "value"`) {
		t.Errorf("file content = %s", content)
	}
}
