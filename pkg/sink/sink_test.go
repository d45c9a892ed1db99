package sink_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/ishe/pkg/sink"
	"github.com/haivivi/ishe/pkg/turns"
)

type stored struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

type fakeBackend struct {
	mu      sync.Mutex
	records []stored
	auth    []string
	uploads []string
}

func (b *fakeBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/conversations", func(w http.ResponseWriter, r *http.Request) {
		var rec stored
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			t.Errorf("decode: %v", err)
		}
		b.mu.Lock()
		b.records = append(b.records, rec)
		b.auth = append(b.auth, r.Header.Get("Authorization"))
		b.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("POST /api/audio/upload", func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("audio")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		b.mu.Lock()
		b.uploads = append(b.uploads, hdr.Filename+":"+string(data)+":"+r.FormValue("duration"))
		b.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /api/conversations/history", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "3" {
			t.Errorf("limit = %q", r.URL.Query().Get("limit"))
		}
		io.WriteString(w, `[{"userInput":"Merhaba","assistantResponse":"Selam","timestamp":"2025-06-03T12:00:00Z"}]`)
	})
	return mux
}

func TestHTTPSinkStoresTurns(t *testing.T) {
	b := &fakeBackend{}
	srv := httptest.NewServer(b.handler(t))
	defer srv.Close()

	s := sink.NewHTTPSink(srv.URL, sink.WithToken("tok"))
	ts := sink.TurnSink{Sink: s, Mode: func() string { return "conversation" }}

	ts.StorePairing("r1", "Merhaba")
	start := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)
	ts.StoreTurn(turns.Turn{
		ResponseID:    "r1",
		UserInput:     "Merhaba",
		AssistantText: "Merhaba, nasılsınız?",
		StartedAt:     start,
		CompletedAt:   start.Add(2 * time.Second),
	})
	s.Store("   ", sink.Metadata{"type": "blank"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) != 2 {
		t.Fatalf("records = %+v", b.records)
	}
	if r := b.records[0]; r.Text != "Merhaba" || r.Metadata["type"] != sink.TypeUserInput || r.Metadata["responseId"] != "r1" {
		t.Errorf("pairing record = %+v", r)
	}
	r := b.records[1]
	if r.Text != "Merhaba, nasılsınız?" || r.Metadata["type"] != sink.TypeAssistantResponse {
		t.Errorf("turn record = %+v", r)
	}
	if r.Metadata["userInput"] != "Merhaba" || r.Metadata["mode"] != "conversation" {
		t.Errorf("turn metadata = %v", r.Metadata)
	}
	if r.Metadata["completedAt"] != "2025-06-03T12:00:02Z" {
		t.Errorf("completedAt = %q", r.Metadata["completedAt"])
	}
	for _, a := range b.auth {
		if a != "Bearer tok" {
			t.Errorf("Authorization = %q", a)
		}
	}
}

func TestHTTPSinkSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := sink.NewHTTPSink(srv.URL)
	s.Store("text", sink.Metadata{"type": sink.TypeAssistantResponse})
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Store after close is a logged no-op, not a panic.
	s.Store("late", nil)
	s.Close(context.Background())
}

func TestTurnSinkOmitsEmptyUserInput(t *testing.T) {
	var got sink.Metadata
	ts := sink.TurnSink{Sink: sinkFunc(func(_ string, md sink.Metadata) { got = md })}
	ts.StoreTurn(turns.Turn{ResponseID: "r9", AssistantText: "x"})
	if _, ok := got["userInput"]; ok {
		t.Errorf("metadata has userInput: %v", got)
	}
	if _, ok := got["mode"]; ok {
		t.Errorf("metadata has mode without a mode source: %v", got)
	}
}

type sinkFunc func(string, sink.Metadata)

func (f sinkFunc) Store(text string, md sink.Metadata) { f(text, md) }

func TestUploadAudio(t *testing.T) {
	b := &fakeBackend{}
	srv := httptest.NewServer(b.handler(t))
	defer srv.Close()
	s := sink.NewHTTPSink(srv.URL)
	defer s.Close(context.Background())

	err := s.UploadAudio(context.Background(), "rec.ogg", strings.NewReader("OggS"), 1500*time.Millisecond)
	if err != nil {
		t.Fatalf("UploadAudio: %v", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.uploads) != 1 || b.uploads[0] != "rec.ogg:OggS:1500" {
		t.Errorf("uploads = %v", b.uploads)
	}
}

func TestHistory(t *testing.T) {
	b := &fakeBackend{}
	srv := httptest.NewServer(b.handler(t))
	defer srv.Close()
	s := sink.NewHTTPSink(srv.URL)
	defer s.Close(context.Background())

	h, err := s.History(context.Background(), 3)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(h) != 1 || h[0].UserInput != "Merhaba" || h[0].AssistantResponse != "Selam" {
		t.Errorf("history = %+v", h)
	}
}
