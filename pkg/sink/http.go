package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultQueueSize bounds records waiting to be posted.
const DefaultQueueSize = 64

// ErrClosed is returned by operations on a closed HTTPSink.
var ErrClosed = errors.New("sink: closed")

type record struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// HTTPSink posts records to the backend's /api/conversations and uploads
// recordings to /api/audio/upload.
type HTTPSink struct {
	baseURL    string
	token      func() string
	httpClient *http.Client
	logger     *slog.Logger

	queue chan record
	done  chan struct{}

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

var (
	_ Sink     = (*HTTPSink)(nil)
	_ Uploader = (*HTTPSink)(nil)
)

// Option configures an HTTPSink.
type Option func(*HTTPSink)

// WithToken sets a static bearer token.
func WithToken(token string) Option {
	return func(s *HTTPSink) { s.token = func() string { return token } }
}

// WithTokenSource sets a function returning the current bearer token.
func WithTokenSource(fn func() string) Option {
	return func(s *HTTPSink) { s.token = fn }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *HTTPSink) { s.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *HTTPSink) { s.logger = l }
}

// WithQueueSize sets the queue capacity.
func WithQueueSize(n int) Option {
	return func(s *HTTPSink) {
		if n > 0 {
			s.queue = make(chan record, n)
		}
	}
}

// NewHTTPSink starts the worker. Call Close to drain and stop it.
func NewHTTPSink(baseURL string, opts ...Option) *HTTPSink {
	s := &HTTPSink{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      func() string { return "" },
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     slog.Default(),
		queue:      make(chan record, DefaultQueueSize),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "sink")
	go s.run()
	return s
}

// Store queues a record. Blank text is skipped; a full queue drops the
// record with a warning.
func (s *HTTPSink) Store(text string, metadata Metadata) {
	if strings.TrimSpace(text) == "" {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Warn("store after close", "type", metadata["type"])
		return
	}
	select {
	case s.queue <- record{Text: text, Metadata: metadata}:
	default:
		s.logger.Warn("queue full, dropping record", "type", metadata["type"], "response_id", metadata["responseId"])
	}
}

func (s *HTTPSink) run() {
	defer close(s.done)
	for r := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.httpClient.Timeout)
		if err := s.post(ctx, r); err != nil {
			s.logger.Error("store conversation", "error", err, "type", r.Metadata["type"])
		}
		cancel()
	}
}

func (s *HTTPSink) post(ctx context.Context, r record) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/conversations", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (s *HTTPSink) authorize(req *http.Request) {
	if tok := s.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
}

// Close stops accepting records and waits for the queue to drain or ctx to
// end.
func (s *HTTPSink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UploadAudio posts a recording as multipart form field "audio" together
// with its duration in milliseconds and a timestamp.
func (s *HTTPSink) UploadAudio(ctx context.Context, name string, audio io.Reader, duration time.Duration) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUpload(mw, name, audio, duration))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/audio/upload", pr)
	if err != nil {
		pr.Close()
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	s.authorize(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		pr.Close()
		return fmt.Errorf("upload audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("upload audio: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func writeUpload(mw *multipart.Writer, name string, audio io.Reader, duration time.Duration) error {
	if err := mw.WriteField("duration", strconv.FormatInt(duration.Milliseconds(), 10)); err != nil {
		return err
	}
	if err := mw.WriteField("timestamp", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	fw, err := mw.CreateFormFile("audio", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, audio); err != nil {
		return err
	}
	return mw.Close()
}

// Conversation is one stored record as returned by the backend.
type Conversation struct {
	Text      string            `json:"text"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata"`
}

// Exchange is one user/assistant pair from the backend's history view.
type Exchange struct {
	UserInput         string    `json:"userInput"`
	AssistantResponse string    `json:"assistantResponse"`
	Timestamp         time.Time `json:"timestamp"`
}

// Match is a similarity search hit.
type Match struct {
	Conversation
	Similarity float64 `json:"similarity"`
}

// History fetches the caller's most recent exchanges, oldest first.
func (s *HTTPSink) History(ctx context.Context, limit int) ([]Exchange, error) {
	var out []Exchange
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	return out, s.getJSON(ctx, "/api/conversations/history?"+q.Encode(), &out)
}

// Search returns the caller's records most similar to query.
func (s *HTTPSink) Search(ctx context.Context, query string, limit int) ([]Match, error) {
	var out []Match
	q := url.Values{"query": {query}, "limit": {strconv.Itoa(limit)}}
	return out, s.getJSON(ctx, "/api/conversations/search?"+q.Encode(), &out)
}

func (s *HTTPSink) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	s.authorize(req)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
