package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/ishe/pkg/embed"
)

// Defaults for Service queries.
const (
	DefaultSearchLimit  = 5
	DefaultHistoryLimit = 10
	// ContextRecords bounds how many records feed a session prompt.
	ContextRecords = 100
)

// Service adds embeddings to records and implements the read views on top
// of a Store.
type Service struct {
	store    Store
	embedder embed.Embedder
	now      func() time.Time
	logger   *slog.Logger
	minSim   float64
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption { return func(s *Service) { s.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption { return func(s *Service) { s.logger = l } }

// WithMinSimilarity drops search hits below min.
func WithMinSimilarity(min float64) ServiceOption { return func(s *Service) { s.minSim = min } }

// NewService wires a store and an embedder.
func NewService(store Store, embedder embed.Embedder, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		embedder: embedder,
		now:      time.Now,
		logger:   slog.Default(),
		minSim:   -1,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("component", "conversation")
	return s
}

// Add stores text for userID. A duplicate (responseId, type) pair is
// reported as ErrDuplicate and is not an error for callers that only want
// at-least-once delivery.
func (s *Service) Add(ctx context.Context, userID, text string, metadata map[string]any) (Record, error) {
	if strings.TrimSpace(text) == "" {
		return Record{}, ErrEmptyText
	}
	now := s.now()
	rec := Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		Text:      text,
		Metadata:  NormalizeMetadata(metadata, now),
		Timestamp: now.UTC(),
	}
	vec, err := s.embedder.Embed(ctx, text)
	switch {
	case errors.Is(err, embed.ErrEmptyInput):
		// Punctuation-only text is stored without a vector.
	case err != nil:
		return Record{}, fmt.Errorf("conversation: embed: %w", err)
	default:
		rec.Embedding = vec
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicate) {
			s.logger.Info("skipping duplicate record",
				"user_id", userID, "response_id", rec.ResponseID(), "type", rec.Type())
		}
		return Record{}, err
	}
	s.logger.Debug("record added", "user_id", userID, "id", rec.ID, "type", rec.Type())
	return rec, nil
}

// Search embeds query and returns userID's most similar records.
func (s *Service) Search(ctx context.Context, userID, query string, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("conversation: embed query: %w", err)
	}
	return s.store.Search(ctx, userID, vec, limit, s.minSim)
}

// ByUser returns all of userID's records, oldest first.
func (s *Service) ByUser(ctx context.Context, userID string) ([]Record, error) {
	return s.store.ByUser(ctx, userID, 0)
}

// History returns exchanges built from userID's newest limit records.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	recs, err := s.store.ByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	return GroupHistory(recs), nil
}

// Context renders userID's recent exchanges for a session prompt.
func (s *Service) Context(ctx context.Context, userID string) (string, error) {
	recs, err := s.store.ByUser(ctx, userID, ContextRecords)
	if err != nil {
		return "", err
	}
	return FormatContext(GroupHistory(recs)), nil
}

// Close closes the store.
func (s *Service) Close() error {
	return s.store.Close()
}
