// Package conversation stores conversation records with their embeddings
// and answers the backend's history and similarity queries.
//
// A record is one text row: either the user's side (type user_input) or
// the assistant's reply (type assistant_response) of a response. Rows of
// one user sharing responseId and type are stored once.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Metadata keys with meaning to the store.
const (
	KeyType       = "type"
	KeyResponseID = "responseId"
	KeyUserInput  = "userInput"
	KeyTimestamp  = "timestamp"

	TypeUserInput         = "user_input"
	TypeAssistantResponse = "assistant_response"
)

var (
	// ErrDuplicate is returned by Insert when the (responseId, type) pair
	// already exists for the user.
	ErrDuplicate = errors.New("conversation: duplicate record")
	// ErrEmptyText is returned for blank records.
	ErrEmptyText = errors.New("conversation: empty text")
)

// Record is one stored row.
type Record struct {
	ID        string            `json:"id" msgpack:"id"`
	UserID    string            `json:"userId" msgpack:"user_id"`
	Text      string            `json:"text" msgpack:"text"`
	Metadata  map[string]string `json:"metadata" msgpack:"metadata"`
	Timestamp time.Time         `json:"timestamp" msgpack:"timestamp"`
	Embedding []float32         `json:"-" msgpack:"embedding,omitempty"`
}

// ResponseID returns the record's response id, if any.
func (r *Record) ResponseID() string { return r.Metadata[KeyResponseID] }

// Type returns the record type, if any.
func (r *Record) Type() string { return r.Metadata[KeyType] }

// Match is a similarity search hit.
type Match struct {
	Record
	Similarity float64 `json:"similarity"`
}

// Exchange is one user/assistant pair of the history view.
type Exchange struct {
	UserInput         string    `json:"userInput"`
	AssistantResponse string    `json:"assistantResponse"`
	Timestamp         time.Time `json:"timestamp"`
}

// Store persists records. Implementations are safe for concurrent use.
type Store interface {
	// Insert stores rec or returns ErrDuplicate.
	Insert(ctx context.Context, rec Record) error
	// Search returns up to limit of userID's records with similarity at
	// least minSimilarity to query, most similar first.
	Search(ctx context.Context, userID string, query []float32, limit int, minSimilarity float64) ([]Match, error)
	// ByUser returns the newest limit records of userID in chronological
	// order. limit <= 0 returns all of them.
	ByUser(ctx context.Context, userID string, limit int) ([]Record, error)
	Close() error
}

// NormalizeMetadata turns client metadata into strings: nil values are
// dropped, strings are kept, objects and arrays become JSON and everything
// else is formatted. The timestamp key is always set to now.
func NormalizeMetadata(md map[string]any, now time.Time) map[string]string {
	out := make(map[string]string, len(md)+1)
	for k, v := range md {
		switch v := v.(type) {
		case nil:
		case string:
			out[k] = v
		case bool:
			out[k] = strconv.FormatBool(v)
		case float64:
			out[k] = strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			out[k] = v.String()
		case map[string]any, []any:
			b, err := json.Marshal(v)
			if err != nil {
				continue
			}
			out[k] = string(b)
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	out[KeyTimestamp] = now.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	return out
}

// GroupHistory folds records into exchanges, one per responseId, oldest
// first. The assistant row of a response carries the exchange; user_input
// rows only fill in a missing userInput. Rows without a responseId are
// skipped.
func GroupHistory(records []Record) []Exchange {
	type slot struct {
		ex       Exchange
		answered bool
	}
	slots := make(map[string]*slot)
	var order []string
	for _, r := range records {
		id := r.ResponseID()
		if id == "" {
			continue
		}
		s := slots[id]
		if s == nil {
			s = &slot{}
			slots[id] = s
			order = append(order, id)
		}
		if r.Type() == TypeUserInput {
			if s.ex.UserInput == "" {
				s.ex.UserInput = r.Text
			}
			if s.ex.Timestamp.IsZero() {
				s.ex.Timestamp = r.Timestamp
			}
			continue
		}
		if s.answered {
			continue
		}
		s.answered = true
		s.ex.AssistantResponse = r.Text
		s.ex.Timestamp = r.Timestamp
		if in := r.Metadata[KeyUserInput]; in != "" {
			s.ex.UserInput = in
		}
	}
	out := make([]Exchange, 0, len(order))
	for _, id := range order {
		if s := slots[id]; s.answered {
			out = append(out, s.ex)
		}
	}
	slices.SortStableFunc(out, func(a, b Exchange) int { return a.Timestamp.Compare(b.Timestamp) })
	return out
}

// FormatContext renders exchanges as "User: …\nAssistant: …" blocks
// separated by blank lines.
func FormatContext(exchanges []Exchange) string {
	blocks := make([]string, 0, len(exchanges))
	for _, e := range exchanges {
		if e.UserInput != "" {
			blocks = append(blocks, "User: "+e.UserInput+"\nAssistant: "+e.AssistantResponse)
		} else {
			blocks = append(blocks, "Assistant: "+e.AssistantResponse)
		}
	}
	return strings.Join(blocks, "\n\n")
}
