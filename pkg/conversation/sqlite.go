package conversation

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"github.com/haivivi/ishe/pkg/vecstore"
)

// SQLiteStore keeps records in a single SQLite file. Embeddings are
// msgpack blobs scored in process, so it suits development and small
// deployments.
type SQLiteStore struct {
	sqlStore
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("conversation: sqlite open: %w", err)
	}
	// Each connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{sqlStore{
		db:       db,
		rebind:   func(q string) string { return q },
		vecParam: "?",
		encodeVec: func(v []float32) (any, error) {
			return msgpack.Marshal(v)
		},
		encodeTime: func(t time.Time) any { return t.UnixNano() },
	}}
	err = s.migrate(ctx, []string{
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			text TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			response_id TEXT,
			kind TEXT,
			embedding BLOB,
			created_at INTEGER NOT NULL,
			UNIQUE (user_id, response_id, kind)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user_created ON conversations (user_id, created_at)`,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Search(ctx context.Context, userID string, query []float32, limit int, minSimilarity float64) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, text, metadata, created_at, embedding
		FROM conversations WHERE user_id = ? AND embedding IS NOT NULL`, userID)
	if err != nil {
		return nil, fmt.Errorf("conversation: search: %w", err)
	}
	defer rows.Close()
	var out []Match
	for rows.Next() {
		var blob []byte
		rec, err := scanRecord(rows, &blob)
		if err != nil {
			return nil, err
		}
		var vec []float32
		if err := msgpack.Unmarshal(blob, &vec); err != nil {
			return nil, fmt.Errorf("conversation: decode embedding of %s: %w", rec.ID, err)
		}
		sim := float64(vecstore.CosineSimilarity(query, vec))
		if sim < minSimilarity {
			continue
		}
		out = append(out, Match{Record: rec, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.SortStableFunc(out, func(a, b Match) int { return cmp.Compare(b.Similarity, a.Similarity) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
