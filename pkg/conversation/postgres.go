package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore keeps records in PostgreSQL with the pgvector extension.
type PostgresStore struct {
	sqlStore
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects to dsn and creates the schema. dim is the
// embedding dimension of the vector column.
func OpenPostgres(ctx context.Context, dsn string, dim int) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("conversation: postgres open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("conversation: postgres ping: %w", err)
	}
	s := &PostgresStore{sqlStore{
		db:        db,
		rebind:    dollarParams,
		vecParam:  "CAST(? AS vector)",
		encodeVec: func(v []float32) (any, error) { return vectorLiteral(v), nil },
		encodeTime: func(t time.Time) any { return t },
	}}
	err = s.migrate(ctx, []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			text TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			response_id TEXT,
			kind TEXT,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (user_id, response_id, kind)
		)`, dim),
		`CREATE INDEX IF NOT EXISTS idx_conversations_user_created ON conversations (user_id, created_at)`,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Search(ctx context.Context, userID string, query []float32, limit int, minSimilarity float64) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, text, metadata, created_at, 1 - (embedding <=> CAST($2 AS vector)) AS similarity
		FROM conversations
		WHERE user_id = $1 AND embedding IS NOT NULL
			AND 1 - (embedding <=> CAST($2 AS vector)) >= $3
		ORDER BY embedding <=> CAST($2 AS vector)
		LIMIT $4`, userID, vectorLiteral(query), minSimilarity, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: search: %w", err)
	}
	defer rows.Close()
	var out []Match
	for rows.Next() {
		var m Match
		rec, err := scanRecord(rows, &m.Similarity)
		if err != nil {
			return nil, err
		}
		m.Record = rec
		out = append(out, m)
	}
	return out, rows.Err()
}

// vectorLiteral formats v the way pgvector parses it: "[0.1,0.2]".
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
