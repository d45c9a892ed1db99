package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// sqlStore holds the queries PostgresStore and SQLiteStore share. Queries
// are written with '?' placeholders and rebound per driver.
type sqlStore struct {
	db     *sql.DB
	rebind func(string) string
	// vecParam wraps the embedding placeholder, e.g. "CAST(? AS vector)".
	vecParam  string
	encodeVec func([]float32) (any, error)
	// encodeTime converts created_at for the driver. Scans accept either a
	// time.Time or unix nanoseconds back.
	encodeTime func(time.Time) any
}

func (s *sqlStore) migrate(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("conversation: migrate: %w", err)
		}
	}
	return nil
}

func (s *sqlStore) Insert(ctx context.Context, rec Record) error {
	md, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("conversation: encode metadata: %w", err)
	}
	var vec any
	if len(rec.Embedding) > 0 {
		if vec, err = s.encodeVec(rec.Embedding); err != nil {
			return fmt.Errorf("conversation: encode embedding: %w", err)
		}
	}
	q := s.rebind(`INSERT INTO conversations
		(id, user_id, text, metadata, response_id, kind, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ` + s.vecParam + `, ?)
		ON CONFLICT DO NOTHING`)
	res, err := s.db.ExecContext(ctx, q,
		rec.ID, rec.UserID, rec.Text, string(md),
		nullable(rec.ResponseID()), nullable(rec.Type()),
		vec, s.encodeTime(rec.Timestamp.UTC()))
	if err != nil {
		return fmt.Errorf("conversation: insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("conversation: insert: %w", err)
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *sqlStore) ByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	q := `SELECT id, user_id, text, metadata, created_at FROM conversations
		WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("conversation: by user: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner, extra ...any) (Record, error) {
	var (
		rec Record
		md  []byte
		ts  any
	)
	dest := append([]any{&rec.ID, &rec.UserID, &rec.Text, &md, &ts}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Record{}, fmt.Errorf("conversation: scan: %w", err)
	}
	if err := json.Unmarshal(md, &rec.Metadata); err != nil {
		return Record{}, fmt.Errorf("conversation: decode metadata of %s: %w", rec.ID, err)
	}
	switch v := ts.(type) {
	case time.Time:
		rec.Timestamp = v.UTC()
	case int64:
		rec.Timestamp = time.Unix(0, v).UTC()
	default:
		return Record{}, fmt.Errorf("conversation: unexpected created_at %T for %s", ts, rec.ID)
	}
	return rec, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

// dollarParams rewrites '?' placeholders as $1, $2, ...
func dollarParams(q string) string {
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
