package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/ishe/pkg/kv"
	"github.com/haivivi/ishe/pkg/vecstore"
)

// KVStore keeps msgpack-encoded records in a kv.Store and their vectors in
// a vecstore.Index rebuilt at open.
//
// Layout:
//
//	conv:<userID>:<unix nanos>-<id>          record
//	dedup:<userID>:<responseId>:<type>       record key
type KVStore struct {
	kv  kv.Store
	idx vecstore.Index
	log *slog.Logger
}

var _ Store = (*KVStore)(nil)

// OpenKV loads the vector index from kvs. The KVStore owns kvs and idx.
func OpenKV(ctx context.Context, kvs kv.Store, idx vecstore.Index, logger *slog.Logger) (*KVStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &KVStore{kv: kvs, idx: idx, log: logger.With("component", "conversation.kv")}
	n := 0
	for e, err := range kvs.Scan(ctx, kv.Key{"conv"}) {
		if err != nil {
			return nil, fmt.Errorf("conversation: load index: %w", err)
		}
		var rec Record
		if err := msgpack.Unmarshal(e.Value, &rec); err != nil {
			s.log.Warn("skipping undecodable record", "key", e.Key.String(), "error", err)
			continue
		}
		if len(rec.Embedding) > 0 && len(e.Key) == 3 {
			if err := idx.Insert(e.Key[2], rec.UserID, rec.Embedding); err != nil {
				return nil, err
			}
			n++
		}
	}
	s.log.Info("conversation index loaded", "vectors", n)
	return s, nil
}

func recordKey(rec *Record) string {
	return fmt.Sprintf("%020d-%s", rec.Timestamp.UnixNano(), rec.ID)
}

func (s *KVStore) Insert(ctx context.Context, rec Record) error {
	rk := recordKey(&rec)
	var dedup kv.Key
	if id, typ := rec.ResponseID(), rec.Type(); id != "" && typ != "" {
		dedup = kv.Key{"dedup", rec.UserID, id, typ}
		created, err := s.kv.PutIfAbsent(ctx, dedup, []byte(rk))
		if err != nil {
			return fmt.Errorf("conversation: dedup: %w", err)
		}
		if !created {
			return ErrDuplicate
		}
	}
	data, err := msgpack.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("conversation: encode: %w", err)
	}
	if err := s.kv.Put(ctx, kv.Key{"conv", rec.UserID, rk}, data); err != nil {
		if dedup != nil {
			if derr := s.kv.Delete(ctx, dedup); derr != nil {
				s.log.Error("release dedup key", "key", dedup.String(), "error", derr)
			}
		}
		return fmt.Errorf("conversation: put: %w", err)
	}
	if len(rec.Embedding) > 0 {
		if err := s.idx.Insert(rk, rec.UserID, rec.Embedding); err != nil {
			return fmt.Errorf("conversation: index: %w", err)
		}
	}
	return nil
}

func (s *KVStore) Search(ctx context.Context, userID string, query []float32, limit int, minSimilarity float64) ([]Match, error) {
	hits, err := s.idx.Search(userID, query, limit, float32(minSimilarity))
	if err != nil {
		return nil, err
	}
	out := make([]Match, 0, len(hits))
	for _, h := range hits {
		rec, err := s.get(ctx, userID, h.ID)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Match{Record: rec, Similarity: float64(h.Similarity)})
	}
	return out, nil
}

func (s *KVStore) get(ctx context.Context, userID, rk string) (Record, error) {
	data, err := s.kv.Get(ctx, kv.Key{"conv", userID, rk})
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("conversation: decode %s: %w", rk, err)
	}
	return rec, nil
}

func (s *KVStore) ByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	var out []Record
	for e, err := range s.kv.Scan(ctx, kv.Key{"conv", userID}) {
		if err != nil {
			return nil, err
		}
		var rec Record
		if err := msgpack.Unmarshal(e.Value, &rec); err != nil {
			return nil, fmt.Errorf("conversation: decode %s: %w", e.Key, err)
		}
		rec.Embedding = nil
		out = append(out, rec)
	}
	if limit > 0 && len(out) > limit {
		out = slices.Clone(out[len(out)-limit:])
	}
	return out, nil
}

func (s *KVStore) Close() error {
	return errors.Join(s.idx.Close(), s.kv.Close())
}
