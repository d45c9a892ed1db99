package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
)

// Badger is a Store backed by BadgerDB.
type Badger struct {
	db *badger.DB
}

var _ Store = (*Badger)(nil)

// BadgerOptions configures OpenBadger.
type BadgerOptions struct {
	// Dir holds the data files. Required unless InMemory.
	Dir string
	// InMemory keeps everything in RAM.
	InMemory bool
	// Logger receives badger's warnings and errors. Defaults to slog.Default.
	Logger *slog.Logger
}

// OpenBadger opens or creates a database.
func OpenBadger(o BadgerOptions) (*Badger, error) {
	if !o.InMemory && o.Dir == "" {
		return nil, errors.New("kv: badger dir is required")
	}
	opts := badger.DefaultOptions(o.Dir)
	if o.InMemory {
		opts = opts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.WithLogger(badgerLogger{logger.With("component", "badger")})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kv: open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Get(_ context.Context, key Key) ([]byte, error) {
	k, err := encode(key)
	if err != nil {
		return nil, err
	}
	var val []byte
	err = b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return val, err
}

func (b *Badger) Put(_ context.Context, key Key, value []byte) error {
	k, err := encode(key)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, value)
	})
}

// PutIfAbsent relies on badger's optimistic transactions: a concurrent
// writer of the same key makes the commit fail with ErrConflict, which is
// retried once and then observes the key.
func (b *Badger) PutIfAbsent(ctx context.Context, key Key, value []byte) (bool, error) {
	k, err := encode(key)
	if err != nil {
		return false, err
	}
	for attempt := 0; ; attempt++ {
		var created bool
		err := b.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(k)
			switch {
			case err == nil:
				return nil
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}
			created = true
			return txn.Set(k, value)
		})
		if errors.Is(err, badger.ErrConflict) && attempt == 0 {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			continue
		}
		if err != nil {
			return false, err
		}
		return created, nil
	}
}

func (b *Badger) Delete(_ context.Context, key Key) error {
	k, err := encode(key)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}

func (b *Badger) Scan(_ context.Context, prefix Key) iter.Seq2[Entry, error] {
	p, err := prefixBytes(prefix)
	return func(yield func(Entry, error) bool) {
		if err != nil {
			yield(Entry{}, err)
			return
		}
		stopped := false
		err := b.db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 64, Prefix: p})
			defer it.Close()
			for it.Seek(p); it.ValidForPrefix(p); it.Next() {
				item := it.Item()
				val, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				if !yield(Entry{Key: decode(item.KeyCopy(nil)), Value: val}, nil) {
					stopped = true
					return nil
				}
			}
			return nil
		})
		if err != nil && !stopped {
			yield(Entry{}, err)
		}
	}
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// badgerLogger routes badger output to slog, dropping its chatty info and
// debug lines.
type badgerLogger struct{ l *slog.Logger }

func (g badgerLogger) Errorf(f string, v ...any)   { g.l.Error(fmt.Sprintf(f, v...)) }
func (g badgerLogger) Warningf(f string, v ...any) { g.l.Warn(fmt.Sprintf(f, v...)) }
func (badgerLogger) Infof(string, ...any)          {}
func (badgerLogger) Debugf(string, ...any)         {}
