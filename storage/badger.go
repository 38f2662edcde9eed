package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/jonwraymond/cachewatch/observe"
)

const (
	kvPrefix = "kv/"
	dbPrefix = "db/"
)

// Config configures a BadgerStore.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string `yaml:"path"`

	// InMemory keeps all data in memory. Useful for tests.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `yaml:"sync_writes"`

	// GCDiscardRatio is the value-log garbage ratio Reclaim asks for.
	// Default: 0.5
	GCDiscardRatio float64 `yaml:"gc_discard_ratio"`

	// Logger receives BadgerDB's internal log lines. If nil, they are dropped.
	Logger observe.Logger `yaml:"-"`
}

// badgerLogger adapts observe.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger observe.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// BadgerStore implements KVStore and ObjectDB on one BadgerDB instance.
// Plain keys live under "kv/"; object database "name" lives under
// "db/name/".
type BadgerStore struct {
	db    *badger.DB
	ratio float64
}

// Open opens a BadgerStore with the given configuration.
func Open(cfg Config) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, ErrPathRequired
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("storage: create directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open badger: %w", err)
	}

	ratio := cfg.GCDiscardRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}
	return &BadgerStore{db: db, ratio: ratio}, nil
}

// OpenInMemory opens an in-memory store.
func OpenInMemory() (*BadgerStore, error) {
	return Open(Config{InMemory: true})
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidName
	}
	return s.read(ctx, kvPrefix+key)
}

// Set stores value under key.
func (s *BadgerStore) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrInvalidName
	}
	return s.write(ctx, kvPrefix+key, value)
}

// Delete removes key. Missing keys are ignored.
func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(kvPrefix + key))
	})
}

// Keys lists every key currently in the KV namespace.
func (s *BadgerStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.scan(ctx, kvPrefix, func(rest string) {
		keys = append(keys, rest)
	})
	return keys, err
}

// Put stores value under key in the named object database.
func (s *BadgerStore) Put(ctx context.Context, db, key string, value []byte) error {
	if err := validDBName(db); err != nil {
		return err
	}
	if key == "" {
		return ErrInvalidName
	}
	return s.write(ctx, dbPrefix+db+"/"+key, value)
}

// Fetch reads key from the named object database.
func (s *BadgerStore) Fetch(ctx context.Context, db, key string) ([]byte, error) {
	if err := validDBName(db); err != nil {
		return nil, err
	}
	return s.read(ctx, dbPrefix+db+"/"+key)
}

// Databases lists the object databases that currently hold at least one key.
func (s *BadgerStore) Databases(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var names []string
	err := s.scan(ctx, dbPrefix, func(rest string) {
		name, _, ok := strings.Cut(rest, "/")
		if !ok {
			return
		}
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	})
	return names, err
}

// Drop deletes every key of the named object database. Keys are collected
// with a prefix scan and removed through a write batch, so writers to other
// keys are never blocked the way DropPrefix blocks them.
func (s *BadgerStore) Drop(ctx context.Context, db string) error {
	if err := validDBName(db); err != nil {
		return err
	}
	prefix := dbPrefix + db + "/"

	var keys [][]byte
	if err := s.scan(ctx, prefix, func(rest string) {
		keys = append(keys, []byte(prefix+rest))
	}); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("storage: drop %s: %w", db, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("storage: drop %s: %w", db, err)
	}
	return nil
}

// Reclaim runs one value-log garbage collection pass. Having nothing to
// rewrite, or running in memory, is not an error.
func (s *BadgerStore) Reclaim(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.RunValueLogGC(s.ratio)
	if err == nil || errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return nil
	}
	return fmt.Errorf("storage: value log gc: %w", err)
}

func (s *BadgerStore) read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return out, err
}

func (s *BadgerStore) write(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// scan calls fn with the remainder of every key under prefix.
func (s *BadgerStore) scan(ctx context.Context, prefix string, fn func(rest string)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(strings.TrimPrefix(string(it.Item().Key()), prefix))
		}
		return nil
	})
}

func validDBName(name string) error {
	if name == "" || strings.Contains(name, "/") {
		return ErrInvalidName
	}
	return nil
}

var (
	_ KVStore  = (*BadgerStore)(nil)
	_ ObjectDB = (*BadgerStore)(nil)
)
