package diagnosis

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

const keyPrefix = "diagnosis:"

// CacheOptions configures the diagnosis cache.
type CacheOptions struct {
	// Dir is the badger data directory. Required unless InMemory is set.
	Dir string

	// InMemory runs badger without disk persistence.
	InMemory bool

	// TTL expires entries. Zero keeps them forever.
	TTL time.Duration

	Logger *slog.Logger
}

// Cache stores diagnosis results keyed by frame hash.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenCache opens a badger-backed cache.
func OpenCache(opts CacheOptions) (*Cache, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("diagnosis: cache dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{logger: logger.With("component", "badger")})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open diagnosis cache: %w", err)
	}
	return &Cache{db: db, ttl: opts.TTL}, nil
}

// Get returns the cached result for key.
func (c *Cache) Get(key string) (Result, bool, error) {
	var val []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	var r Result
	if err := msgpack.Unmarshal(val, &r); err != nil {
		return Result{}, false, fmt.Errorf("decode cached diagnosis: %w", err)
	}
	return r, true, nil
}

// Put stores r under key.
func (c *Cache) Put(key string, r Result) error {
	data, err := msgpack.Marshal(&r)
	if err != nil {
		return fmt.Errorf("encode diagnosis: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(keyPrefix+key), data)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// badgerLogger routes badger warnings and errors to slog and drops the rest.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(f, v...))
}

func (l badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(f, v...))
}

func (badgerLogger) Infof(string, ...interface{})  {}
func (badgerLogger) Debugf(string, ...interface{}) {}
