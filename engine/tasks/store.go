// Package tasks keeps the last known status of every ingestion task in a
// local Badger database so the API can answer status queries.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/ragdesk/engine/domain"
	"github.com/WessleyAI/ragdesk/pkg/natsutil"
)

// DefaultTTL bounds how long a status is kept after its last update.
const DefaultTTL = 7 * 24 * time.Hour

const keyPrefix = "task/"

// badgerLogger adapts slog.Logger to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, items ...any)   { l.logger.Error(fmt.Sprintf(msg, items...)) }
func (l *badgerLogger) Warningf(msg string, items ...any) { l.logger.Warn(fmt.Sprintf(msg, items...)) }
func (l *badgerLogger) Infof(msg string, items ...any)    { l.logger.Debug(fmt.Sprintf(msg, items...)) }
func (l *badgerLogger) Debugf(msg string, items ...any)   { l.logger.Debug(fmt.Sprintf(msg, items...)) }

// Store is safe for concurrent use.
type Store struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// Open opens or creates the database at dir. With inMemory set, dir is
// ignored and nothing touches disk.
func Open(dir string, inMemory bool, ttl time.Duration, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("tasks: create %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("tasks: open: %w", err)
	}
	return &Store{db: db, ttl: ttl, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Put stores status unless a newer update for the same task is already
// recorded. Redelivered or reordered messages therefore never move a task
// backwards.
func (s *Store) Put(_ context.Context, status domain.TaskStatus) error {
	if status.TaskID == "" {
		return fmt.Errorf("tasks: put: empty task id")
	}
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("tasks: encode %s: %w", status.TaskID, err)
	}
	key := []byte(keyPrefix + status.TaskID)

	err = s.db.Update(func(txn *badger.Txn) error {
		prev, err := get(txn, key)
		switch {
		case errors.Is(err, domain.ErrTaskNotFound):
		case err != nil:
			return err
		case prev.UpdatedAt.After(status.UpdatedAt):
			return nil
		}
		return txn.SetEntry(badger.NewEntry(key, data).WithTTL(s.ttl))
	})
	if err != nil {
		return fmt.Errorf("tasks: put %s: %w", status.TaskID, err)
	}
	return nil
}

// Get returns the status of a task, or domain.ErrTaskNotFound.
func (s *Store) Get(_ context.Context, id string) (domain.TaskStatus, error) {
	var st domain.TaskStatus
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		st, err = get(txn, []byte(keyPrefix+id))
		return err
	})
	if err != nil {
		return domain.TaskStatus{}, fmt.Errorf("tasks: get %s: %w", id, err)
	}
	return st, nil
}

func get(txn *badger.Txn, key []byte) (domain.TaskStatus, error) {
	var st domain.TaskStatus
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return st, domain.ErrTaskNotFound
	}
	if err != nil {
		return st, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &st)
	})
	return st, err
}

// Follow persists every status published on subject.
func (s *Store) Follow(nc *nats.Conn, subject string) (*nats.Subscription, error) {
	return natsutil.Subscribe(nc, subject, func(ctx context.Context, st domain.TaskStatus) {
		if err := s.Put(ctx, st); err != nil {
			s.logger.Warn("task status not stored", "task_id", st.TaskID, "err", err)
		}
	})
}
