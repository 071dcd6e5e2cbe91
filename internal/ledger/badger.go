package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/storacha/certifier/internal/certificate"
)

const keyPrefix = "certificate/"

// BadgerLedger is a single-node ledger kept in badger. Invalidated entries
// stay behind as tombstones so a fingerprint can never be written twice.
type BadgerLedger struct {
	db  *badger.DB
	now func() time.Time
}

// OpenBadger opens a ledger in dir. An empty dir keeps the ledger in memory.
func OpenBadger(dir string) (*BadgerLedger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger ledger: %w", err)
	}
	log.Infow("Opened badger ledger", "dir", dir, "in_memory", dir == "")
	return &BadgerLedger{db: db, now: time.Now}, nil
}

func (l *BadgerLedger) Close() error {
	return l.db.Close()
}

func (l *BadgerLedger) Write(ctx context.Context, fingerprint string, fields certificate.Fields, contentAddress string) error {
	if fields.Fingerprint() != fingerprint {
		return fmt.Errorf("%w: fingerprint does not match fields", ErrRejected)
	}
	err := l.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key(fingerprint)); err == nil {
			return ErrAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		data, err := json.Marshal(Entry{
			Fingerprint:    fingerprint,
			Fields:         fields,
			ContentAddress: contentAddress,
			RecordedAt:     l.now().UTC(),
		})
		if err != nil {
			return err
		}
		return txn.Set(key(fingerprint), data)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return err
		}
		return fmt.Errorf("failed to write certificate %s: %w", fingerprint, err)
	}
	log.Debugw("Recorded certificate", "fingerprint", fingerprint)
	return nil
}

func (l *BadgerLedger) Read(ctx context.Context, fingerprint string) (*Entry, error) {
	var entry *Entry
	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		entry, err = get(txn, fingerprint)
		return err
	})
	if err != nil {
		return nil, err
	}
	if entry.Revoked {
		return nil, ErrNotFound
	}
	return entry, nil
}

func (l *BadgerLedger) Invalidate(ctx context.Context, fingerprint string) error {
	return l.db.Update(func(txn *badger.Txn) error {
		entry, err := get(txn, fingerprint)
		if err != nil {
			return err
		}
		if entry.Revoked {
			return ErrNotFound
		}
		entry.Revoked = true
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return txn.Set(key(fingerprint), data)
	})
}

func (l *BadgerLedger) Exists(ctx context.Context, fingerprint string) (bool, error) {
	_, err := l.Read(ctx, fingerprint)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func get(txn *badger.Txn, fingerprint string) (*Entry, error) {
	item, err := txn.Get(key(fingerprint))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate %s: %w", fingerprint, err)
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate %s: %w", fingerprint, err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode certificate %s: %w", fingerprint, err)
	}
	return &entry, nil
}

func key(fingerprint string) []byte {
	return []byte(keyPrefix + fingerprint)
}
