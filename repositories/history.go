package repositories

import (
	"afterglow/domain"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/samber/lo"
)

const historyPrefix = "nav:"

// HistoryRepository persists navigation entries in BadgerDB.
// Keys are "nav:{seq_padded}" so a prefix scan yields entries in navigation order.
type HistoryRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewHistoryRepository(db *badger.DB, log *slog.Logger) HistoryRepository {
	return HistoryRepository{db: db, log: log}
}

func historyKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%019d", historyPrefix, seq))
}

// Append stores entry after the last persisted one and returns it with its sequence number.
func (r HistoryRepository) Append(ctx context.Context, entry domain.HistoryEntry) (domain.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.HistoryEntry{}, err
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	err := r.db.Update(func(txn *badger.Txn) error {
		last, err := lastSeq(txn)
		if err != nil {
			return err
		}
		entry.Seq = last + 1
		bytes, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return txn.Set(historyKey(entry.Seq), bytes)
	})
	if err != nil {
		return domain.HistoryEntry{}, err
	}
	r.log.Debug("History entry stored", "seq", entry.Seq, "url", entry.URL)
	return entry, nil
}

// List returns every persisted entry, oldest first.
func (r HistoryRepository) List(ctx context.Context) ([]domain.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var raw [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(historyPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			raw = append(raw, value)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	entries := make([]domain.HistoryEntry, 0, len(raw))
	for _, b := range raw {
		var entry domain.HistoryEntry
		if err := json.Unmarshal(b, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// TruncateAfter deletes every entry whose sequence number is greater than seq.
func (r HistoryRepository) TruncateAfter(ctx context.Context, seq uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		prefix := []byte(historyPrefix)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		var keys [][]byte
		for it.Seek(historyKey(seq + 1)); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		if len(keys) > 0 {
			r.log.Debug("History truncated", "after", seq, "removed", len(keys))
		}
		return nil
	})
}

// lastSeq seeks backwards from the highest possible key.
func lastSeq(txn *badger.Txn) (uint64, error) {
	prefix := []byte(historyPrefix)
	options := badger.DefaultIteratorOptions
	options.Reverse = true
	options.PrefetchValues = false
	it := txn.NewIterator(options)
	defer it.Close()

	it.Seek(append(prefix, []byte("9999999999999999999")...))
	if !it.ValidForPrefix(prefix) {
		return 0, nil
	}
	return strconv.ParseUint(string(it.Item().Key()[len(prefix):]), 10, 64)
}

// MemoryHistory is the in-process HistoryStore used when nothing must survive a restart.
type MemoryHistory struct {
	mu      sync.Mutex
	entries []domain.HistoryEntry
	seq     uint64
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

func (m *MemoryHistory) Append(_ context.Context, entry domain.HistoryEntry) (domain.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	entry.Seq = m.seq
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	m.entries = append(m.entries, entry)
	return entry, nil
}

func (m *MemoryHistory) List(_ context.Context) ([]domain.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.HistoryEntry(nil), m.entries...), nil
}

func (m *MemoryHistory) TruncateAfter(_ context.Context, seq uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = lo.Filter(m.entries, func(e domain.HistoryEntry, _ int) bool { return e.Seq <= seq })
	return nil
}

// HistoryMapper renders a stored navigation entry for the badger debug inspector.
func HistoryMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	if !strings.HasPrefix(key, historyPrefix) {
		return row
	}
	var entry domain.HistoryEntry
	if err := json.Unmarshal(val, &entry); err != nil {
		row.Detail = "Error: unmarshal failed"
		return row
	}
	row.Type = "NAV"
	row.Detail = fmt.Sprintf("/%s at %s", entry.URL, entry.At.Format(time.RFC3339))
	return row
}
