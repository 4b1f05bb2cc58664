package headless

import (
	"afterglow/contract"
	"afterglow/domain"
	"afterglow/events"
	"context"
	"log/slog"
	"sync"
	"time"
)

// History keeps the navigation entries and a cursor on the current one. Back and
// Forward move the cursor and emit the state of the entry reached, the way a
// browser fires popstate.
type History struct {
	log      *slog.Logger
	store    contract.HistoryStore
	popState *events.Emitter[[]byte]

	mu      sync.Mutex
	entries []domain.HistoryEntry
	cursor  int
}

var _ contract.History = (*History)(nil)

// NewHistory loads the entries of store, positioning the cursor on the last one.
// A nil store keeps history in memory only.
func NewHistory(ctx context.Context, log *slog.Logger, store contract.HistoryStore) (*History, error) {
	h := &History{log: log, store: store, popState: events.NewEmitter[[]byte](), cursor: -1}
	if store == nil {
		return h, nil
	}
	entries, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	h.entries = entries
	h.cursor = len(entries) - 1
	return h, nil
}

// PushState drops the entries ahead of the cursor and appends a new current one.
func (h *History) PushState(state []byte, url string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry := domain.HistoryEntry{
		Seq:   uint64(h.cursor + 2),
		State: append([]byte(nil), state...),
		URL:   url,
		At:    time.Now().UTC(),
	}
	if h.store != nil {
		ctx := context.Background()
		if h.cursor >= 0 {
			if err := h.store.TruncateAfter(ctx, h.entries[h.cursor].Seq); err != nil {
				return err
			}
		} else if err := h.store.TruncateAfter(ctx, 0); err != nil {
			return err
		}
		stored, err := h.store.Append(ctx, entry)
		if err != nil {
			return err
		}
		entry = stored
	}
	h.entries = append(h.entries[:h.cursor+1], entry)
	h.cursor++
	h.log.Debug("History pushed", "url", url, "length", len(h.entries))
	return nil
}

func (h *History) PopStates() *events.Subscription[[]byte] {
	return h.popState.Subscribe()
}

func (h *History) Back() bool {
	return h.move(-1)
}

func (h *History) Forward() bool {
	return h.move(1)
}

func (h *History) move(step int) bool {
	h.mu.Lock()
	next := h.cursor + step
	if next < 0 || next >= len(h.entries) {
		h.mu.Unlock()
		return false
	}
	h.cursor = next
	state := h.entries[next].State
	h.mu.Unlock()

	h.popState.Emit(state)
	return true
}

func (h *History) Current() (domain.HistoryEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cursor < 0 {
		return domain.HistoryEntry{}, false
	}
	return h.entries[h.cursor], true
}

func (h *History) Entries() []domain.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.HistoryEntry(nil), h.entries...)
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

func (h *History) Close() error {
	return h.popState.Close()
}
