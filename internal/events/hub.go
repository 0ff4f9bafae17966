package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Event is the envelope the hub delivers to subscribers and replays to late
// ones. IDs are assigned sequentially per hub, so a client can resume from
// the last id it saw. ProcessID and TenantID are promoted from payloads that
// identify themselves, letting consumers filter without decoding Data.
type Event struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	At        time.Time       `json:"at"`
	ProcessID string          `json:"process_id,omitempty"`
	TenantID  string          `json:"tenant_id,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// Hub is an in-memory pub/sub that retains a sliding window of the newest
// events for late clients. The window is id-contiguous and ascending, which
// makes resuming from a last-seen id a slice offset rather than a scan.
type Hub struct {
	retain int

	mu      sync.Mutex
	lastID  int64
	window  []Event
	subs    map[int]chan Event
	nextSub int
}

// NewHub builds a hub retaining the newest retain events for replay.
func NewHub(retain int) *Hub {
	if retain <= 0 {
		retain = 100
	}
	return &Hub{
		retain: retain,
		window: make([]Event, 0, retain),
		subs:   make(map[int]chan Event),
	}
}

// Publish marshals data, stamps the envelope, and fans out. A payload that
// implements scope identifies the process and tenant it concerns.
func (h *Hub) Publish(eventType string, data any) {
	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	var processID, tenantID string
	if s, ok := data.(scoped); ok {
		processID, tenantID = s.scope()
	}

	h.mu.Lock()
	h.lastID++
	ev := Event{
		ID:        h.lastID,
		Type:      eventType,
		At:        time.Now().UTC(),
		ProcessID: processID,
		TenantID:  tenantID,
		Data:      payload,
	}

	if len(h.window) == h.retain {
		copy(h.window, h.window[1:])
		h.window[h.retain-1] = ev
	} else {
		h.window = append(h.window, ev)
	}

	for _, ch := range h.subs {
		// Don't let slow clients block producers.
		select {
		case ch <- ev:
		default:
		}
	}
	h.mu.Unlock()
}

// Subscribe registers a live feed. The returned cancel is idempotent and
// closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSub
	h.nextSub++
	ch := make(chan Event, 128)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

// SnapshotSince returns retained events with ID > lastID, oldest-first.
// lastID 0 returns the whole window.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.window) == 0 {
		return nil
	}
	skip := 0
	if first := h.window[0].ID; lastID >= first {
		skip = int(lastID - first + 1)
	}
	if skip >= len(h.window) {
		return nil
	}
	out := make([]Event, len(h.window)-skip)
	copy(out, h.window[skip:])
	return out
}
