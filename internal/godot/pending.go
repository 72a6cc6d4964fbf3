package godot

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// pendingTable maps in-flight correlation identifiers to their waiting
// callers. Each entry resolves exactly once: removal from the map under
// the mutex decides the winner between a matching response, the expiry
// timer, a write failure, and a connection loss. Identifiers are UUIDs
// and are never reused.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry
}

type pendingEntry struct {
	ch    chan *Response // buffered, capacity 1; receives the single resolution
	timer *time.Timer
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[string]*pendingEntry)}
}

// add registers a new in-flight request and returns its identifier and
// the channel its resolution will arrive on. If no response or failure
// claims the entry within timeout, it resolves with a timeout failure.
func (t *pendingTable) add(timeout time.Duration) (string, <-chan *Response) {
	id := uuid.NewString()
	msg := fmt.Sprintf("Command timeout after %dms", timeout.Milliseconds())

	entry := &pendingEntry{ch: make(chan *Response, 1)}

	t.mu.Lock()
	t.entries[id] = entry
	entry.timer = time.AfterFunc(timeout, func() {
		t.expire(id, msg)
	})
	t.mu.Unlock()

	return id, entry.ch
}

// resolve delivers a decoded response to the entry matching its
// identifier. It reports false when no entry is pending under that
// identifier, in which case the response should be discarded.
func (t *pendingTable) resolve(resp *Response) bool {
	entry, ok := t.remove(resp.ID)
	if !ok {
		return false
	}
	entry.ch <- resp
	return true
}

// fail resolves a single pending entry with a failure message. It
// reports false when the entry was already resolved.
func (t *pendingTable) fail(id, msg string) bool {
	entry, ok := t.remove(id)
	if !ok {
		return false
	}
	entry.ch <- &Response{ID: id, Success: false, Error: msg}
	return true
}

// failAll resolves every pending entry with the same failure message,
// leaving the table empty. Used when the connection is lost or torn down.
func (t *pendingTable) failAll(msg string) {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string]*pendingEntry)
	t.mu.Unlock()

	for id, entry := range entries {
		entry.timer.Stop()
		entry.ch <- &Response{ID: id, Success: false, Error: msg}
	}
}

// size reports the number of in-flight entries.
func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *pendingTable) expire(id, msg string) {
	entry, ok := t.remove(id)
	if !ok {
		// Lost the race against a response or failure; nothing to do.
		return
	}
	entry.ch <- &Response{ID: id, Success: false, Error: msg}
}

// remove deletes and returns the entry for id, stopping its timer.
// Exactly one caller can win removal for a given identifier.
func (t *pendingTable) remove(id string) (*pendingEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[id]
	if !ok {
		return nil, false
	}
	delete(t.entries, id)
	entry.timer.Stop()
	return entry, true
}
