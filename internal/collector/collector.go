// Package collector accumulates incoming audience messages until the batch
// manager drains them.
package collector

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/neyrobot/showcanvas/internal/model"
)

// Collector is an append-only buffer of live messages plus the set of message
// ids that have already been drained into a batch. A message id in that set is
// never accumulated again and never appears in a second batch.
type Collector struct {
	mu      sync.Mutex
	live    []model.Message
	batched map[string]struct{}

	onChange func()
	log      zerolog.Logger
}

// New constructs an empty Collector. onChange, if non-nil, is invoked after
// every mutation (the persistence checkpointer hooks in here).
func New(log zerolog.Logger, onChange func()) *Collector {
	return &Collector{
		batched:  make(map[string]struct{}),
		onChange: onChange,
		log:      log.With().Str("component", "collector").Logger(),
	}
}

// Add constructs a message with a fresh id, appends it to the live buffer and
// returns the id. If the generated id is somehow already marked as batched the
// call is a no-op returning that id.
func (c *Collector) Add(userID int64, username, displayName, content string) string {
	msg := model.Message{
		ID:          uuid.New().String(),
		UserID:      userID,
		Username:    username,
		DisplayName: displayName,
		Content:     content,
		CreatedAt:   time.Now().UTC(),
	}
	if msg.Username == "" {
		msg.Username = fmt.Sprintf("user_%d", userID)
	}
	if msg.DisplayName == "" {
		msg.DisplayName = "Unknown"
	}

	c.mu.Lock()
	if _, seen := c.batched[msg.ID]; seen {
		c.mu.Unlock()
		c.log.Warn().Str("message_id", msg.ID).Msg("attempt to add an already batched message")
		return msg.ID
	}
	c.live = append(c.live, msg)
	total := len(c.live)
	c.mu.Unlock()

	c.log.Debug().Str("message_id", msg.ID).Str("from", msg.DisplayName).Int("buffered", total).
		Msg("message accumulated")
	c.notify()
	return msg.ID
}

// DrainAll atomically empties the live buffer and returns its contents. The
// swap happens under the lock, so a racing Add lands either in the returned
// snapshot or in the fresh buffer, never both and never lost.
func (c *Collector) DrainAll() []model.Message {
	c.mu.Lock()
	drained := c.live
	c.live = nil
	c.mu.Unlock()

	if len(drained) > 0 {
		c.notify()
	}
	return drained
}

// MarkBatched records message ids as drained into a batch so replays are
// rejected. Called by the batch manager for every drained message, including
// those whose batch later fails.
func (c *Collector) MarkBatched(ids ...string) {
	c.mu.Lock()
	for _, id := range ids {
		c.batched[id] = struct{}{}
	}
	c.mu.Unlock()
	c.notify()
}

// Forget removes ids from the batched set. Used by the terminal-batch sweep to
// bound memory growth over a multi-hour event.
func (c *Collector) Forget(ids ...string) {
	c.mu.Lock()
	for _, id := range ids {
		delete(c.batched, id)
	}
	c.mu.Unlock()
	c.notify()
}

// Len returns the live buffer size.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// BatchedCount returns the size of the dedup set.
func (c *Collector) BatchedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batched)
}

// Snapshot copies the live buffer and batched id set for persistence.
func (c *Collector) Snapshot() ([]model.Message, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]model.Message, len(c.live))
	copy(msgs, c.live)
	ids := make([]string, 0, len(c.batched))
	for id := range c.batched {
		ids = append(ids, id)
	}
	return msgs, ids
}

// Restore replaces the collector state from a loaded snapshot.
func (c *Collector) Restore(msgs []model.Message, batchedIDs []string) {
	c.mu.Lock()
	c.live = append([]model.Message(nil), msgs...)
	c.batched = make(map[string]struct{}, len(batchedIDs))
	for _, id := range batchedIDs {
		c.batched[id] = struct{}{}
	}
	c.mu.Unlock()
}

func (c *Collector) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}
