package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Checkpointer debounces snapshot writes. Mutations mark it dirty and the
// run loop persists at most once per interval, so a burst of incoming
// messages does not rewrite the file per message. Flush bypasses the
// debounce for transitions that must hit disk immediately.
type Checkpointer struct {
	store    *FileStore
	snapshot func() *Snapshot
	interval time.Duration
	dirty    atomic.Bool
	saveMu   sync.Mutex
	log      zerolog.Logger
}

func NewCheckpointer(store *FileStore, snapshot func() *Snapshot, interval time.Duration, log zerolog.Logger) *Checkpointer {
	return &Checkpointer{
		store:    store,
		snapshot: snapshot,
		interval: interval,
		log:      log.With().Str("component", "checkpointer").Logger(),
	}
}

// MarkDirty schedules a save on the next tick.
func (c *Checkpointer) MarkDirty() {
	c.dirty.Store(true)
}

// Flush saves immediately, regardless of the dirty flag.
func (c *Checkpointer) Flush() {
	c.save()
}

// Run persists dirty state every interval until ctx is canceled, then takes
// a final save so shutdown never loses the last mutations. Save errors are
// logged and retried on the next tick.
func (c *Checkpointer) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.save()
			return ctx.Err()
		case <-ticker.C:
			if c.dirty.Load() {
				c.save()
			}
		}
	}
}

func (c *Checkpointer) save() {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.dirty.Store(false)
	if err := c.store.Save(c.snapshot()); err != nil {
		c.dirty.Store(true)
		c.log.Error().Err(err).Msg("snapshot save failed")
	}
}
