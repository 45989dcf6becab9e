// Package batch owns the batch list and its lifecycle state machine, and
// partitions drained messages into batches.
package batch

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/neyrobot/showcanvas/internal/collector"
	"github.com/neyrobot/showcanvas/internal/model"
)

// Persister receives change notifications from the manager. MarkDirty is a
// cheap debounced signal; Flush forces a synchronous snapshot write and is
// used on terminal transitions.
type Persister interface {
	MarkDirty()
	Flush()
}

// PartitionPolicy controls how a drain is split into batches: N >= Threshold
// messages become exactly Parts proportional batches, fewer become singletons.
type PartitionPolicy struct {
	Threshold int
	Parts     int
}

// StatusUpdate carries the optional fields set together with a status change.
type StatusUpdate struct {
	MixedText    *string
	ImagePath    *string
	ErrorMessage *string
}

// Manager is the single owner and only writer of the batch list.
type Manager struct {
	mu      sync.Mutex
	batches []*model.Batch

	col     *collector.Collector
	policy  PartitionPolicy
	persist Persister
	now     func() time.Time
	log     zerolog.Logger
}

// NewManager constructs a Manager. persist may be nil in tests.
func NewManager(col *collector.Collector, policy PartitionPolicy, persist Persister, log zerolog.Logger) *Manager {
	return &Manager{
		col:     col,
		policy:  policy,
		persist: persist,
		now:     time.Now,
		log:     log.With().Str("component", "batch").Logger(),
	}
}

// CreateBatches drains the collector once and partitions the snapshot into
// PENDING batches appended to the list in generation order. Every drained
// message id is marked as batched, including those whose batch later fails:
// retried content must come from a fresh audience message.
func (m *Manager) CreateBatches() []*model.Batch {
	drained := m.col.DrainAll()
	if len(drained) == 0 {
		return nil
	}

	total := len(drained)
	var created []*model.Batch

	if total >= m.policy.Threshold {
		size := total / m.policy.Parts
		remainder := total % m.policy.Parts
		m.log.Info().Int("messages", total).Int("parts", m.policy.Parts).
			Int("size", size).Int("remainder", remainder).
			Msg("creating proportional batches")

		start := 0
		for i := 0; i < m.policy.Parts; i++ {
			n := size
			if i < remainder {
				n++
			}
			created = append(created, m.newBatch(drained[start:start+n]))
			start += n
		}
	} else {
		m.log.Info().Int("messages", total).Msg("creating singleton batches")
		for i := range drained {
			created = append(created, m.newBatch(drained[i:i+1]))
		}
	}

	ids := make([]string, len(drained))
	for i, msg := range drained {
		ids[i] = msg.ID
	}
	m.col.MarkBatched(ids...)

	m.mu.Lock()
	m.batches = append(m.batches, created...)
	m.mu.Unlock()

	m.markDirty()
	m.log.Info().Int("created", len(created)).Msg("batches queued")
	return created
}

func (m *Manager) newBatch(msgs []model.Message) *model.Batch {
	owned := make([]model.Message, len(msgs))
	copy(owned, msgs)
	return &model.Batch{
		ID:        uuid.New().String(),
		Messages:  owned,
		Status:    model.StatusPending,
		CreatedAt: m.now().UTC(),
	}
}

// GetNextBatch returns a copy of the oldest PENDING batch, FIFO by creation
// order, or nil. It never mutates state; the caller transitions explicitly.
func (m *Manager) GetNextBatch() *model.Batch {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.batches {
		if b.Status == model.StatusPending {
			cp := *b
			return &cp
		}
	}
	return nil
}

// Get returns a copy of the batch with the given id.
func (m *Manager) Get(id string) (*model.Batch, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.batches {
		if b.ID == id {
			cp := *b
			return &cp, true
		}
	}
	return nil, false
}

// UpdateStatus sets the batch status and any fields carried with it. Moving
// into a terminal state stamps CompletedAt and derives ProcessingTime. An
// unknown id is logged and ignored: the processor is the only caller and
// always holds a valid reference, so this is defensive, not a contract error.
func (m *Manager) UpdateStatus(id string, status model.BatchStatus, upd StatusUpdate) {
	m.mu.Lock()
	var target *model.Batch
	for _, b := range m.batches {
		if b.ID == id {
			target = b
			break
		}
	}
	if target == nil {
		m.mu.Unlock()
		m.log.Warn().Str("batch_id", id).Str("status", string(status)).
			Msg("status update for unknown batch ignored")
		return
	}

	if !target.Status.CanTransition(status) {
		m.log.Warn().Str("batch_id", id).
			Str("from", string(target.Status)).Str("to", string(status)).
			Msg("illegal status transition ignored")
		m.mu.Unlock()
		return
	}

	target.Status = status
	if upd.MixedText != nil {
		target.MixedText = upd.MixedText
	}
	if upd.ImagePath != nil {
		target.ImagePath = upd.ImagePath
	}
	if upd.ErrorMessage != nil {
		target.ErrorMessage = upd.ErrorMessage
	}
	if status.IsTerminal() {
		done := m.now().UTC()
		target.CompletedAt = &done
		elapsed := done.Sub(target.CreatedAt).Seconds()
		target.ProcessingTime = &elapsed
	}
	terminal := status.IsTerminal()
	m.mu.Unlock()

	m.log.Info().Str("batch_id", shortID(id)).Str("status", string(status)).Msg("batch updated")
	if terminal {
		m.flush()
	} else {
		m.markDirty()
	}
}

// Statistics counts batches per status plus the live message backlog.
func (m *Manager) Statistics() model.BatchStatistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := model.BatchStatistics{
		TotalMessages: m.col.Len(),
		TotalBatches:  len(m.batches),
	}
	for _, b := range m.batches {
		switch b.Status {
		case model.StatusPending:
			stats.PendingBatches++
		case model.StatusProcessing:
			stats.ProcessingBatches++
		case model.StatusMixed:
			stats.MixedBatches++
		case model.StatusGenerating:
			stats.GeneratingBatches++
		case model.StatusCompleted:
			stats.CompletedBatches++
		case model.StatusFailed:
			stats.FailedBatches++
		}
	}
	return stats
}

// AllBatchesInfo returns the reporting view of every batch, oldest first.
func (m *Manager) AllBatchesInfo() []model.BatchInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]model.BatchInfo, 0, len(m.batches))
	for _, b := range m.batches {
		infos = append(infos, model.BatchInfo{
			ID:             b.ID,
			Status:         b.Status,
			MessageCount:   b.MessageCount(),
			CreatedAt:      b.CreatedAt,
			MixedText:      b.MixedText,
			ImagePath:      b.ImagePath,
			CompletedAt:    b.CompletedAt,
			ProcessingTime: b.ProcessingTime,
			ErrorMessage:   b.ErrorMessage,
		})
	}
	return infos
}

// SweepTerminalOlderThan removes COMPLETED/FAILED batches created before the
// cutoff and forgets their message ids from the dedup set, bounding memory
// growth over a multi-hour event. Returns the number removed.
func (m *Manager) SweepTerminalOlderThan(age time.Duration) int {
	cutoff := m.now().UTC().Add(-age)

	m.mu.Lock()
	var removedIDs []string
	kept := m.batches[:0]
	for _, b := range m.batches {
		if b.Status.IsTerminal() && b.CreatedAt.Before(cutoff) {
			for _, msg := range b.Messages {
				removedIDs = append(removedIDs, msg.ID)
			}
			continue
		}
		kept = append(kept, b)
	}
	removed := len(m.batches) - len(kept)
	m.batches = kept
	m.mu.Unlock()

	if removed > 0 {
		m.col.Forget(removedIDs...)
		m.markDirty()
		m.log.Info().Int("batches", removed).Int("message_ids", len(removedIDs)).
			Msg("swept old terminal batches")
	}
	return removed
}

// SnapshotBatches copies the batch list for persistence.
func (m *Manager) SnapshotBatches() []model.Batch {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Batch, len(m.batches))
	for i, b := range m.batches {
		out[i] = *b
	}
	return out
}

// Restore replaces the batch list from a loaded snapshot. Batches found
// mid-pipeline are marked FAILED: an unclean restart never resumes or
// replays in-flight work, a retry requires a fresh audience message.
func (m *Manager) Restore(batches []model.Batch) {
	m.mu.Lock()
	m.batches = make([]*model.Batch, len(batches))
	interrupted := 0
	for i := range batches {
		b := batches[i]
		switch b.Status {
		case model.StatusProcessing, model.StatusMixed, model.StatusGenerating:
			b.Status = model.StatusFailed
			reason := "interrupted by restart"
			b.ErrorMessage = &reason
			done := m.now().UTC()
			b.CompletedAt = &done
			elapsed := done.Sub(b.CreatedAt).Seconds()
			b.ProcessingTime = &elapsed
			interrupted++
		}
		m.batches[i] = &b
	}
	m.mu.Unlock()

	if interrupted > 0 {
		m.log.Warn().Int("batches", interrupted).Msg("in-flight batches failed after restart")
		m.markDirty()
	}
}

// Reset drops every batch. Used by the admin reset endpoint.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.batches = nil
	m.mu.Unlock()
	m.flush()
}

func (m *Manager) markDirty() {
	if m.persist != nil {
		m.persist.MarkDirty()
	}
}

func (m *Manager) flush() {
	if m.persist != nil {
		m.persist.Flush()
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
