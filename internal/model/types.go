package model

import "time"

// Message is a single audience utterance. It is owned by the collector until
// drained into a batch, after which it is read-only.
type Message struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"userId"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
}

// BatchStatus is the lifecycle state of a batch.
type BatchStatus string

const (
	StatusPending    BatchStatus = "pending"
	StatusProcessing BatchStatus = "processing"
	StatusMixed      BatchStatus = "mixed"
	StatusGenerating BatchStatus = "generating"
	StatusCompleted  BatchStatus = "completed"
	StatusFailed     BatchStatus = "failed"
)

// IsTerminal reports whether no further transition may occur.
func (s BatchStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a legal step of the
// state machine. Success passes through every working state in order; FAILED
// is reachable from any non-terminal working state.
func (s BatchStatus) CanTransition(next BatchStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusMixed || next == StatusFailed
	case StatusMixed:
		return next == StatusGenerating || next == StatusFailed
	case StatusGenerating:
		return next == StatusCompleted || next == StatusFailed
	case StatusCompleted, StatusFailed:
		return false
	}
	return false
}

// Batch is an ordered, immutable group of messages processed as a unit.
// Messages are fixed at creation; only status and the result fields mutate,
// and only through the batch manager.
type Batch struct {
	ID             string      `json:"id"`
	Messages       []Message   `json:"messages"`
	Status         BatchStatus `json:"status"`
	CreatedAt      time.Time   `json:"createdAt"`
	MixedText      *string     `json:"mixedText,omitempty"`
	ImagePath      *string     `json:"imagePath,omitempty"`
	CompletedAt    *time.Time  `json:"completedAt,omitempty"`
	ProcessingTime *float64    `json:"processingTimeSeconds,omitempty"`
	ErrorMessage   *string     `json:"errorMessage,omitempty"`
}

// MessageCount returns the number of messages in the batch.
func (b *Batch) MessageCount() int { return len(b.Messages) }

// BatchInfo is the reporting view of a batch exposed to the admin API.
type BatchInfo struct {
	ID             string      `json:"id"`
	Status         BatchStatus `json:"status"`
	MessageCount   int         `json:"messageCount"`
	CreatedAt      time.Time   `json:"createdAt"`
	MixedText      *string     `json:"mixedText,omitempty"`
	ImagePath      *string     `json:"imagePath,omitempty"`
	CompletedAt    *time.Time  `json:"completedAt,omitempty"`
	ProcessingTime *float64    `json:"processingTimeSeconds,omitempty"`
	ErrorMessage   *string     `json:"errorMessage,omitempty"`
}

// BatchStatistics counts batches per status plus the live message backlog.
type BatchStatistics struct {
	TotalMessages     int `json:"totalMessages"`
	TotalBatches      int `json:"totalBatches"`
	PendingBatches    int `json:"pendingBatches"`
	ProcessingBatches int `json:"processingBatches"`
	MixedBatches      int `json:"mixedBatches"`
	GeneratingBatches int `json:"generatingBatches"`
	CompletedBatches  int `json:"completedBatches"`
	FailedBatches     int `json:"failedBatches"`
}

// ProcessorStats are the running aggregate counters of the sequential
// processor. AverageProcessingTime is maintained incrementally.
type ProcessorStats struct {
	TotalProcessed        int     `json:"totalProcessed"`
	TotalFailed           int     `json:"totalFailed"`
	TotalImagesGenerated  int     `json:"totalImagesGenerated"`
	AverageProcessingTime float64 `json:"averageProcessingTimeSeconds"`
	IsProcessing          bool    `json:"isProcessing"`
	CurrentBatchID        string  `json:"currentBatchId,omitempty"`
}

// RunResult summarizes one drain of the pending queue.
type RunResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}
