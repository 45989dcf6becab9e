// Package worker runs the periodic pipeline cycle: partition accumulated
// messages, drain the pending queue and sweep old terminal batches.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/neyrobot/showcanvas/internal/batch"
	"github.com/neyrobot/showcanvas/internal/model"
	"github.com/neyrobot/showcanvas/internal/processor"
)

// Announcer publishes a finished image to the audience channel. Optional;
// announcement failures never disturb the pipeline.
type Announcer interface {
	AnnounceImage(ctx context.Context, imagePath, caption string) error
}

// Config controls cycle cadence and sweep age.
type Config struct {
	Interval time.Duration
	SweepAge time.Duration
}

// Worker ties the batch manager and processor into a polling loop.
type Worker struct {
	batches   *batch.Manager
	proc      *processor.Processor
	announcer Announcer
	cfg       Config
	announced map[string]struct{}
	log       zerolog.Logger
}

func New(batches *batch.Manager, proc *processor.Processor, announcer Announcer, cfg Config, log zerolog.Logger) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.SweepAge <= 0 {
		cfg.SweepAge = time.Hour
	}
	return &Worker{
		batches:   batches,
		proc:      proc,
		announcer: announcer,
		cfg:       cfg,
		announced: make(map[string]struct{}),
		log:       log.With().Str("component", "worker").Logger(),
	}
}

// Run executes cycles until ctx is canceled. A failing cycle is logged and
// the loop continues; one bad upstream never stops the concert.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.cfg.Interval).Dur("sweep_age", w.cfg.SweepAge).Msg("worker starting")
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("worker stopping")
			return ctx.Err()
		case <-ticker.C:
			w.Cycle(ctx)
		}
	}
}

// Cycle runs one full pass: create batches, process everything pending,
// announce fresh images, sweep old terminal batches.
func (w *Worker) Cycle(ctx context.Context) model.RunResult {
	created := w.batches.CreateBatches()
	if len(created) > 0 {
		w.log.Info().Int("batches", len(created)).Msg("cycle created batches")
	}

	res := w.proc.ProcessAll(ctx)
	if res.Total > 0 {
		w.log.Info().Int("processed", res.Processed).Int("failed", res.Failed).Msg("cycle drained queue")
	}

	w.announceCompleted(ctx)

	if swept := w.batches.SweepTerminalOlderThan(w.cfg.SweepAge); swept > 0 {
		w.pruneAnnounced()
	}
	return res
}

// announceCompleted publishes every completed batch exactly once.
func (w *Worker) announceCompleted(ctx context.Context) {
	if w.announcer == nil {
		return
	}

	for _, info := range w.batches.AllBatchesInfo() {
		if info.Status != model.StatusCompleted || info.ImagePath == nil {
			continue
		}
		if _, done := w.announced[info.ID]; done {
			continue
		}

		caption := ""
		if info.MixedText != nil {
			caption = *info.MixedText
		}
		if err := w.announcer.AnnounceImage(ctx, *info.ImagePath, caption); err != nil {
			w.log.Warn().Err(err).Str("batch_id", info.ID).Msg("image announcement failed")
			continue
		}
		w.announced[info.ID] = struct{}{}
	}
}

// pruneAnnounced drops bookkeeping for batches the sweep removed.
func (w *Worker) pruneAnnounced() {
	alive := make(map[string]struct{})
	for _, info := range w.batches.AllBatchesInfo() {
		alive[info.ID] = struct{}{}
	}
	for id := range w.announced {
		if _, ok := alive[id]; !ok {
			delete(w.announced, id)
		}
	}
}
