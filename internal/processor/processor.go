// Package processor drives batches through the pipeline one at a time:
// summarize, generate the image, persist, record the terminal status. It is
// the only component that transitions batches out of PENDING.
package processor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/neyrobot/showcanvas/internal/batch"
	"github.com/neyrobot/showcanvas/internal/imaging"
	"github.com/neyrobot/showcanvas/internal/model"
	"github.com/neyrobot/showcanvas/internal/prompt"
)

// Mixer condenses batch messages into the mixed text.
type Mixer interface {
	Mix(ctx context.Context, messages []model.Message) (string, error)
}

// ImageGenerator produces raw image bytes for a full prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// ImageSaver normalizes and stores an image payload, returning its path.
type ImageSaver interface {
	Save(data []byte, filename string) (string, error)
}

// StyleSource supplies the current style suffix for image prompts.
type StyleSource interface {
	Current() string
}

// PromptSanitizer rewrites crude wording before a prompt leaves the service.
type PromptSanitizer interface {
	SanitizePrompt(prompt string) string
}

// Outcome is the result of one ProcessNext call.
type Outcome int

const (
	// OutcomeIdle means no pending batch existed.
	OutcomeIdle Outcome = iota
	// OutcomeBusy means another batch was already in flight.
	OutcomeBusy
	// OutcomeCompleted means a batch went through the whole pipeline.
	OutcomeCompleted
	// OutcomeFailed means a batch was picked up and marked failed.
	OutcomeFailed
)

// Processor owns pipeline execution. A compare-and-swap guard makes batch
// processing single-flight: a second concurrent call observes busy and
// returns immediately instead of queueing.
type Processor struct {
	batches     *batch.Manager
	mixer       Mixer
	generator   ImageGenerator
	saver       ImageSaver
	style       StyleSource
	sanitizer   PromptSanitizer
	promptLimit int
	pause       time.Duration

	busy    atomic.Bool
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	statsMu sync.Mutex
	stats   model.ProcessorStats
	log     zerolog.Logger
}

type Options struct {
	PromptLimit     int
	InterBatchPause time.Duration
}

func New(batches *batch.Manager, mixer Mixer, generator ImageGenerator, saver ImageSaver, style StyleSource, sanitizer PromptSanitizer, opts Options, log zerolog.Logger) *Processor {
	return &Processor{
		batches:     batches,
		mixer:       mixer,
		generator:   generator,
		saver:       saver,
		style:       style,
		sanitizer:   sanitizer,
		promptLimit: opts.PromptLimit,
		pause:       opts.InterBatchPause,
		now:         time.Now,
		sleep:       sleepContext,
		log:         log.With().Str("component", "processor").Logger(),
	}
}

// ProcessNext pulls the oldest pending batch and runs it through the
// pipeline. Upstream failures never escape: they surface as a FAILED batch
// with its error message recorded.
func (p *Processor) ProcessNext(ctx context.Context) Outcome {
	if !p.busy.CompareAndSwap(false, true) {
		p.log.Debug().Msg("batch already in flight, skipping")
		return OutcomeBusy
	}
	defer p.busy.Store(false)

	b := p.batches.GetNextBatch()
	if b == nil {
		return OutcomeIdle
	}

	p.setCurrent(b.ID)
	defer p.setCurrent("")

	log := p.log.With().Str("batch_id", shortID(b.ID)).Int("messages", b.MessageCount()).Logger()
	log.Info().Msg("processing batch")

	p.batches.UpdateStatus(b.ID, model.StatusProcessing, batch.StatusUpdate{})

	mixed, err := p.mixer.Mix(ctx, b.Messages)
	if err != nil {
		return p.fail(b.ID, err, log)
	}
	log.Info().Str("mixed_text", mixed).Msg("mixed text created")
	p.batches.UpdateStatus(b.ID, model.StatusMixed, batch.StatusUpdate{MixedText: &mixed})

	p.batches.UpdateStatus(b.ID, model.StatusGenerating, batch.StatusUpdate{})

	full := prompt.BuildFull(mixed, p.style.Current(), p.promptLimit)
	if p.sanitizer != nil {
		full = p.sanitizer.SanitizePrompt(full)
	}
	data, err := p.generator.GenerateImage(ctx, full)
	if err != nil {
		return p.fail(b.ID, err, log)
	}

	path, err := p.saver.Save(data, imaging.Filename(b.ID, p.now()))
	if err != nil {
		return p.fail(b.ID, err, log)
	}

	p.batches.UpdateStatus(b.ID, model.StatusCompleted, batch.StatusUpdate{ImagePath: &path})
	p.recordSuccess(b.ID)

	log.Info().Str("image", path).Msg("batch completed")
	return OutcomeCompleted
}

// ProcessAll drains the pending queue, pausing between batches so ingestion
// and the admin API stay responsive. Stops early when ctx is canceled.
func (p *Processor) ProcessAll(ctx context.Context) model.RunResult {
	var res model.RunResult
	for {
		if ctx.Err() != nil {
			break
		}

		switch p.ProcessNext(ctx) {
		case OutcomeCompleted:
			res.Processed++
		case OutcomeFailed:
			res.Failed++
		default:
			res.Total = res.Processed + res.Failed
			return res
		}

		if p.pause > 0 {
			if err := p.sleep(ctx, p.pause); err != nil {
				break
			}
		}
	}
	res.Total = res.Processed + res.Failed
	return res
}

// Stats returns a copy of the aggregate counters.
func (p *Processor) Stats() model.ProcessorStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	out := p.stats
	out.IsProcessing = p.busy.Load()
	return out
}

// ResetStats clears the aggregate counters. Used by the admin reset.
func (p *Processor) ResetStats() {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats = model.ProcessorStats{}
}

func (p *Processor) fail(batchID string, err error, log zerolog.Logger) Outcome {
	log.Error().Err(err).Msg("batch failed")

	msg := err.Error()
	p.batches.UpdateStatus(batchID, model.StatusFailed, batch.StatusUpdate{ErrorMessage: &msg})

	p.statsMu.Lock()
	p.stats.TotalFailed++
	p.statsMu.Unlock()
	return OutcomeFailed
}

// recordSuccess folds the batch's processing time into the running average
// without keeping per-batch history.
func (p *Processor) recordSuccess(batchID string) {
	var elapsed float64
	var hasImage bool
	if b, ok := p.batches.Get(batchID); ok {
		if b.ProcessingTime != nil {
			elapsed = *b.ProcessingTime
		}
		hasImage = b.ImagePath != nil
	}

	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	p.stats.TotalProcessed++
	if hasImage {
		p.stats.TotalImagesGenerated++
	}
	total := float64(p.stats.TotalProcessed)
	p.stats.AverageProcessingTime = (p.stats.AverageProcessingTime*(total-1) + elapsed) / total
}

func (p *Processor) setCurrent(id string) {
	p.statsMu.Lock()
	p.stats.CurrentBatchID = id
	p.statsMu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
