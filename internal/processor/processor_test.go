package processor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neyrobot/showcanvas/internal/batch"
	"github.com/neyrobot/showcanvas/internal/collector"
	"github.com/neyrobot/showcanvas/internal/filter"
	"github.com/neyrobot/showcanvas/internal/imaging"
	"github.com/neyrobot/showcanvas/internal/model"
)

const (
	testTimeout = 2 * time.Second
	testTick    = 5 * time.Millisecond
)

type fakeMixer struct {
	mu     sync.Mutex
	reply  string
	err    error
	inputs [][]model.Message
}

func (f *fakeMixer) Mix(_ context.Context, messages []model.Message) (string, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, messages)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.reply != "" {
		return f.reply, nil
	}
	return messages[0].Content, nil
}

type fakeGenerator struct {
	mu      sync.Mutex
	data    []byte
	err     error
	block   chan struct{}
	prompts []string
	failOn  map[int]error
	calls   int
}

func (f *fakeGenerator) GenerateImage(_ context.Context, prompt string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.prompts = append(f.prompts, prompt)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err, ok := f.failOn[call]; ok {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

type fakeStyle struct{ s string }

func (f fakeStyle) Current() string { return f.s }

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < 4; i++ {
		img.Set(i, i, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fixture struct {
	col   *collector.Collector
	mgr   *batch.Manager
	mixer *fakeMixer
	gen   *fakeGenerator
	proc  *Processor
	dir   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	col := collector.New(zerolog.Nop(), nil)
	mgr := batch.NewManager(col, batch.PartitionPolicy{Threshold: 10, Parts: 10}, nil, zerolog.Nop())
	mixer := &fakeMixer{}
	gen := &fakeGenerator{data: tinyPNG(t)}
	dir := t.TempDir()
	saver := imaging.NewSaver(dir, 1920, 1280, zerolog.Nop())

	proc := New(mgr, mixer, gen, saver, fakeStyle{s: "акварель"}, filter.New(zerolog.Nop()),
		Options{PromptLimit: 500}, zerolog.Nop())
	return &fixture{col: col, mgr: mgr, mixer: mixer, gen: gen, proc: proc, dir: dir}
}

func (f *fixture) addAndBatch(t *testing.T, contents ...string) []*model.Batch {
	t.Helper()
	for i, c := range contents {
		f.col.Add(int64(i+1), "", "Зритель", c)
	}
	return f.mgr.CreateBatches()
}

func statusOf(t *testing.T, mgr *batch.Manager, id string) model.BatchStatus {
	t.Helper()
	b, ok := mgr.Get(id)
	require.True(t, ok)
	return b.Status
}

func TestProcessNextIdle(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, OutcomeIdle, f.proc.ProcessNext(context.Background()))
	assert.Zero(t, f.proc.Stats().TotalProcessed)
}

func TestProcessNextSuccess(t *testing.T) {
	f := newFixture(t)
	created := f.addAndBatch(t, "пиратский корабль в шторме")
	require.Len(t, created, 1)

	outcome := f.proc.ProcessNext(context.Background())
	assert.Equal(t, OutcomeCompleted, outcome)

	got, ok := f.mgr.Get(created[0].ID)
	require.True(t, ok)
	assert.Equal(t, model.StatusCompleted, got.Status)
	require.NotNil(t, got.MixedText)
	assert.Equal(t, "пиратский корабль в шторме", *got.MixedText)
	require.NotNil(t, got.ImagePath)
	assert.FileExists(t, *got.ImagePath)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.ProcessingTime)

	// The full prompt carries the style suffix.
	require.Len(t, f.gen.prompts, 1)
	assert.Contains(t, f.gen.prompts[0], "пиратский корабль в шторме")
	assert.Contains(t, f.gen.prompts[0], "акварель")

	stats := f.proc.Stats()
	assert.Equal(t, 1, stats.TotalProcessed)
	assert.Equal(t, 1, stats.TotalImagesGenerated)
	assert.Zero(t, stats.TotalFailed)
	assert.False(t, stats.IsProcessing)
	assert.Empty(t, stats.CurrentBatchID)
}

func TestProcessNextSanitizesPromptBeforeGeneration(t *testing.T) {
	f := newFixture(t)
	f.addAndBatch(t, "дерьмо и золото на палубе")

	assert.Equal(t, OutcomeCompleted, f.proc.ProcessNext(context.Background()))

	require.Len(t, f.gen.prompts, 1)
	assert.Contains(t, f.gen.prompts[0], "отходы и золото на палубе")
	assert.NotContains(t, f.gen.prompts[0], "дерьмо")
}

func TestProcessNextMixerFailure(t *testing.T) {
	f := newFixture(t)
	created := f.addAndBatch(t, "море")
	f.mixer.err = errors.New("llm unreachable")

	assert.Equal(t, OutcomeFailed, f.proc.ProcessNext(context.Background()))

	got, ok := f.mgr.Get(created[0].ID)
	require.True(t, ok)
	assert.Equal(t, model.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "llm unreachable")
	assert.Nil(t, got.ImagePath)

	stats := f.proc.Stats()
	assert.Equal(t, 1, stats.TotalFailed)
	assert.Zero(t, stats.TotalProcessed)
}

func TestProcessNextGeneratorFailure(t *testing.T) {
	f := newFixture(t)
	created := f.addAndBatch(t, "шторм")
	f.gen.err = errors.New("gemini quota exceeded after 3 attempts")

	assert.Equal(t, OutcomeFailed, f.proc.ProcessNext(context.Background()))

	got, _ := f.mgr.Get(created[0].ID)
	assert.Equal(t, model.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "quota")
	// Mixed text survives from the stage that did succeed.
	require.NotNil(t, got.MixedText)
}

func TestProcessNextSingleFlight(t *testing.T) {
	f := newFixture(t)
	f.addAndBatch(t, "море", "шторм")

	f.gen.block = make(chan struct{})
	first := make(chan Outcome, 1)
	go func() { first <- f.proc.ProcessNext(context.Background()) }()

	// Wait until the first call is inside the pipeline.
	require.Eventually(t, func() bool {
		return f.proc.Stats().IsProcessing
	}, testTimeout, testTick)

	assert.Equal(t, OutcomeBusy, f.proc.ProcessNext(context.Background()))

	close(f.gen.block)
	assert.Equal(t, OutcomeCompleted, <-first)

	// Flag released, the second batch can now run.
	f.gen.mu.Lock()
	f.gen.block = nil
	f.gen.mu.Unlock()
	assert.Equal(t, OutcomeCompleted, f.proc.ProcessNext(context.Background()))
}

func TestProcessAllDrainsInOrder(t *testing.T) {
	f := newFixture(t)
	created := f.addAndBatch(t, "море", "шторм", "корабль")
	require.Len(t, created, 3)
	f.gen.failOn = map[int]error{2: errors.New("boom")}

	res := f.proc.ProcessAll(context.Background())
	assert.Equal(t, model.RunResult{Processed: 2, Failed: 1, Total: 3}, res)

	// FIFO: mix inputs arrive in creation order.
	require.Len(t, f.mixer.inputs, 3)
	assert.Equal(t, "море", f.mixer.inputs[0][0].Content)
	assert.Equal(t, "шторм", f.mixer.inputs[1][0].Content)
	assert.Equal(t, "корабль", f.mixer.inputs[2][0].Content)

	assert.Equal(t, model.StatusFailed, statusOf(t, f.mgr, created[1].ID))
	assert.Equal(t, model.StatusCompleted, statusOf(t, f.mgr, created[0].ID))
	assert.Equal(t, model.StatusCompleted, statusOf(t, f.mgr, created[2].ID))
}

func TestProcessAllEmptyQueue(t *testing.T) {
	f := newFixture(t)
	res := f.proc.ProcessAll(context.Background())
	assert.Equal(t, model.RunResult{}, res)
}

func TestProcessAllStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.addAndBatch(t, "море", "шторм")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := f.proc.ProcessAll(ctx)
	assert.Zero(t, res.Total)
}

func TestResetStats(t *testing.T) {
	f := newFixture(t)
	f.addAndBatch(t, "море")
	require.Equal(t, OutcomeCompleted, f.proc.ProcessNext(context.Background()))
	require.Equal(t, 1, f.proc.Stats().TotalProcessed)

	f.proc.ResetStats()
	assert.Equal(t, model.ProcessorStats{}, f.proc.Stats())
}

func TestConcertScenario(t *testing.T) {
	f := newFixture(t)
	f.mixer.reply = "Бескрайнее море, шторм, корабль пиратов"

	f.col.Add(1, "ivan", "Иван", "море")
	f.col.Add(2, "anna", "Анна", "шторм")
	f.col.Add(3, "petr", "Пётр", "корабль")
	created := f.mgr.CreateBatches()
	require.Len(t, created, 3)

	for i := 0; i < 3; i++ {
		require.Equal(t, OutcomeCompleted, f.proc.ProcessNext(context.Background()))
	}

	for _, b := range created {
		got, ok := f.mgr.Get(b.ID)
		require.True(t, ok)
		assert.Equal(t, model.StatusCompleted, got.Status)
		require.NotNil(t, got.MixedText)
		assert.NotEmpty(t, *got.MixedText)
		assert.LessOrEqual(t, utf8.RuneCountInString(*got.MixedText), 100)

		require.NotNil(t, got.ImagePath)
		fh, err := os.Open(*got.ImagePath)
		require.NoError(t, err)
		img, format, err := image.Decode(fh)
		fh.Close()
		require.NoError(t, err)
		assert.Equal(t, "png", format)
		assert.Equal(t, 1920, img.Bounds().Dx())
		assert.Equal(t, 1280, img.Bounds().Dy())
	}

	stats := f.proc.Stats()
	assert.Equal(t, 3, stats.TotalProcessed)
	assert.Equal(t, 3, stats.TotalImagesGenerated)
	assert.GreaterOrEqual(t, stats.AverageProcessingTime, 0.0)
}
