// Package canvasservice wires the full pipeline and runs the HTTP server,
// background worker and checkpointer until shutdown.
package canvasservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/neyrobot/showcanvas/internal/api"
	"github.com/neyrobot/showcanvas/internal/batch"
	"github.com/neyrobot/showcanvas/internal/collector"
	"github.com/neyrobot/showcanvas/internal/config"
	"github.com/neyrobot/showcanvas/internal/filter"
	"github.com/neyrobot/showcanvas/internal/genimage"
	"github.com/neyrobot/showcanvas/internal/health"
	"github.com/neyrobot/showcanvas/internal/imaging"
	"github.com/neyrobot/showcanvas/internal/logger"
	"github.com/neyrobot/showcanvas/internal/msglog"
	"github.com/neyrobot/showcanvas/internal/notify"
	"github.com/neyrobot/showcanvas/internal/processor"
	"github.com/neyrobot/showcanvas/internal/prompt"
	"github.com/neyrobot/showcanvas/internal/quota"
	"github.com/neyrobot/showcanvas/internal/store"
	"github.com/neyrobot/showcanvas/internal/summarizer"
	"github.com/neyrobot/showcanvas/internal/worker"
)

// Run starts the service and blocks until shutdown or a fatal error.
func Run() error {
	log := logger.New("showcanvas")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		return err
	}

	log.Info().
		Int("http_port", cfg.HTTPPort).
		Str("data_file", cfg.DataFile).
		Str("output_dir", cfg.OutputDir).
		Str("gemini_model", cfg.GeminiModel).
		Str("llm_model", cfg.LLMModel).
		Msg("showcanvas starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The checkpointer's snapshot closure reads col and mgr at call time,
	// which breaks the construction cycle between them.
	var (
		col *collector.Collector
		mgr *batch.Manager
	)
	fileStore := store.NewFileStore(cfg.DataFile)
	checkpointer := store.NewCheckpointer(fileStore, func() *store.Snapshot {
		msgs, batchedIDs := col.Snapshot()
		return &store.Snapshot{
			Messages:   msgs,
			BatchedIDs: batchedIDs,
			Batches:    mgr.SnapshotBatches(),
		}
	}, cfg.CheckpointInterval, log)

	col = collector.New(log, checkpointer.MarkDirty)
	mgr = batch.NewManager(col, batch.PartitionPolicy{
		Threshold: cfg.BatchSplitThreshold,
		Parts:     cfg.BatchSplitCount,
	}, checkpointer, log)

	snap, err := fileStore.Load()
	if err != nil {
		log.Error().Err(err).Str("file", cfg.DataFile).Msg("snapshot load failed")
		return err
	}
	col.Restore(snap.Messages, snap.BatchedIDs)
	mgr.Restore(snap.Batches)
	if len(snap.Batches) > 0 || len(snap.Messages) > 0 {
		log.Info().Int("messages", len(snap.Messages)).Int("batches", len(snap.Batches)).
			Msg("state restored from snapshot")
	}

	tracker := quota.New(quota.Limits{
		RequestsPerMinute: cfg.RequestsPerMinute,
		RequestsPerDay:    cfg.RequestsPerDay,
		TokensPerMinute:   cfg.TokensPerMinute,
	}, log)

	imageClient := genimage.NewClient(genimage.Config{
		URL:         cfg.GeminiURL,
		APIKey:      cfg.GeminiAPIKey,
		MaxRetries:  cfg.MaxRetries,
		BaseDelay:   cfg.BaseRetryDelay,
		HTTPTimeout: cfg.HTTPTimeout,
		PromptLimit: cfg.FullPromptLimit,
	}, tracker, log)

	completer := summarizer.NewChatClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.HTTPTimeout)
	mixer := summarizer.New(completer, cfg.MixedTextLimit, cfg.Locale, log)

	saver := imaging.NewSaver(cfg.OutputDir, cfg.ImageWidth, cfg.ImageHeight, log)
	prompts := prompt.NewManager(cfg.StyleFile, config.DefaultStylePrompt, log)
	flt := filter.New(log)

	proc := processor.New(mgr, mixer, imageClient, saver, prompts, flt, processor.Options{
		PromptLimit:     cfg.FullPromptLimit,
		InterBatchPause: cfg.InterBatchPause,
	}, log)

	mlog, err := msglog.Open(cfg.MessageLogPath)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.MessageLogPath).Msg("message log unavailable")
		return err
	}
	defer func() { _ = mlog.Close() }()

	var announcer worker.Announcer
	telegram := notify.NewTelegram(cfg.BotToken, announceChatID(cfg), cfg.HTTPTimeout, log)
	if telegram.Enabled() {
		announcer = telegram
	}

	pipeline := worker.New(mgr, proc, announcer, worker.Config{
		Interval: cfg.CollectInterval,
		SweepAge: cfg.SweepAge,
	}, log)

	monitor := health.NewMonitor(log, health.NewCheck("msglog", mlog))

	handler := api.NewHandler(col, mgr, proc, tracker, prompts, flt, mlog, monitor, telegram, log)
	router := api.NewRouter(handler, cfg.OutputDir)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pipeline.Run(gctx) })
	g.Go(func() error { return checkpointer.Run(gctx) })
	g.Go(func() error { return monitor.Run(gctx, 30*time.Second) })
	g.Go(func() error {
		log.Info().Int("port", cfg.HTTPPort).Msg("http server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("service exited with error")
		return err
	}
	log.Info().Msg("service exited")
	return nil
}

func announceChatID(cfg *config.Config) string {
	if cfg.AnnounceChatID == 0 {
		return ""
	}
	return strconv.FormatInt(cfg.AnnounceChatID, 10)
}
