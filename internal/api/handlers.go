// Package api exposes message ingestion and the admin panel over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/neyrobot/showcanvas/internal/api/respond"
	"github.com/neyrobot/showcanvas/internal/batch"
	"github.com/neyrobot/showcanvas/internal/collector"
	"github.com/neyrobot/showcanvas/internal/filter"
	"github.com/neyrobot/showcanvas/internal/health"
	"github.com/neyrobot/showcanvas/internal/model"
	"github.com/neyrobot/showcanvas/internal/msglog"
	"github.com/neyrobot/showcanvas/internal/processor"
	"github.com/neyrobot/showcanvas/internal/prompt"
	"github.com/neyrobot/showcanvas/internal/quota"
)

// Replier acknowledges an accepted message back to its sender's chat.
// Satisfied by notify.Telegram.
type Replier interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Handler carries the wired pipeline components for the HTTP surface.
type Handler struct {
	col     *collector.Collector
	batches *batch.Manager
	proc    *processor.Processor
	tracker *quota.Tracker
	prompts *prompt.Manager
	filter  *filter.Filter
	log     *msglog.Log
	monitor *health.Monitor
	replier Replier
	zlog    zerolog.Logger
}

func NewHandler(col *collector.Collector, batches *batch.Manager, proc *processor.Processor, tracker *quota.Tracker, prompts *prompt.Manager, flt *filter.Filter, mlog *msglog.Log, monitor *health.Monitor, replier Replier, zlog zerolog.Logger) *Handler {
	return &Handler{
		col:     col,
		batches: batches,
		proc:    proc,
		tracker: tracker,
		prompts: prompts,
		filter:  flt,
		log:     mlog,
		monitor: monitor,
		replier: replier,
		zlog:    zlog.With().Str("component", "api").Logger(),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.monitor == nil {
		respond.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status := http.StatusOK
	label := "ok"
	if !h.monitor.Healthy() {
		status = http.StatusServiceUnavailable
		label = "degraded"
	}
	respond.WriteJSON(w, status, map[string]interface{}{
		"status": label,
		"checks": h.monitor.Status(),
	})
}

// PostMessage ingests one audience message.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID      int64  `json:"userId"`
		Username    string `json:"username"`
		DisplayName string `json:"displayName"`
		Content     string `json:"content"`
		Source      string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.WriteBadRequest(w, "invalid json")
		return
	}

	content := strings.TrimSpace(in.Content)
	if content == "" {
		respond.WriteBadRequest(w, "content must not be empty")
		return
	}

	if ok, reason := h.filter.CheckSafety(content); !ok {
		respond.WriteError(w, http.StatusUnprocessableEntity, reason)
		return
	}

	id := h.col.Add(in.UserID, in.Username, in.DisplayName, content)

	source := in.Source
	if source == "" {
		source = "web"
	}
	if h.log != nil {
		if err := h.log.Add(r.Context(), in.UserID, in.Username, in.DisplayName, content, source); err != nil {
			h.zlog.Warn().Err(err).Msg("message log write failed")
		}
	}

	// Telegram senders get an acknowledgment in their chat; other sources
	// see the HTTP response.
	if h.replier != nil && source == "telegram" && in.UserID != 0 {
		if err := h.replier.SendMessage(r.Context(), in.UserID, "Сообщение принято! Оно попадет в ближайшую картину."); err != nil {
			h.zlog.Warn().Err(err).Int64("chat_id", in.UserID).Msg("acknowledgment reply failed")
		}
	}

	respond.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"id":      id,
		"pending": h.col.Len(),
	})
}

// ListBatches returns the reporting view of every batch.
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	infos := h.batches.AllBatchesInfo()
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"batches": infos,
		"total":   len(infos),
	})
}

// CreateBatches partitions the current accumulation on demand.
func (h *Handler) CreateBatches(w http.ResponseWriter, r *http.Request) {
	created := h.batches.CreateBatches()
	ids := make([]string, len(created))
	for i, b := range created {
		ids[i] = b.ID
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"created": len(created),
		"ids":     ids,
	})
}

// ProcessNext triggers one pipeline pass. A 409 means a batch is already in
// flight; processing is strictly single-flight.
func (h *Handler) ProcessNext(w http.ResponseWriter, r *http.Request) {
	switch h.proc.ProcessNext(r.Context()) {
	case processor.OutcomeBusy:
		respond.WriteConflict(w, "a batch is already being processed")
	case processor.OutcomeIdle:
		respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"processed": false})
	case processor.OutcomeCompleted:
		respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"processed": true, "failed": false})
	case processor.OutcomeFailed:
		respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"processed": true, "failed": true})
	}
}

// Stats aggregates batch, processor and quota statistics for the dashboard.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	out := map[string]interface{}{
		"batches":   h.batches.Statistics(),
		"processor": h.proc.Stats(),
		"quota":     h.tracker.Stats(),
	}
	if h.log != nil {
		if s, err := h.log.Stats(r.Context()); err == nil {
			out["messages"] = s
		} else {
			h.zlog.Warn().Err(err).Msg("message log stats failed")
		}
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// RecentMessages returns the newest logged messages, default 50.
func (h *Handler) RecentMessages(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			respond.WriteBadRequest(w, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	entries, err := h.log.Recent(r.Context(), limit)
	if err != nil {
		respond.WriteInternalError(w, "message log unavailable")
		return
	}
	if entries == nil {
		entries = []msglog.Entry{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"messages": entries})
}

// MixedTexts lists the summarized text of every batch that produced one.
func (h *Handler) MixedTexts(w http.ResponseWriter, r *http.Request) {
	type mixed struct {
		BatchID   string `json:"batchId"`
		MixedText string `json:"mixedText"`
		Status    string `json:"status"`
	}

	out := []mixed{}
	for _, info := range h.batches.AllBatchesInfo() {
		if info.MixedText == nil {
			continue
		}
		out = append(out, mixed{BatchID: info.ID, MixedText: *info.MixedText, Status: string(info.Status)})
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"mixedTexts": out})
}

// Images lists finished images newest-last, in batch creation order.
func (h *Handler) Images(w http.ResponseWriter, r *http.Request) {
	type img struct {
		BatchID   string  `json:"batchId"`
		ImagePath string  `json:"imagePath"`
		MixedText *string `json:"mixedText,omitempty"`
	}

	out := []img{}
	for _, info := range h.batches.AllBatchesInfo() {
		if info.Status != model.StatusCompleted || info.ImagePath == nil {
			continue
		}
		out = append(out, img{BatchID: info.ID, ImagePath: *info.ImagePath, MixedText: info.MixedText})
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"images": out})
}

// Quota reports current window occupancy against the configured limits.
func (h *Handler) Quota(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSON(w, http.StatusOK, h.tracker.Stats())
}

// GetPrompt returns the active style prompt.
func (h *Handler) GetPrompt(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSON(w, http.StatusOK, h.prompts.Info())
}

// PutPrompt replaces the style prompt.
func (h *Handler) PutPrompt(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.WriteBadRequest(w, "invalid json")
		return
	}
	if err := h.prompts.Update(in.Prompt); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, h.prompts.Info())
}

// Reset clears all pipeline state: live messages, batches, processor
// counters and the message log.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.col.Restore(nil, nil)
	h.batches.Reset()
	h.proc.ResetStats()
	if h.log != nil {
		if err := h.log.Reset(r.Context()); err != nil {
			h.zlog.Warn().Err(err).Msg("message log reset failed")
		}
	}
	h.zlog.Info().Msg("pipeline state reset")
	respond.WriteJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// ServeImage streams one generated image by filename.
func (h *Handler) ServeImage(outputDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["filename"]
		if name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
			respond.WriteBadRequest(w, "invalid filename")
			return
		}
		http.ServeFile(w, r, outputDir+"/"+name)
	}
}
