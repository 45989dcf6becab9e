package api

import (
	"github.com/gorilla/mux"

	"github.com/neyrobot/showcanvas/internal/api/recovery"
)

// NewRouter wires all HTTP routes.
func NewRouter(h *Handler, outputDir string) *mux.Router {
	router := mux.NewRouter()
	router.Use(recovery.Middleware)

	router.HandleFunc("/api/health", h.Health).Methods("GET")
	router.HandleFunc("/api/messages", h.PostMessage).Methods("POST")

	admin := router.PathPrefix("/api/admin").Subrouter()
	admin.HandleFunc("/batches", h.ListBatches).Methods("GET")
	admin.HandleFunc("/batches", h.CreateBatches).Methods("POST")
	admin.HandleFunc("/batches/process-next", h.ProcessNext).Methods("POST")
	admin.HandleFunc("/stats", h.Stats).Methods("GET")
	admin.HandleFunc("/messages", h.RecentMessages).Methods("GET")
	admin.HandleFunc("/mixed-text", h.MixedTexts).Methods("GET")
	admin.HandleFunc("/images", h.Images).Methods("GET")
	admin.HandleFunc("/quota", h.Quota).Methods("GET")
	admin.HandleFunc("/prompt", h.GetPrompt).Methods("GET")
	admin.HandleFunc("/prompt", h.PutPrompt).Methods("PUT")
	admin.HandleFunc("/reset", h.Reset).Methods("POST")

	router.HandleFunc("/images/{filename}", h.ServeImage(outputDir)).Methods("GET")

	return router
}
