package qsim

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// MonitorHandler serves the progress of a running engine over http
type MonitorHandler struct {
	engine *Engine
}

func NewMonitorHandler(engine *Engine) *MonitorHandler {
	return &MonitorHandler{engine: engine}
}

// RegisterRoutes adds the monitor's routes to router
func (h *MonitorHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/status", h.Status).Methods("GET")
	router.HandleFunc("/stop", h.StopRun).Methods("POST")
}

// Status writes the engine's Stats as json
func (h *MonitorHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.engine.Stats())
}

// StopRun asks the engine to finish after its current step
func (h *MonitorHandler) StopRun(w http.ResponseWriter, r *http.Request) {
	h.engine.Stop()
	h.writeJSON(w, map[string]string{"state": h.engine.State().String(), "message": "stop requested"})
}

func (h *MonitorHandler) writeJSON(w http.ResponseWriter, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err = w.Write(body); err != nil {
		h.engine.log.WithError(err).Warn("monitor response not written")
	}
}
