package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"ivr/gateway/internal/config"
	"ivr/gateway/internal/registry"
)

type Handlers struct {
	Cfg config.Config
	Reg *registry.Registry
}

func NewHandlers(cfg config.Config, reg *registry.Registry) *Handlers {
	return &Handlers{Cfg: cfg, Reg: reg}
}

func (h *Handlers) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"app":         h.Cfg.App.Name,
		"version":     h.Cfg.App.Version,
		"status":      "healthy",
		"environment": h.Cfg.Environment,
	})
}

// HandleHealth is a read-only view of the registry; nothing here can
// mutate it.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "okay"
	code := http.StatusOK
	if h.Reg.ShuttingDown() {
		status = "shutting_down"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":          status,
		"active_sessions": h.Reg.ActiveCount(),
		"shutting_down":   h.Reg.ShuttingDown(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("writing json response")
	}
}
