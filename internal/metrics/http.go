package metrics

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/govbot/internal/engine"
)

// PassReporter reports the most recent refresh pass. engine.Engine
// implements it.
type PassReporter interface {
	LastPass() engine.Pass
}

// Health is the /healthz body.
type Health struct {
	Status    string     `json:"status"`
	RefreshNo int64      `json:"refresh_seq"`
	RefreshAt *time.Time `json:"refresh_at,omitempty"`
}

// Handler serves /metrics from m and /healthz from passes. A nil passes
// reports only the status.
func Handler(m *Metrics, passes PassReporter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		h := Health{Status: "ok"}
		if passes != nil {
			if p := passes.LastPass(); p.Seq > 0 {
				at := p.At.UTC()
				h.RefreshNo = p.Seq
				h.RefreshAt = &at
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(h)
	})
	return r
}
