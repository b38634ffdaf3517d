package relay

import (
	"net/http"

	"github.com/foxseedlab/koewake/internal/observability"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// NewRouter serves the relay endpoint at /ws next to /healthz and /metrics.
func NewRouter(ws http.Handler, gatherer prometheus.Gatherer) chi.Router {
	r := observability.NewRouter(gatherer)
	r.Handle("/ws", ws)
	return r
}
