package api

import (
	"net/http"

	"github.com/brightwave/campaign-engine/internal/pkg/httputil"
	"github.com/brightwave/campaign-engine/internal/segment"
	"github.com/brightwave/campaign-engine/internal/store"
	"github.com/brightwave/campaign-engine/internal/workflow"
)

// Handlers holds the dependencies shared by all endpoint handlers.
type Handlers struct {
	estimator *segment.Estimator
	store     *store.Postgres
	campaigns CampaignService
	engine    *workflow.Engine
}

// NewHandlers wires the handler set.
func NewHandlers(est *segment.Estimator, pg *store.Postgres, campaigns CampaignService, engine *workflow.Engine) *Handlers {
	return &Handlers{
		estimator: est,
		store:     pg,
		campaigns: campaigns,
		engine:    engine,
	}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}
