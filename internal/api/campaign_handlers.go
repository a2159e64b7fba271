package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brightwave/campaign-engine/internal/campaign"
	"github.com/brightwave/campaign-engine/internal/pkg/httputil"
	"github.com/brightwave/campaign-engine/internal/pkg/logger"
)

// CampaignService is the persistence surface the campaign handlers need.
type CampaignService interface {
	Get(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error)
	List(ctx context.Context) ([]campaign.Campaign, error)
	Create(ctx context.Context, c *campaign.Campaign) error
	Update(ctx context.Context, c *campaign.Campaign) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
}

// CampaignRequest is the create/update payload: a name plus the flow graph.
type CampaignRequest struct {
	Name  string          `json:"name"`
	Nodes []campaign.Node `json:"nodes"`
	Edges []campaign.Edge `json:"edges"`
}

// ListCampaigns returns all campaigns ordered by last update.
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.campaigns.List(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if campaigns == nil {
		campaigns = []campaign.Campaign{}
	}
	httputil.OK(w, campaigns)
}

// GetCampaign returns one campaign with its flow graph.
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	c, err := h.campaigns.Get(r.Context(), id)
	if errors.Is(err, campaign.ErrNotFound) {
		httputil.NotFound(w, "campaign not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, c)
}

// CreateCampaign persists a new draft campaign.
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req CampaignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.BadRequest(w, "name is required")
		return
	}
	c := &campaign.Campaign{Name: req.Name, Nodes: req.Nodes, Edges: req.Edges}
	if err := h.campaigns.Create(r.Context(), c); err != nil {
		httputil.InternalError(w, err)
		return
	}
	logger.Info("campaign created", "campaign_id", c.ID.String(), "name", c.Name)
	httputil.Created(w, c)
}

// UpdateCampaign replaces a campaign's name and flow graph. Active
// campaigns keep watching the stream; the new graph applies to the next
// triggered workflow.
func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	var req CampaignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	c := &campaign.Campaign{ID: id, Name: req.Name, Nodes: req.Nodes, Edges: req.Edges}
	err := h.campaigns.Update(r.Context(), c)
	if errors.Is(err, campaign.ErrNotFound) {
		httputil.NotFound(w, "campaign not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, c)
}

// ActivateCampaign marks the campaign active and starts watching its
// purchase stream.
func (h *Handlers) ActivateCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	c, err := h.campaigns.Get(r.Context(), id)
	if errors.Is(err, campaign.ErrNotFound) {
		httputil.NotFound(w, "campaign not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if c.TriggerNode() == nil {
		httputil.BadRequest(w, "campaign has no trigger node")
		return
	}

	if err := h.campaigns.SetStatus(r.Context(), id, "active"); err != nil {
		httputil.InternalError(w, err)
		return
	}
	if h.engine != nil {
		if err := h.engine.Watch(id.String()); err != nil {
			logger.Error("watch campaign stream", "campaign_id", id.String(), "error", err.Error())
			httputil.InternalError(w, err)
			return
		}
	}
	logger.Info("campaign activated", "campaign_id", id.String())
	httputil.OK(w, map[string]string{"status": "active"})
}

// PauseCampaign marks the campaign paused and stops watching its stream.
// Workflows already past their trigger keep running.
func (h *Handlers) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	err := h.campaigns.SetStatus(r.Context(), id, "paused")
	if errors.Is(err, campaign.ErrNotFound) {
		httputil.NotFound(w, "campaign not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if h.engine != nil {
		h.engine.Unwatch(id.String())
	}
	logger.Info("campaign paused", "campaign_id", id.String())
	httputil.OK(w, map[string]string{"status": "paused"})
}

// WorkflowStatusResponse reports where a customer's workflow stands for a
// campaign.
type WorkflowStatusResponse struct {
	CampaignID string `json:"campaign_id"`
	CustomerID string `json:"customer_id"`
	State      string `json:"state"`
}

// WorkflowStatus returns the workflow state for one (campaign, customer)
// pair.
func (h *Handlers) WorkflowStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	customerID := chi.URLParam(r, "customerID")
	state := h.engine.States().GetState(id.String() + "|" + customerID)
	httputil.OK(w, WorkflowStatusResponse{
		CampaignID: id.String(),
		CustomerID: customerID,
		State:      string(state),
	})
}

func (h *Handlers) campaignID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "campaignID"))
	if err != nil {
		httputil.BadRequest(w, "invalid campaign id")
		return uuid.Nil, false
	}
	return id, true
}
