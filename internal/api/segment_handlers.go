package api

import (
	"net/http"
	"strconv"

	"github.com/brightwave/campaign-engine/internal/pkg/httputil"
	"github.com/brightwave/campaign-engine/internal/segment"
	"github.com/brightwave/campaign-engine/internal/store"
)

// EstimateRequest carries the criteria chain being edited.
type EstimateRequest struct {
	Criteria segment.SegmentCriteria `json:"criteria"`
}

// EstimateResponse is the population count for a criteria chain.
type EstimateResponse struct {
	Count int `json:"count"`
}

// EstimateSegment computes the population matching the posted criteria.
// This is the synchronous endpoint; interactive clients debounce on their
// side or poll while typing.
func (h *Handlers) EstimateSegment(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	count, err := h.estimator.Estimate(r.Context(), req.Criteria)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, EstimateResponse{Count: count})
}

// PreviewResponse holds a bounded sample of matching members.
type PreviewResponse struct {
	Count   int                   `json:"count"`
	Members []store.MemberPreview `json:"members"`
}

// PreviewSegment returns the count plus a sample of matching members.
// The sample is served from the pushed-down plan when the chain is purely
// conjunctive; otherwise it falls back to the materialized id set.
func (h *Handlers) PreviewSegment(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	limit := 25
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	members, err := h.estimator.EstimateMembers(r.Context(), req.Criteria)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	sample, err := h.store.PreviewByIDs(r.Context(), members, limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, PreviewResponse{Count: len(members), Members: sample})
}

// FieldInfo describes one filterable attribute for criteria builders.
type FieldInfo struct {
	Name      string             `json:"name"`
	Class     string             `json:"class"`
	Operators []segment.Operator `json:"operators"`
}

// ListFields returns the filterable field catalog.
func (h *Handlers) ListFields(w http.ResponseWriter, r *http.Request) {
	var out []FieldInfo
	for _, f := range segment.Fields() {
		out = append(out, FieldInfo{
			Name:      f.Name,
			Class:     f.Class.String(),
			Operators: f.Operators,
		})
	}
	httputil.OK(w, out)
}
