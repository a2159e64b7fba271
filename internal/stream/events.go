// Package stream is the realtime change-notification stream between the
// storefront and the workflow engine, carried over Redis pub/sub. Delivery
// is at-least-once and unordered across topics; consumers de-duplicate and
// filter client-side.
package stream

import "time"

// Action types carried on the stream.
const (
	ActionPurchase = "purchase"
	ActionDispatch = "dispatch"
)

// Origin markers. Every message the workflow engine sends is tagged
// OriginWorkflow at creation time, so a purchase resulting from a
// follow-up offer is never mistaken for a fresh trigger.
const (
	OriginInitial  = "initial"
	OriginWorkflow = "workflow"
)

// Event is one observed fact: a purchase, or a workflow dispatch.
type Event struct {
	CampaignID string            `json:"campaign_id"`
	UserID     string            `json:"user_id"`
	ProductID  string            `json:"product_id"`
	ActionType string            `json:"action_type"`
	Origin     string            `json:"origin,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// topic returns the pub/sub channel for a campaign.
func topic(campaignID string) string {
	return "campaign:" + campaignID + ":events"
}
