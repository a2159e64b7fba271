// Package campaign defines the campaign flow graph: typed nodes connected
// by directed edges on the canvas, plus the walker that every caller uses
// to find the nearest node of a given type.
package campaign

import (
	"time"

	"github.com/google/uuid"

	"github.com/brightwave/campaign-engine/internal/segment"
)

// NodeType is the kind of a canvas node.
type NodeType string

const (
	NodeTrigger NodeType = "trigger"
	NodeSegment NodeType = "segment"
	NodeAction  NodeType = "action"
	NodeLogic   NodeType = "logic"
	NodeWait    NodeType = "wait"
	NodeChannel NodeType = "channel"
)

// Node is one node on the campaign canvas. The payload fields are
// type-specific; only the ones matching Type are meaningful.
type Node struct {
	ID   string   `json:"id"`
	Type NodeType `json:"type"`

	// segment nodes
	Criteria *segment.SegmentCriteria `json:"criteria,omitempty"`

	// action nodes
	OfferID   string `json:"offer_id,omitempty"`
	OfferLink string `json:"offer_link,omitempty"`

	// wait nodes
	WaitDuration float64 `json:"wait_duration,omitempty"`
	WaitUnit     string  `json:"wait_unit,omitempty"` // minutes, hours, days

	// channel nodes
	Channel string `json:"channel,omitempty"` // email, sms
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body,omitempty"`
}

// Edge is a directed connection between two nodes.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Campaign is a saved canvas: a node/edge graph plus status.
type Campaign struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"` // draft, active, paused
	Nodes     []Node    `json:"nodes"`
	Edges     []Edge    `json:"edges"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FindNode returns the node with the given id, or nil.
func (c *Campaign) FindNode(id string) *Node {
	for i := range c.Nodes {
		if c.Nodes[i].ID == id {
			return &c.Nodes[i]
		}
	}
	return nil
}

// TriggerNode returns the campaign's trigger node, or nil. Canvases are
// expected to carry exactly one.
func (c *Campaign) TriggerNode() *Node {
	for i := range c.Nodes {
		if c.Nodes[i].Type == NodeTrigger {
			return &c.Nodes[i]
		}
	}
	return nil
}
