package campaign

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a campaign id does not exist.
var ErrNotFound = errors.New("campaign not found")

// Store handles CRUD for the campaigns table. Nodes and edges are
// persisted as JSONB alongside the row.
type Store struct {
	db *sql.DB
}

// NewStore creates a campaign store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns a single campaign with its flow graph.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	var c Campaign
	var nodesJSON, edgesJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, status, nodes, edges, created_at, updated_at
		FROM campaigns WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Status, &nodesJSON, &edgesJSON, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	if err := json.Unmarshal(nodesJSON, &c.Nodes); err != nil {
		return nil, fmt.Errorf("decode nodes: %w", err)
	}
	if err := json.Unmarshal(edgesJSON, &c.Edges); err != nil {
		return nil, fmt.Errorf("decode edges: %w", err)
	}
	return &c, nil
}

// List returns campaigns ordered by last update.
func (s *Store) List(ctx context.Context) ([]Campaign, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, status, nodes, edges, created_at, updated_at
		FROM campaigns ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		var c Campaign
		var nodesJSON, edgesJSON []byte
		if err := rows.Scan(&c.ID, &c.Name, &c.Status, &nodesJSON, &edgesJSON, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		if err := json.Unmarshal(nodesJSON, &c.Nodes); err != nil {
			return nil, fmt.Errorf("decode nodes: %w", err)
		}
		if err := json.Unmarshal(edgesJSON, &c.Edges); err != nil {
			return nil, fmt.Errorf("decode edges: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Create inserts a campaign in draft status.
func (s *Store) Create(ctx context.Context, c *Campaign) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = "draft"
	}
	nodesJSON, err := json.Marshal(c.Nodes)
	if err != nil {
		return fmt.Errorf("encode nodes: %w", err)
	}
	edgesJSON, err := json.Marshal(c.Edges)
	if err != nil {
		return fmt.Errorf("encode edges: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO campaigns (id, name, status, nodes, edges)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.Name, c.Status, nodesJSON, edgesJSON)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

// Update replaces a campaign's name and flow graph.
func (s *Store) Update(ctx context.Context, c *Campaign) error {
	nodesJSON, err := json.Marshal(c.Nodes)
	if err != nil {
		return fmt.Errorf("encode nodes: %w", err)
	}
	edgesJSON, err := json.Marshal(c.Edges)
	if err != nil {
		return fmt.Errorf("encode edges: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE campaigns SET name=$2, nodes=$3, edges=$4, updated_at=NOW()
		WHERE id = $1
	`, c.ID, c.Name, nodesJSON, edgesJSON)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus transitions a campaign between draft/active/paused.
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE campaigns SET status=$2, updated_at=NOW() WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DispatchRecord is one follow-up message sent by the workflow engine,
// logged so a later purchase of the follow-up offer is recognizable as a
// workflow byproduct rather than a fresh trigger.
type DispatchRecord struct {
	ID         uuid.UUID `json:"id"`
	CampaignID string    `json:"campaign_id"`
	CustomerID string    `json:"customer_id"`
	ProductID  string    `json:"product_id"`
	Channel    string    `json:"channel"`
	Recipient  string    `json:"recipient"`
	MessageID  string    `json:"message_id,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

// LogDispatch appends a dispatch record to the campaign dispatch log.
func (s *Store) LogDispatch(ctx context.Context, rec DispatchRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaign_dispatch_log
			(id, campaign_id, customer_id, product_id, channel, recipient, message_id, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.CampaignID, rec.CustomerID, rec.ProductID, rec.Channel, rec.Recipient, rec.MessageID, rec.SentAt)
	if err != nil {
		return fmt.Errorf("log dispatch: %w", err)
	}
	return nil
}
