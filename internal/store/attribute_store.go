// Package store implements the customer attribute store against
// PostgreSQL: filtered counts, filtered member-id fetches, tag membership
// resolution, and the batched activity classification query.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/brightwave/campaign-engine/internal/segment"
)

// Postgres is the attribute store over a customers table. It implements
// segment.AttributeStore.
type Postgres struct {
	db *sql.DB
}

// New creates a Postgres attribute store.
func New(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// DB exposes the underlying handle for collaborators that share the pool.
func (p *Postgres) DB() *sql.DB { return p.db }

// whereClause renders a conjunctive predicate list. Columns are only ever
// produced by the segment field registry, never from raw user input.
func whereClause(preds []segment.Predicate) (string, []any) {
	if len(preds) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(preds))
	args := make([]any, 0, len(preds))
	for i, pred := range preds {
		switch pred.Op {
		case segment.OpIn:
			values, _ := pred.Value.([]string)
			parts = append(parts, fmt.Sprintf("%s = ANY($%d)", pred.Column, i+1))
			args = append(args, pq.Array(values))
		default:
			parts = append(parts, fmt.Sprintf("%s %s $%d", pred.Column, pred.Op, i+1))
			args = append(args, pred.Value)
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

// CountMembers returns the number of customers matching every predicate.
// An empty list counts the whole population.
func (p *Postgres) CountMembers(ctx context.Context, preds []segment.Predicate) (int, error) {
	where, args := whereClause(preds)
	var count int
	err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM customers"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return count, nil
}

// MemberIDs returns the identifiers of customers matching every predicate.
func (p *Postgres) MemberIDs(ctx context.Context, preds []segment.Predicate) ([]string, error) {
	where, args := whereClause(preds)
	rows, err := p.db.QueryContext(ctx, "SELECT id FROM customers"+where, args...)
	if err != nil {
		return nil, fmt.Errorf("member ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ResolveTagMembers resolves tag names to the customers carrying any of
// them, via two sequential lookups: tag name -> tag id, tag id -> member
// ids. Names matching no tag, and tags with no assignments, contribute
// nothing; the caller receives the empty set rather than "everyone".
func (p *Postgres) ResolveTagMembers(ctx context.Context, names []string) (segment.MemberSet, error) {
	members := segment.MemberSet{}
	if len(names) == 0 {
		return members, nil
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT id FROM tags WHERE name = ANY($1)`, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("resolve tags: %w", err)
	}
	var tagIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan tag id: %w", err)
		}
		tagIDs = append(tagIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tagIDs) == 0 {
		return members, nil
	}

	rows, err = p.db.QueryContext(ctx,
		`SELECT DISTINCT customer_id FROM customer_tags WHERE tag_id = ANY($1)`, pq.Array(tagIDs))
	if err != nil {
		return nil, fmt.Errorf("tag members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tag member: %w", err)
		}
		members[id] = struct{}{}
	}
	return members, rows.Err()
}

// Activity classification windows.
const (
	paidActivityWindow  = 30 * 24 * time.Hour
	usageActivityWindow = 7 * 24 * time.Hour
)

// MembersByActivity classifies customers by recency of their payment and
// usage event streams, as one batched aggregation query per status:
//
//	active   = paid within 30d OR used within 7d
//	inactive = paid within 30d AND no usage within 7d
//	dormant  = neither stream within 30d
//
// This is the performance-sensitive path: the classification is live, not
// a stored column, so it must never degrade into a per-customer query.
func (p *Postgres) MembersByActivity(ctx context.Context, status segment.ActivityStatus) (segment.MemberSet, error) {
	now := time.Now()
	paidCutoff := now.Add(-paidActivityWindow)
	usageCutoff := now.Add(-usageActivityWindow)
	dormantCutoff := now.Add(-paidActivityWindow)

	const base = `
		SELECT c.id,
		       EXISTS (SELECT 1 FROM payment_events pe
		               WHERE pe.customer_id = c.id AND pe.occurred_at >= $1) AS recent_paid,
		       EXISTS (SELECT 1 FROM usage_events ue
		               WHERE ue.customer_id = c.id AND ue.occurred_at >= $2) AS recent_usage,
		       EXISTS (SELECT 1 FROM usage_events ue
		               WHERE ue.customer_id = c.id AND ue.occurred_at >= $3) AS usage_30d
		FROM customers c`

	rows, err := p.db.QueryContext(ctx, base, paidCutoff, usageCutoff, dormantCutoff)
	if err != nil {
		return nil, fmt.Errorf("classify activity: %w", err)
	}
	defer rows.Close()

	members := segment.MemberSet{}
	for rows.Next() {
		var id string
		var recentPaid, recentUsage, usage30d bool
		if err := rows.Scan(&id, &recentPaid, &recentUsage, &usage30d); err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}
		var got segment.ActivityStatus
		switch {
		case recentPaid || recentUsage:
			got = segment.ActivityActive
		case !recentPaid && !usage30d:
			got = segment.ActivityDormant
		default:
			got = segment.ActivityInactive
		}
		if got == status {
			members[id] = struct{}{}
		}
	}
	return members, rows.Err()
}

// MemberPreview is a minimal customer row for segment previews.
type MemberPreview struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	City  string `json:"city,omitempty"`
	Tier  string `json:"tier,omitempty"`
}

// SampleMembers fetches a small sample of matching customer rows for the
// builder's "verify users" preview.
func (p *Postgres) SampleMembers(ctx context.Context, preds []segment.Predicate, limit int) ([]MemberPreview, error) {
	if limit <= 0 {
		limit = 10
	}
	where, args := whereClause(preds)
	query := fmt.Sprintf(
		"SELECT id, email, COALESCE(city,''), COALESCE(tier,'') FROM customers%s ORDER BY registration_date DESC LIMIT %d",
		where, limit)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sample members: %w", err)
	}
	defer rows.Close()

	var out []MemberPreview
	for rows.Next() {
		var m MemberPreview
		if err := rows.Scan(&m.ID, &m.Email, &m.City, &m.Tier); err != nil {
			return nil, fmt.Errorf("scan preview row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PreviewByIDs fetches preview rows for up to limit members of an already
// materialized set. Ordering follows registration recency like SampleMembers.
func (p *Postgres) PreviewByIDs(ctx context.Context, members segment.MemberSet, limit int) ([]MemberPreview, error) {
	if limit <= 0 {
		limit = 10
	}
	if len(members) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}

	query := fmt.Sprintf(
		"SELECT id, email, COALESCE(city,''), COALESCE(tier,'') FROM customers WHERE id = ANY($1) ORDER BY registration_date DESC LIMIT %d",
		limit)
	rows, err := p.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("preview by ids: %w", err)
	}
	defer rows.Close()

	var out []MemberPreview
	for rows.Next() {
		var m MemberPreview
		if err := rows.Scan(&m.ID, &m.Email, &m.City, &m.Tier); err != nil {
			return nil, fmt.Errorf("scan preview row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecipientAddress resolves a customer id to a deliverable address.
func (p *Postgres) RecipientAddress(ctx context.Context, customerID string) (string, error) {
	var email sql.NullString
	err := p.db.QueryRowContext(ctx,
		`SELECT email FROM customers WHERE id = $1`, customerID).Scan(&email)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("customer %s: %w", customerID, ErrNoRecipient)
	}
	if err != nil {
		return "", fmt.Errorf("recipient lookup: %w", err)
	}
	if !email.Valid || email.String == "" {
		return "", fmt.Errorf("customer %s: %w", customerID, ErrNoRecipient)
	}
	return email.String, nil
}
