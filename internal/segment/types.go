// Package segment implements the audience segmentation engine: a compiler
// from user-authored condition-group expressions to member-set queries
// against the customer attribute store, plus an interactive population
// estimator with debouncing and stale-request cancellation.
package segment

import (
	"context"

	"github.com/google/uuid"
)

// ==========================================
// OPERATORS
// ==========================================

// Operator is a comparison operator in a condition.
type Operator string

const (
	OpGt       Operator = ">"
	OpLt       Operator = "<"
	OpEq       Operator = "="
	OpGte      Operator = ">="
	OpLte      Operator = "<="
	OpIn       Operator = "in"
	OpContains Operator = "contains"
)

// LogicOperator combines conditions within a group, and groups with the
// group before them in the chain.
type LogicOperator string

const (
	LogicAnd LogicOperator = "AND"
	LogicOr  LogicOperator = "OR"
)

// ==========================================
// CRITERIA STRUCTURES
// ==========================================

// Condition is one atomic filter: field, operator, value.
// Value holds a scalar; Values holds the array form for "in"/"contains".
type Condition struct {
	ID       uuid.UUID `json:"id"`
	Field    string    `json:"field"`
	Operator Operator  `json:"operator"`
	Value    string    `json:"value,omitempty"`
	Values   []string  `json:"values,omitempty"`
}

// ConditionGroup combines its conditions with Operator. GroupOperator
// describes how this group combines with the group immediately before it
// in the criteria chain; it is ignored on the first group.
type ConditionGroup struct {
	ID            uuid.UUID     `json:"id"`
	Conditions    []Condition   `json:"conditions"`
	Operator      LogicOperator `json:"operator"`
	GroupOperator LogicOperator `json:"group_operator,omitempty"`
}

// SegmentCriteria is the full ordered list of condition groups defining a
// segment. The legacy flat fields predate the group builder and are folded
// into a single implicit AND group by Normalize.
type SegmentCriteria struct {
	ConditionGroups []ConditionGroup `json:"condition_groups"`

	// Legacy flat criteria, kept for segments saved by the old builder.
	MinAge     string   `json:"min_age,omitempty"`
	MaxAge     string   `json:"max_age,omitempty"`
	Cities     []string `json:"cities,omitempty"`
	Tiers      []string `json:"tiers,omitempty"`
	TagNames   []string `json:"tag_names,omitempty"`
	MinArpu    string   `json:"min_arpu,omitempty"`
	MaxArpu    string   `json:"max_arpu,omitempty"`
	MinTenure  string   `json:"min_tenure_days,omitempty"`
	StatusName string   `json:"status,omitempty"`
}

// Normalize returns the criteria with any legacy flat fields rewritten as
// one leading AND group. Criteria already expressed as groups pass through
// unchanged. The estimator only ever reads the normalized form.
func (c SegmentCriteria) Normalize() SegmentCriteria {
	legacy := ConditionGroup{Operator: LogicAnd}

	add := func(field string, op Operator, value string) {
		legacy.Conditions = append(legacy.Conditions, Condition{
			ID: uuid.New(), Field: field, Operator: op, Value: value,
		})
	}

	if c.MinAge != "" {
		add(FieldAge, OpGte, c.MinAge)
	}
	if c.MaxAge != "" {
		add(FieldAge, OpLte, c.MaxAge)
	}
	if len(c.Cities) > 0 {
		legacy.Conditions = append(legacy.Conditions, Condition{
			ID: uuid.New(), Field: FieldCity, Operator: OpIn, Values: c.Cities,
		})
	}
	if len(c.Tiers) > 0 {
		legacy.Conditions = append(legacy.Conditions, Condition{
			ID: uuid.New(), Field: FieldTier, Operator: OpIn, Values: c.Tiers,
		})
	}
	if len(c.TagNames) > 0 {
		legacy.Conditions = append(legacy.Conditions, Condition{
			ID: uuid.New(), Field: FieldTags, Operator: OpIn, Values: c.TagNames,
		})
	}
	if c.MinArpu != "" {
		add(FieldArpu, OpGte, c.MinArpu)
	}
	if c.MaxArpu != "" {
		add(FieldArpu, OpLte, c.MaxArpu)
	}
	if c.MinTenure != "" {
		add(FieldCreatedAt, OpGt, c.MinTenure)
	}
	if c.StatusName != "" {
		add(FieldStatus, OpEq, c.StatusName)
	}

	out := c
	out.MinAge, out.MaxAge = "", ""
	out.Cities, out.Tiers, out.TagNames = nil, nil, nil
	out.MinArpu, out.MaxArpu, out.MinTenure, out.StatusName = "", "", "", ""

	if len(legacy.Conditions) > 0 {
		out.ConditionGroups = append([]ConditionGroup{legacy}, c.ConditionGroups...)
	}
	return out
}

// ==========================================
// MEMBER SETS & PREDICATES
// ==========================================

// MemberSet is a set of customer identifiers matching a query.
type MemberSet map[string]struct{}

// NewMemberSet builds a set from a slice of ids.
func NewMemberSet(ids []string) MemberSet {
	set := make(MemberSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Intersect returns the members present in both sets.
func (s MemberSet) Intersect(other MemberSet) MemberSet {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	out := make(MemberSet)
	for id := range small {
		if _, ok := large[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// Union returns the members present in either set.
func (s MemberSet) Union(other MemberSet) MemberSet {
	out := make(MemberSet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// Predicate is one pushed-down filter against the attribute store. The
// predicate list is append-only; compilation is a pure fold over it, so
// AND composition never mutates shared query-builder state.
type Predicate struct {
	Column string
	Op     Operator
	Value  any
}

// ==========================================
// ATTRIBUTE STORE
// ==========================================

// ActivityStatus is the three-state recency classification over payment
// and usage events. It cannot be pushed down as a stored-column filter;
// the store computes it with a batched aggregation query.
type ActivityStatus string

const (
	ActivityActive   ActivityStatus = "active"
	ActivityInactive ActivityStatus = "inactive"
	ActivityDormant  ActivityStatus = "dormant"
)

// AttributeStore is the external queryable customer table. Implemented by
// store.Postgres; tests substitute an in-memory fixture.
type AttributeStore interface {
	// CountMembers returns the number of customers matching every
	// predicate. An empty predicate list counts the whole population.
	CountMembers(ctx context.Context, preds []Predicate) (int, error)

	// MemberIDs returns only the identifiers of customers matching every
	// predicate.
	MemberIDs(ctx context.Context, preds []Predicate) ([]string, error)

	// ResolveTagMembers resolves human-readable tag names to the set of
	// customers carrying any of them: tag name -> tag id -> member ids.
	// Names matching no tag contribute nothing.
	ResolveTagMembers(ctx context.Context, names []string) (MemberSet, error)

	// MembersByActivity returns customers whose recency classification
	// equals status.
	MembersByActivity(ctx context.Context, status ActivityStatus) (MemberSet, error)
}
