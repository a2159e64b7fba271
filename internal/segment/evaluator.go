package segment

import (
	"context"
	"strconv"
	"time"
)

// ==========================================
// CONDITION EVALUATION
// ==========================================

// Fragment is the compiled form of one condition. Exactly one of the
// following holds: Skipped (the condition contributes no restriction),
// Pred (a pushed-down column predicate), or Members (a pre-resolved
// member set for conditions the store cannot express as a column filter).
type Fragment struct {
	Skipped bool
	Pred    *Predicate
	Members MemberSet
}

// Evaluator compiles atomic conditions into fragments. Malformed or
// incomplete conditions are skipped, never surfaced as errors: the builder
// UI produces partially-edited criteria as a matter of course.
type Evaluator struct {
	store AttributeStore
	now   func() time.Time
}

// NewEvaluator creates an evaluator backed by the given attribute store.
func NewEvaluator(store AttributeStore) *Evaluator {
	return &Evaluator{store: store, now: time.Now}
}

// Evaluate compiles a single condition. Unknown fields, disallowed
// operators, empty values, and unparseable numerics all yield a skipped
// fragment. Store failures (tag/activity resolution) are the only errors.
func (e *Evaluator) Evaluate(ctx context.Context, cond Condition) (Fragment, error) {
	spec, ok := LookupField(cond.Field)
	if !ok {
		return Fragment{Skipped: true}, nil
	}
	if !spec.AllowsOperator(cond.Operator) {
		return Fragment{Skipped: true}, nil
	}
	if cond.Value == "" && len(cond.Values) == 0 {
		// Not yet configured in the builder.
		return Fragment{Skipped: true}, nil
	}

	switch spec.Class {
	case ClassNumeric:
		return e.numericFragment(spec, cond), nil
	case ClassEnum:
		return e.enumFragment(spec, cond), nil
	case ClassTenure:
		return e.tenureFragment(spec, cond), nil
	case ClassTags:
		return e.tagFragment(ctx, cond)
	case ClassActivity:
		return e.activityFragment(ctx, cond)
	}
	return Fragment{Skipped: true}, nil
}

func (e *Evaluator) numericFragment(spec FieldSpec, cond Condition) Fragment {
	val, err := strconv.ParseFloat(cond.Value, 64)
	if err != nil {
		return Fragment{Skipped: true}
	}
	return Fragment{Pred: &Predicate{Column: spec.Column, Op: cond.Operator, Value: val}}
}

func (e *Evaluator) enumFragment(spec FieldSpec, cond Condition) Fragment {
	if cond.Operator == OpIn {
		values := cond.Values
		if len(values) == 0 {
			values = []string{cond.Value}
		}
		return Fragment{Pred: &Predicate{Column: spec.Column, Op: OpIn, Value: values}}
	}
	return Fragment{Pred: &Predicate{Column: spec.Column, Op: OpEq, Value: cond.Value}}
}

// tenureFragment converts "N days since registration, operator OP" into a
// cutoff-date predicate. A longer tenure means an earlier registration
// date, so the ordering operators flip: tenure > 90 days matches
// registration_date < now-90d. Equality compares against the cutoff date
// unchanged.
func (e *Evaluator) tenureFragment(spec FieldSpec, cond Condition) Fragment {
	days, err := strconv.Atoi(cond.Value)
	if err != nil || days < 0 {
		return Fragment{Skipped: true}
	}
	cutoff := e.now().AddDate(0, 0, -days)

	var op Operator
	switch cond.Operator {
	case OpGt:
		op = OpLt
	case OpGte:
		op = OpLte
	case OpLt:
		op = OpGt
	case OpLte:
		op = OpGte
	case OpEq:
		op = OpEq
	default:
		return Fragment{Skipped: true}
	}
	return Fragment{Pred: &Predicate{Column: spec.Column, Op: op, Value: cutoff}}
}

// tagFragment resolves tag names to a member set. A name matching no tag,
// or a tag with no assignments, contributes the empty set: "nobody", not
// "ignore this condition".
func (e *Evaluator) tagFragment(ctx context.Context, cond Condition) (Fragment, error) {
	names := cond.Values
	if len(names) == 0 {
		names = []string{cond.Value}
	}
	members, err := e.store.ResolveTagMembers(ctx, names)
	if err != nil {
		return Fragment{}, err
	}
	if members == nil {
		members = MemberSet{}
	}
	return Fragment{Members: members}, nil
}

func (e *Evaluator) activityFragment(ctx context.Context, cond Condition) (Fragment, error) {
	statuses := cond.Values
	if len(statuses) == 0 {
		statuses = []string{cond.Value}
	}
	members := MemberSet{}
	for _, s := range statuses {
		status := ActivityStatus(s)
		switch status {
		case ActivityActive, ActivityInactive, ActivityDormant:
		default:
			continue
		}
		set, err := e.store.MembersByActivity(ctx, status)
		if err != nil {
			return Fragment{}, err
		}
		members = members.Union(set)
	}
	return Fragment{Members: members}, nil
}
