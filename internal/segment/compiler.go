package segment

import "context"

// ==========================================
// GROUP COMPILATION
// ==========================================

// GroupResult is the compiled form of one condition group. Exactly one of
// three shapes:
//   - Universe: the group imposes no restriction (empty AND group);
//   - Plan: a pure conjunctive predicate list, still pushed down (the
//     estimator may merge it with other plans into a single count query);
//   - Members: a materialized member set.
type GroupResult struct {
	Universe bool
	Plan     []Predicate
	Members  MemberSet
}

// Materialized reports whether the result already carries a member set.
func (r GroupResult) Materialized() bool {
	return !r.Universe && r.Plan == nil
}

// Compiler combines a group's conditions under its intra-group operator.
//
// AND groups push every column predicate down as one conjunctive query.
// OR groups cannot be pushed down in the general case: each condition is
// queried separately for member identifiers and the results are unioned
// in memory, which is materially more expensive than the AND path.
type Compiler struct {
	store AttributeStore
	eval  *Evaluator
}

// NewCompiler creates a compiler over the given store.
func NewCompiler(store AttributeStore) *Compiler {
	return &Compiler{store: store, eval: NewEvaluator(store)}
}

// Compile evaluates a group's conditions and combines them.
//
// Identity conventions for empty groups: an AND group with no effective
// conditions matches everyone (identity for intersection); an OR group
// with no effective conditions matches nobody, so it never vacuously
// injects the whole population into a union chain.
func (c *Compiler) Compile(ctx context.Context, group ConditionGroup) (GroupResult, error) {
	frags := make([]Fragment, 0, len(group.Conditions))
	for _, cond := range group.Conditions {
		frag, err := c.eval.Evaluate(ctx, cond)
		if err != nil {
			return GroupResult{}, err
		}
		if frag.Skipped {
			continue
		}
		frags = append(frags, frag)
	}

	if group.Operator == LogicOr {
		return c.compileOr(ctx, frags)
	}
	return c.compileAnd(ctx, frags)
}

func (c *Compiler) compileAnd(ctx context.Context, frags []Fragment) (GroupResult, error) {
	if len(frags) == 0 {
		return GroupResult{Universe: true}, nil
	}

	var preds []Predicate
	var sets []MemberSet
	for _, frag := range frags {
		if frag.Pred != nil {
			preds = append(preds, *frag.Pred)
		} else {
			sets = append(sets, frag.Members)
		}
	}

	// Fast shape: every condition pushed down, defer execution to the
	// estimator so an all-AND chain can run as a single count query.
	if len(sets) == 0 {
		return GroupResult{Plan: preds}, nil
	}

	// Mixed shape: run the pushed-down part once, then intersect with the
	// pre-resolved sets.
	result := sets[0]
	for _, set := range sets[1:] {
		result = result.Intersect(set)
	}
	if len(preds) > 0 {
		ids, err := c.store.MemberIDs(ctx, preds)
		if err != nil {
			return GroupResult{}, err
		}
		result = result.Intersect(NewMemberSet(ids))
	}
	return GroupResult{Members: result}, nil
}

func (c *Compiler) compileOr(ctx context.Context, frags []Fragment) (GroupResult, error) {
	result := MemberSet{}
	for _, frag := range frags {
		if frag.Pred != nil {
			// One id-only query per condition; no conjunctive pushdown
			// exists for a disjunction across arbitrary fragments.
			ids, err := c.store.MemberIDs(ctx, []Predicate{*frag.Pred})
			if err != nil {
				return GroupResult{}, err
			}
			result = result.Union(NewMemberSet(ids))
		} else {
			result = result.Union(frag.Members)
		}
	}
	return GroupResult{Members: result}, nil
}
