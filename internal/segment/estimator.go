package segment

import (
	"context"
	"sync"
	"time"
)

// ==========================================
// CRITERIA ESTIMATION
// ==========================================

// DefaultDebounce is the quiescence window between a criteria edit and the
// estimate it schedules.
const DefaultDebounce = 500 * time.Millisecond

// EstimateResult is one completed estimation cycle. Count is nil on
// failure: zero is a valid population and is never conflated with an
// error. Members is populated only when the caller asked for it.
type EstimateResult struct {
	Count   *int
	Members MemberSet
	Err     error
}

// Estimator computes the population matching a criteria chain. It owns the
// interactive concerns: debouncing rapid edits and cancelling stale
// in-flight estimates so the emitted count always reflects the most recent
// criteria (last-request-wins, not first-response-wins).
type Estimator struct {
	store    AttributeStore
	compiler *Compiler
	debounce time.Duration

	mu       sync.Mutex
	gen      uint64
	timer    *time.Timer
	cancel   context.CancelFunc
	loading  bool
	closed   bool
	onResult func(EstimateResult)
}

// NewEstimator creates an estimator with the default debounce window.
func NewEstimator(store AttributeStore) *Estimator {
	return &Estimator{
		store:    store,
		compiler: NewCompiler(store),
		debounce: DefaultDebounce,
	}
}

// SetDebounce overrides the quiescence window. Tests use short windows.
func (e *Estimator) SetDebounce(d time.Duration) { e.debounce = d }

// OnResult registers the callback receiving completed estimates. Results
// superseded by a newer request are never delivered.
func (e *Estimator) OnResult(fn func(EstimateResult)) {
	e.mu.Lock()
	e.onResult = fn
	e.mu.Unlock()
}

// Loading reports whether an estimate is scheduled or in flight.
func (e *Estimator) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// Estimate synchronously computes the population count for the criteria.
func (e *Estimator) Estimate(ctx context.Context, criteria SegmentCriteria) (int, error) {
	count, _, err := e.run(ctx, criteria, false)
	return count, err
}

// EstimateMembers computes the matching member set, for callers that need
// the rows themselves (member preview, actual list fetch).
func (e *Estimator) EstimateMembers(ctx context.Context, criteria SegmentCriteria) (MemberSet, error) {
	_, members, err := e.run(ctx, criteria, true)
	return members, err
}

// Schedule queues a debounced estimate for the criteria. A newer call
// within the window supersedes this one entirely; a newer call after this
// one's query started causes its result to be dropped on completion.
func (e *Estimator) Schedule(criteria SegmentCriteria) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	e.gen++
	gen := e.gen
	e.loading = true
	if e.timer != nil {
		e.timer.Stop()
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.timer = time.AfterFunc(e.debounce, func() {
		e.runScheduled(gen, criteria)
	})
}

// Close stops the pending timer and cancels any in-flight estimate. No
// callback fires after Close returns.
func (e *Estimator) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.gen++ // invalidates any in-flight result
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.loading = false
}

func (e *Estimator) runScheduled(gen uint64, criteria SegmentCriteria) {
	e.mu.Lock()
	if e.closed || gen != e.gen {
		e.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.mu.Unlock()

	count, _, err := e.run(ctx, criteria, false)
	cancel()

	e.mu.Lock()
	if e.closed || gen != e.gen {
		// Superseded while the query was in flight; drop the stale result.
		e.mu.Unlock()
		return
	}
	e.loading = false
	e.cancel = nil
	cb := e.onResult
	e.mu.Unlock()

	if cb == nil {
		return
	}
	res := EstimateResult{Err: err}
	if err == nil {
		res.Count = &count
	}
	cb(res)
}

// run folds the condition groups left to right. Each group's member set is
// intersected (AND) or unioned (OR) with the accumulated result according
// to that group's GroupOperator; the first group's GroupOperator is
// ignored.
//
// Fast path: when every group compiles to a pure conjunctive plan and
// every inter-group operator is AND, the whole chain collapses into one
// pushed-down count query instead of materializing id sets.
func (e *Estimator) run(ctx context.Context, criteria SegmentCriteria, wantMembers bool) (int, MemberSet, error) {
	criteria = criteria.Normalize()
	groups := criteria.ConditionGroups

	results := make([]GroupResult, len(groups))
	allPushdown := true
	for i, group := range groups {
		r, err := e.compiler.Compile(ctx, group)
		if err != nil {
			return 0, nil, err
		}
		results[i] = r
		if r.Materialized() {
			allPushdown = false
		}
		if i > 0 && group.GroupOperator == LogicOr {
			allPushdown = false
		}
	}

	if allPushdown && !wantMembers {
		var preds []Predicate
		for _, r := range results {
			preds = append(preds, r.Plan...)
		}
		count, err := e.store.CountMembers(ctx, preds)
		if err != nil {
			return 0, nil, err
		}
		return count, nil, nil
	}

	// General path: materialize each group and fold with set operations.
	// "universe" survives the fold symbolically so an unrestricted chain
	// never fetches every identifier just to count them.
	universe := true
	var current MemberSet

	for i, r := range results {
		op := LogicAnd
		if i > 0 {
			op = groups[i].GroupOperator
			if op != LogicOr {
				op = LogicAnd
			}
		}

		if r.Universe {
			// AND with everyone is a no-op; OR with everyone makes the
			// accumulated result unrestricted again.
			if i == 0 || op == LogicOr {
				universe = true
				current = nil
			}
			continue
		}

		set := r.Members
		if set == nil {
			ids, err := e.store.MemberIDs(ctx, r.Plan)
			if err != nil {
				return 0, nil, err
			}
			set = NewMemberSet(ids)
		}

		if i == 0 {
			universe = false
			current = set
			continue
		}
		if op == LogicOr {
			if universe {
				continue
			}
			current = current.Union(set)
		} else {
			if universe {
				universe = false
				current = set
				continue
			}
			current = current.Intersect(set)
		}
	}

	if universe {
		count, err := e.store.CountMembers(ctx, nil)
		if err != nil {
			return 0, nil, err
		}
		if wantMembers {
			ids, err := e.store.MemberIDs(ctx, nil)
			if err != nil {
				return 0, nil, err
			}
			return count, NewMemberSet(ids), nil
		}
		return count, nil, nil
	}
	return len(current), current, nil
}
