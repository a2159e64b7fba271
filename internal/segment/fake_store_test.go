package segment

import (
	"context"
	"sort"
	"sync"
	"time"
)

// fakeCustomer is one row of the in-memory fixture.
type fakeCustomer struct {
	age        float64
	arpu       float64
	city       string
	tier       string
	registered time.Time
}

// fakeStore implements AttributeStore over an in-memory fixture and
// counts how often each query path runs.
type fakeStore struct {
	mu        sync.Mutex
	customers map[string]fakeCustomer
	tags      map[string][]string
	activity  map[ActivityStatus][]string

	countCalls int
	idCalls    int
	queryDelay time.Duration
	failWith   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		customers: map[string]fakeCustomer{},
		tags:      map[string][]string{},
		activity:  map[ActivityStatus][]string{},
	}
}

func (f *fakeStore) add(id string, c fakeCustomer) {
	f.customers[id] = c
}

func (f *fakeStore) matches(c fakeCustomer, pred Predicate) bool {
	switch pred.Column {
	case "age", "arpu":
		val := c.age
		if pred.Column == "arpu" {
			val = c.arpu
		}
		want := pred.Value.(float64)
		switch pred.Op {
		case OpGt:
			return val > want
		case OpGte:
			return val >= want
		case OpLt:
			return val < want
		case OpLte:
			return val <= want
		case OpEq:
			return val == want
		}
	case "city", "tier":
		val := c.city
		if pred.Column == "tier" {
			val = c.tier
		}
		switch pred.Op {
		case OpEq:
			return val == pred.Value.(string)
		case OpIn:
			for _, v := range pred.Value.([]string) {
				if v == val {
					return true
				}
			}
			return false
		}
	case "registration_date":
		cutoff := pred.Value.(time.Time)
		switch pred.Op {
		case OpLt:
			return c.registered.Before(cutoff)
		case OpLte:
			return !c.registered.After(cutoff)
		case OpGt:
			return c.registered.After(cutoff)
		case OpGte:
			return !c.registered.Before(cutoff)
		case OpEq:
			return c.registered.Equal(cutoff)
		}
	}
	return false
}

func (f *fakeStore) matchingIDs(preds []Predicate) []string {
	var ids []string
	for id, c := range f.customers {
		ok := true
		for _, p := range preds {
			if !f.matches(c, p) {
				ok = false
				break
			}
		}
		if ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (f *fakeStore) wait(ctx context.Context) error {
	f.mu.Lock()
	delay := f.queryDelay
	err := f.failWith
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *fakeStore) CountMembers(ctx context.Context, preds []Predicate) (int, error) {
	f.mu.Lock()
	f.countCalls++
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return 0, err
	}
	return len(f.matchingIDs(preds)), nil
}

func (f *fakeStore) MemberIDs(ctx context.Context, preds []Predicate) ([]string, error) {
	f.mu.Lock()
	f.idCalls++
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.matchingIDs(preds), nil
}

func (f *fakeStore) ResolveTagMembers(ctx context.Context, names []string) (MemberSet, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	out := MemberSet{}
	for _, name := range names {
		for _, id := range f.tags[name] {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func (f *fakeStore) MembersByActivity(ctx context.Context, status ActivityStatus) (MemberSet, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return NewMemberSet(f.activity[status]), nil
}

func (f *fakeStore) calls() (count, ids int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countCalls, f.idCalls
}
