// Package workflow implements the post-purchase workflow engine: it walks
// a campaign's flow graph after a conversion event, waits out the wait
// node's delay, and fires exactly one follow-up message per
// (campaign, user, product) tuple despite an at-least-once event stream.
package workflow

import "sync"

// State is the lifecycle of one (campaign, user) workflow execution.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingWorkflow State = "awaiting_workflow"
	StateWaiting          State = "waiting"
	StateSending          State = "sending"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

// StateStore holds the engine's process-local guard sets. Both sets are
// mutated synchronously at decision points, before any asynchronous work
// starts; that ordering is what closes the race window between "event
// observed" and "side effects committed". The store is owned by the
// engine instance, not module scope, and Clear is tied to the engine's
// own stop.
type StateStore struct {
	mu sync.Mutex

	// notified holds every (campaign, user, product) tuple ever seen, for
	// the process lifetime. At-most-once dispatch hangs off this set.
	notified map[string]struct{}

	// executing holds (campaign, user) pairs with a workflow currently in
	// flight, so a duplicate event arriving mid-Wait cannot start a
	// second execution. Cleared when the workflow reaches Done or Failed.
	executing map[string]struct{}

	states map[string]State
}

// NewStateStore creates an empty state store.
func NewStateStore() *StateStore {
	return &StateStore{
		notified:  make(map[string]struct{}),
		executing: make(map[string]struct{}),
		states:    make(map[string]State),
	}
}

// MarkNotified records a tuple and reports whether it was new. A false
// return means the tuple was already observed and must not be acted on.
func (s *StateStore) MarkNotified(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.notified[key]; seen {
		return false
	}
	s.notified[key] = struct{}{}
	return true
}

// BeginExecution claims the execution guard for a pair. False means a
// workflow for the pair is already in flight.
func (s *StateStore) BeginExecution(pair string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, running := s.executing[pair]; running {
		return false
	}
	s.executing[pair] = struct{}{}
	return true
}

// EndExecution releases the execution guard. Safe to call on every exit
// path, including failures.
func (s *StateStore) EndExecution(pair string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.executing, pair)
}

// SetState records the pair's current lifecycle state.
func (s *StateStore) SetState(pair string, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[pair] = state
}

// GetState returns the pair's current state, defaulting to idle.
func (s *StateStore) GetState(pair string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[pair]; ok {
		return st
	}
	return StateIdle
}

// Clear drops every guard and state. Called when the owning engine stops.
func (s *StateStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notified = make(map[string]struct{})
	s.executing = make(map[string]struct{})
	s.states = make(map[string]State)
}
