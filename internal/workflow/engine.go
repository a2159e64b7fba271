package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brightwave/campaign-engine/internal/campaign"
	"github.com/brightwave/campaign-engine/internal/dispatch"
	"github.com/brightwave/campaign-engine/internal/pkg/logger"
	"github.com/brightwave/campaign-engine/internal/stream"
)

// DefaultFallbackDelay applies when a wait node's duration or unit is
// missing or invalid. The workflow never blocks indefinitely on a
// misconfigured node.
const DefaultFallbackDelay = time.Minute

// CampaignLoader loads a campaign's flow graph. Implemented by
// campaign.Store.
type CampaignLoader interface {
	Get(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error)
}

// RecipientResolver resolves a customer id to a deliverable address.
// Implemented by store.Postgres.
type RecipientResolver interface {
	RecipientAddress(ctx context.Context, customerID string) (string, error)
}

// DispatchLogger appends dispatch records. Implemented by campaign.Store.
type DispatchLogger interface {
	LogDispatch(ctx context.Context, rec campaign.DispatchRecord) error
}

// EventSource is the change-notification stream. Implemented by
// stream.Subscriber.
type EventSource interface {
	Subscribe(ctx context.Context, campaignID string, fn func(stream.Event)) error
	Unsubscribe(campaignID string)
}

// EventSink publishes events back onto the stream. Implemented by
// stream.Publisher.
type EventSink interface {
	Publish(ctx context.Context, evt stream.Event) error
}

// Notification is a one-shot, user-visible workflow failure report.
type Notification struct {
	CampaignID string
	UserID     string
	Message    string
}

// Engine orchestrates post-purchase workflows. Per (campaign, user) pair
// it runs the state machine Idle -> AwaitingWorkflow -> Waiting ->
// Sending -> Done|Failed, with at-most-one follow-up send per
// (campaign, user, product) tuple.
type Engine struct {
	campaigns  CampaignLoader
	recipients RecipientResolver
	log        DispatchLogger
	sender     dispatch.Sender
	source     EventSource
	sink       EventSink
	state      *StateStore

	fallbackDelay time.Duration
	onFailure     func(Notification)

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewEngine wires a workflow engine. The state store is constructed per
// engine; nothing survives at module scope.
func NewEngine(campaigns CampaignLoader, recipients RecipientResolver, log DispatchLogger, sender dispatch.Sender, source EventSource, sink EventSink) *Engine {
	return &Engine{
		campaigns:     campaigns,
		recipients:    recipients,
		log:           log,
		sender:        sender,
		source:        source,
		sink:          sink,
		state:         NewStateStore(),
		fallbackDelay: DefaultFallbackDelay,
	}
}

// SetFallbackDelay overrides the delay used for invalid wait nodes.
func (e *Engine) SetFallbackDelay(d time.Duration) { e.fallbackDelay = d }

// OnFailure registers the callback for user-visible failure notifications.
func (e *Engine) OnFailure(fn func(Notification)) { e.onFailure = fn }

// States exposes the state store for status endpoints and tests.
func (e *Engine) States() *StateStore { return e.state }

// Start makes the engine ready to watch campaigns. Idempotent.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.running = true
	logger.Info("workflow: engine started")
}

// Stop tears the engine down: cancels pending delays, waits for in-flight
// executions to drain, and clears the guard sets. No dispatch happens
// after Stop returns.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.cancel()
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("workflow: shutdown timeout, abandoning in-flight executions")
	}

	e.state.Clear()
	logger.Info("workflow: engine stopped")
}

// Watch subscribes the engine to a campaign's conversion events.
func (e *Engine) Watch(campaignID string) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return fmt.Errorf("workflow engine not started")
	}
	ctx := e.ctx
	e.mu.Unlock()
	return e.source.Subscribe(ctx, campaignID, e.HandleEvent)
}

// Unwatch stops watching a campaign. Idempotent.
func (e *Engine) Unwatch(campaignID string) {
	e.source.Unsubscribe(campaignID)
}

func dedupKey(evt stream.Event) string {
	return evt.CampaignID + "|" + evt.UserID + "|" + evt.ProductID
}

func pairKey(evt stream.Event) string {
	return evt.CampaignID + "|" + evt.UserID
}

// HandleEvent is the stream callback. Filtering, de-duplication, and the
// execution guard all happen synchronously here, before any goroutine is
// spawned: the tuple is marked seen before the first await point so a
// duplicate delivered immediately after cannot slip through.
func (e *Engine) HandleEvent(evt stream.Event) {
	if evt.ActionType != stream.ActionPurchase {
		return
	}
	if evt.Origin == stream.OriginWorkflow {
		// A purchase of a follow-up offer; the workflow already ran.
		return
	}

	if !e.state.MarkNotified(dedupKey(evt)) {
		return
	}
	pair := pairKey(evt)
	if !e.state.BeginExecution(pair) {
		return
	}
	e.state.SetState(pair, StateAwaitingWorkflow)

	e.mu.Lock()
	if !e.running {
		e.state.EndExecution(pair)
		e.mu.Unlock()
		return
	}
	ctx := e.ctx
	e.wg.Add(1)
	e.mu.Unlock()

	go e.execute(ctx, evt, pair)
}

func (e *Engine) execute(ctx context.Context, evt stream.Event, pair string) {
	defer e.wg.Done()
	defer e.state.EndExecution(pair)

	campaignID, err := uuid.Parse(evt.CampaignID)
	if err != nil {
		e.fail(pair, evt, fmt.Errorf("bad campaign id %q: %w", evt.CampaignID, err))
		return
	}
	camp, err := e.campaigns.Get(ctx, campaignID)
	if err != nil {
		e.fail(pair, evt, fmt.Errorf("load flow graph: %w", err))
		return
	}
	trigger := camp.TriggerNode()
	if trigger == nil {
		e.fail(pair, evt, fmt.Errorf("flow graph has no trigger node"))
		return
	}

	wait := campaign.FindNextOfType(camp.Nodes, camp.Edges, trigger.ID, campaign.NodeWait)
	if wait == nil {
		// Nothing to schedule; the workflow completes with no action.
		e.state.SetState(pair, StateDone)
		return
	}

	e.state.SetState(pair, StateWaiting)
	if err := e.sleep(ctx, waitDelay(wait, e.fallbackDelay)); err != nil {
		// Torn down mid-wait; no dispatch may happen now.
		return
	}

	e.state.SetState(pair, StateSending)
	channel := campaign.FindNextOfType(camp.Nodes, camp.Edges, wait.ID, campaign.NodeChannel)
	if channel == nil {
		e.fail(pair, evt, fmt.Errorf("no channel node downstream of wait"))
		return
	}
	var link string
	if action := campaign.FindNextOfType(camp.Nodes, camp.Edges, wait.ID, campaign.NodeAction); action != nil {
		link = action.OfferLink
	}

	recipient, err := e.recipients.RecipientAddress(ctx, evt.UserID)
	if err != nil {
		e.fail(pair, evt, fmt.Errorf("resolve recipient: %w", err))
		return
	}

	res, err := e.sender.Send(ctx, dispatch.Message{
		Recipient: recipient,
		Subject:   channel.Subject,
		Body:      channel.Body,
		Link:      link,
	})
	if err != nil {
		e.fail(pair, evt, fmt.Errorf("send follow-up: %w", err))
		return
	}

	// Tag the dispatch on the stream so a purchase of the follow-up offer
	// is recognizable as a workflow byproduct, then log it. Both are
	// best-effort: the send already happened.
	if e.sink != nil {
		if err := e.sink.Publish(ctx, stream.Event{
			CampaignID: evt.CampaignID,
			UserID:     evt.UserID,
			ProductID:  evt.ProductID,
			ActionType: stream.ActionDispatch,
			Origin:     stream.OriginWorkflow,
		}); err != nil {
			logger.Warn("workflow: dispatch event publish failed", "campaign", evt.CampaignID, "error", err.Error())
		}
	}
	if e.log != nil {
		if err := e.log.LogDispatch(ctx, campaign.DispatchRecord{
			CampaignID: evt.CampaignID,
			CustomerID: evt.UserID,
			ProductID:  evt.ProductID,
			Channel:    channel.Channel,
			Recipient:  recipient,
			MessageID:  res.MessageID,
		}); err != nil {
			logger.Warn("workflow: dispatch log write failed", "campaign", evt.CampaignID, "error", err.Error())
		}
	}

	e.state.SetState(pair, StateDone)
}

// fail marks the pair Failed, logs, and raises one user-visible
// notification. Failed workflows are not retried.
func (e *Engine) fail(pair string, evt stream.Event, err error) {
	e.state.SetState(pair, StateFailed)
	logger.Error("workflow: execution failed",
		"campaign", evt.CampaignID, "user", evt.UserID, "error", err.Error())
	if e.onFailure != nil {
		e.onFailure(Notification{
			CampaignID: evt.CampaignID,
			UserID:     evt.UserID,
			Message:    err.Error(),
		})
	}
}

// sleep waits out d, returning early with the context's error on
// teardown. This is a real timer suspension, never a busy wait.
func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// waitDelay converts a wait node's duration and unit into a wall-clock
// delay, falling back when the node is misconfigured.
func waitDelay(node *campaign.Node, fallback time.Duration) time.Duration {
	if node.WaitDuration <= 0 {
		return fallback
	}
	var unit time.Duration
	switch node.WaitUnit {
	case "seconds":
		unit = time.Second
	case "minutes":
		unit = time.Minute
	case "hours":
		unit = time.Hour
	case "days":
		unit = 24 * time.Hour
	default:
		return fallback
	}
	return time.Duration(node.WaitDuration * float64(unit))
}
