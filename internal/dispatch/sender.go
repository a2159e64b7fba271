// Package dispatch hands composed follow-up messages to an external
// delivery provider. The engine decides when and with what content to
// send; delivery mechanics live behind the Sender interface.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/brightwave/campaign-engine/internal/pkg/logger"
)

// Message is one outbound follow-up.
type Message struct {
	Recipient string
	Subject   string
	Body      string
	Link      string
}

// Result reports a delivery attempt.
type Result struct {
	Success   bool
	MessageID string
	SentAt    time.Time
}

// Sender delivers a message. Implementations must be safe for concurrent
// use.
type Sender interface {
	Send(ctx context.Context, msg Message) (Result, error)
}

// LogSender is the development sender: it logs the message and reports
// success without delivering anything.
type LogSender struct{}

// Send logs the message and fabricates a message id.
func (LogSender) Send(_ context.Context, msg Message) (Result, error) {
	logger.Info("dispatch: would send message",
		"recipient", msg.Recipient,
		"subject", msg.Subject,
		"link", msg.Link,
	)
	return Result{Success: true, MessageID: "log-" + uuid.New().String()[:8], SentAt: time.Now()}, nil
}
