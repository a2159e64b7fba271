package store

import "errors"

// ErrNoRecipient means a customer exists but has no deliverable address,
// or the customer id is unknown. Workflow executions treat this as a
// terminal failure, not a retryable one.
var ErrNoRecipient = errors.New("no recipient address")
