package channel

import (
	"context"
	"fmt"

	"invite-engine/internal/template"
)

// Channel delivers one prepared message descriptor to the messaging
// provider and returns the provider-assigned message identifier. All
// retry and idempotency policy lives with the caller; implementations
// make exactly one delivery attempt per call.
type Channel interface {
	Send(ctx context.Context, d template.Descriptor) (providerMessageID string, err error)
}

// ChannelError wraps a transport or auth failure from the provider.
type ChannelError struct {
	Op    string
	Cause error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel: %s: %v", e.Op, e.Cause)
}

func (e *ChannelError) Unwrap() error {
	return e.Cause
}
