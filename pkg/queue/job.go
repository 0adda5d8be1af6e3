package queue

import (
	"context"
	"encoding/json"
)

// Job handles one message type.
type Job interface {
	// Type returns the message type the job handles.
	Type() string

	// Handle processes one payload. A returned error schedules a retry until
	// the retry limit is reached, after which the message is dead-lettered.
	Handle(ctx context.Context, payload json.RawMessage) error
}
