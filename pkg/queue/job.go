package queue

import "context"

// Job handles one message type. Handle receives the payload as json.RawMessage;
// decode it with ParsePayload.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload interface{}) error
}
