package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type QueueService interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

// QueueConfig contains the configuration for the queue
type QueueConfig struct {
	Workers       int           // number of workers
	RetryLimit    int           // retries before a message is dead-lettered
	RetryDelay    time.Duration // delay before the first retry, doubled per attempt
	MaxRetryDelay time.Duration // cap on the doubled delay
	JobTimeout    time.Duration // per-attempt deadline, zero for none
}

// Message is the envelope stored in Redis.
type Message struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Payload   json.RawMessage   `json:"payload"`
	Attempts  int               `json:"attempts"`
	Timestamp time.Time         `json:"timestamp"`
	Trace     map[string]string `json:"trace,omitempty"`
}

// QueueMode defines which half of the queue a process runs.
type QueueMode int

const (
	ModeProducerConsumer QueueMode = iota
	ModeProducerOnly
	ModeConsumerOnly
)

func (m QueueMode) String() string {
	switch m {
	case ModeProducerOnly:
		return "producer"
	case ModeConsumerOnly:
		return "consumer"
	default:
		return "both"
	}
}

// ParseMode accepts "both", "producer" or "consumer".
func ParseMode(s string) (QueueMode, error) {
	switch s {
	case "", "both":
		return ModeProducerConsumer, nil
	case "producer":
		return ModeProducerOnly, nil
	case "consumer":
		return ModeConsumerOnly, nil
	}
	return 0, fmt.Errorf("unknown queue mode %q", s)
}

func ParsePayload[T any](payload interface{}) (*T, error) {
	var result T

	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		if err := json.Unmarshal(p, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		return &result, nil
	case []byte:
		if err := json.Unmarshal(p, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		return &result, nil
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal json to struct: %w", err)
		}
		return &result, nil
	default:
		return nil, fmt.Errorf("invalid payload type: %T", payload)
	}
}
