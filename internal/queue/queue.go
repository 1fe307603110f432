// Package queue moves run-this-chat jobs from the API to the workers.
// Two bindings exist: Amazon SQS for deployments and an on-disk spool
// for single-machine setups. Both are at-least-once; the worker is
// idempotent against redelivery.
package queue

import "context"

// Job asks a worker to advance one chat.
type Job struct {
	ChatID  string `json:"chat_id"`
	BotName string `json:"bot_name,omitempty"`
	UserID  int64  `json:"user_id,omitempty"`
}

// Dispatcher is the producer side.
type Dispatcher interface {
	Enqueue(ctx context.Context, job Job) error
}

// Delivery is one received job plus its acknowledgement. Ack removes
// the job; an unacked job is redelivered.
type Delivery struct {
	Job Job
	Ack func(ctx context.Context) error
}

// Consumer is the worker side. Receive blocks until a job arrives or
// ctx is cancelled.
type Consumer interface {
	Receive(ctx context.Context) (*Delivery, error)
}
