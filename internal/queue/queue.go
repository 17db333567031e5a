// Package queue holds the delivery substrates that hold a deferred share
// request until its fire time and then hand it to a dispatcher.
//
// Every substrate delivers at least once. A request is identified by a
// deterministic key; scheduling the same key twice never yields two pending
// deliveries.
package queue

import (
	"context"
	"time"
)

// Payload is the body of a deferred request. It only references the post so
// the consumer always re-reads current state.
type Payload struct {
	PostID uint `json:"post_id"`
}

// Request is a uniquely keyed deferred request.
type Request struct {
	Key     string
	FireAt  time.Time
	Payload Payload
}

// Scheduler accepts deferred requests.
type Scheduler interface {
	Schedule(ctx context.Context, req Request) error
}

// DispatchFunc consumes a due request. A non-nil error asks the substrate to
// deliver the request again later.
type DispatchFunc func(ctx context.Context, payload Payload) error
