// Package dispatch provides implementations of verifier.Dispatcher.
//
// Func adapts an in-process function. Queue appends events to a Redis list for
// asynchronous workers and acknowledges Slack immediately. Forwarder relays
// events to an HTTP backend and returns the backend's answer to Slack.
package dispatch

import (
	"context"

	v1 "github.com/m-lab/slackhook/api/v1"
)

// Func adapts an ordinary function to the verifier.Dispatcher interface.
type Func func(ctx context.Context, ev *v1.Event) (*v1.Result, error)

// Dispatch calls f(ctx, ev).
func (f Func) Dispatch(ctx context.Context, ev *v1.Event) (*v1.Result, error) {
	return f(ctx, ev)
}
