// Package stream declares the contract between the dataflow graph and its
// terminal nodes. The graph itself, along with node construction, wiring and
// scheduling, lives outside this module: sinks depend only on the small
// surface declared here.
package stream

import "context"

// Metadata carries per-element annotations through the graph.
type Metadata map[string]interface{}

// Node is an upstream graph node that a terminal node hangs from. A sink
// attaches itself at construction so it receives subsequent deliveries, and
// detaches when destroyed.
type Node interface {
	Attach(Updater)
	Detach(Updater)
}

// Updater consumes one element per call. Elements are delivered in emission
// order, one invocation at a time, by the graph's event loop.
//
// A nil Result with a nil error means the side effect completed before Update
// returned. A non-nil Result is the sink's backpressure signal: the scheduler
// must not consider the delivery settled until the result resolves. A non-nil
// error is a synchronous failure and the delivery is settled immediately.
type Updater interface {
	Update(ctx context.Context, value interface{}, who Node, metadata []Metadata) (Result, error)
}
