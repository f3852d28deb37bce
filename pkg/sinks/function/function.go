// Package function provides a sink that applies an arbitrary side-effecting
// function to every element delivered by the graph.
package function

import (
	"context"

	"github.com/prodo56/streamz/pkg/sinks/generic"
	"github.com/prodo56/streamz/pkg/stream"

	kitlog "github.com/go-kit/kit/log"
)

// Func is the effect applied per element. It receives the delivered value as
// the leading argument, followed by whatever fixed arguments were bound at
// construction.
//
// Returning a non-nil Result marks the effect as asynchronous: the handle is
// passed back to the graph untouched, so the function's own completion drives
// backpressure. Returning (nil, nil) marks the effect as already complete.
type Func func(ctx context.Context, args ...interface{}) (stream.Result, error)

// KV is a named call argument, bound with Keyword.
type KV struct {
	Name  string
	Value interface{}
}

// Option is a single entry in the construction bag. Entries whose names match
// a recognized graph-level configuration option configure the node; all
// others are bound as call arguments to the function.
type Option struct {
	Name  string
	Value interface{}
}

// Arg binds a fixed positional argument, passed to the function after the
// delivered element.
func Arg(value interface{}) Option {
	return Option{Value: value}
}

// Keyword binds a fixed named argument, passed to the function as a KV after
// the positional arguments. A name matching a graph-level option is routed to
// the node instead.
func Keyword(name string, value interface{}) Option {
	return Option{Name: name, Value: value}
}

// WithName names the node.
func WithName(name string) Option {
	return Option{Name: "name", Value: name}
}

type Sink struct {
	generic.Base
	fn   Func
	args []interface{}
}

// New constructs the sink around fn. The option bag is split at construction
// by consulting the recognized configuration option names, not by position or
// convention: recognized entries configure the node, the remainder become the
// function's fixed arguments.
func New(logger kitlog.Logger, registry *generic.Registry, upstream stream.Node, fn Func, opts ...Option) *Sink {
	name := "function"
	positional := []interface{}{}
	keywords := []interface{}{}

	for _, opt := range opts {
		switch {
		case generic.IsNodeOption(opt.Name):
			if opt.Name == "name" {
				name, _ = opt.Value.(string)
			}
		case opt.Name == "":
			positional = append(positional, opt.Value)
		default:
			keywords = append(keywords, KV{Name: opt.Name, Value: opt.Value})
		}
	}

	sink := &Sink{fn: fn, args: append(positional, keywords...)}
	sink.Init(sink, logger, registry, upstream, name)

	return sink
}

// Update invokes the function with value prepended to the fixed arguments. A
// handle returned by the function propagates as-is.
func (s *Sink) Update(ctx context.Context, value interface{}, who stream.Node, _ []stream.Metadata) (stream.Result, error) {
	args := make([]interface{}, 0, len(s.args)+1)
	args = append(args, value)
	args = append(args, s.args...)

	return s.fn(ctx, args...)
}

// Destroy unregisters the sink. There is no external resource to release.
func (s *Sink) Destroy(context.Context) error {
	s.Teardown()
	return nil
}
