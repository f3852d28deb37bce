package generic

import (
	"context"
	"sync"

	"github.com/prodo56/streamz/pkg/stream"

	kitlog "github.com/go-kit/kit/log"
)

// CaptureSink is a reference implementation of a sink, storing every
// delivered element in an in-memory list. It satisfies the full sink
// contract, including race-safety.
//
// Beyond offering a sink-to-list destination in its own right, this can be
// used for testing lifecycle and registry behaviour without being coupled to
// an actual backend.
type CaptureSink struct {
	Base
	mu     sync.Mutex
	values []interface{}
}

func NewCapture(logger kitlog.Logger, registry *Registry, upstream stream.Node) *CaptureSink {
	sink := &CaptureSink{values: []interface{}{}}
	sink.Init(sink, logger, registry, upstream, "capture")

	return sink
}

func (s *CaptureSink) Update(ctx context.Context, value interface{}, who stream.Node, metadata []stream.Metadata) (stream.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.values = append(s.values, value)
	return nil, nil
}

// Destroy unregisters the sink. There is no external resource to release.
func (s *CaptureSink) Destroy(context.Context) error {
	s.Teardown()
	return nil
}

func (s *CaptureSink) Values() []interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]interface{}(nil), s.values...)
}
