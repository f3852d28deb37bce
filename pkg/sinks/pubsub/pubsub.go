// Package pubsub provides a sink that publishes elements to a Google Cloud
// Pub/Sub topic. Unlike the mqtt sink, broker acknowledgement is threaded
// back into the graph: every delivery returns a handle that resolves once the
// server has confirmed the publish, so a failed publish is a failed delivery.
package pubsub

import (
	"context"
	"sync"

	"github.com/prodo56/streamz/pkg/sinks/generic"
	"github.com/prodo56/streamz/pkg/stream"

	gcppubsub "cloud.google.com/go/pubsub"
	kitlog "github.com/go-kit/kit/log"
	"github.com/pkg/errors"
)

// ErrClosed is returned for deliveries attempted after the sink has been
// destroyed.
var ErrClosed = errors.New("pubsub sink closed")

type Sink struct {
	generic.Base
	mu    sync.Mutex
	topic *gcppubsub.Topic
}

// New wraps an existing topic handle. The topic is cheap and already carries
// its own connection management, so there is no lazy-connect state machine
// here; the sink's job is tying publish acknowledgement into delivery
// handles, and stopping the topic at destroy.
func New(logger kitlog.Logger, registry *generic.Registry, upstream stream.Node, topic *gcppubsub.Topic) *Sink {
	sink := &Sink{topic: topic}
	sink.Init(sink, logger, registry, upstream, "pubsub")

	return sink
}

// Update publishes value to the topic and returns a handle resolved by the
// server's acknowledgement.
func (s *Sink) Update(ctx context.Context, value interface{}, who stream.Node, _ []stream.Metadata) (stream.Result, error) {
	payload, err := generic.Payload(value)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	topic := s.topic
	s.mu.Unlock()

	if topic == nil {
		return nil, ErrClosed
	}

	result := topic.Publish(ctx, &gcppubsub.Message{Data: payload})

	pending := stream.NewPending()
	go func() {
		// The publish is already in flight: waiting on it is scoped to the
		// sink's lifetime, not to the delivering call's context.
		_, err := result.Get(context.Background())
		pending.Resolve(errors.Wrap(err, "failed to publish"))
	}()

	return pending, nil
}

// Destroy stops the topic, flushing outstanding publishes, and clears the
// reference.
func (s *Sink) Destroy(context.Context) error {
	s.Teardown()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.topic != nil {
		s.topic.Stop()
	}
	s.topic = nil

	return nil
}

// Topic exposes the underlying topic handle: non-nil until destroyed.
func (s *Sink) Topic() *gcppubsub.Topic {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.topic
}
