// Package mqtt provides a sink that publishes elements to an MQTT broker
// topic. The client connects on the first delivery, synchronously, and stays
// connected for the sink's lifetime.
//
// Delivery confirmation is not awaited: a publish counts as done once handed
// to the client, so broker-level failures never surface through the graph.
// This is a known blind spot of the contract, kept rather than fixed; the
// pubsub sink is the variant that does thread acknowledgement back.
package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prodo56/streamz/pkg/sinks/generic"
	"github.com/prodo56/streamz/pkg/stream"

	paho "github.com/eclipse/paho.mqtt.golang"
	kitlog "github.com/go-kit/kit/log"
	"github.com/pkg/errors"
)

// ErrClosed is returned for deliveries attempted after the sink has been
// destroyed. The client is gone at that point and is never recreated.
var ErrClosed = errors.New("mqtt sink closed")

// disconnectQuiesce is how long Disconnect waits for in-flight work, in
// milliseconds, before dropping the network connection.
const disconnectQuiesce = 250

// Client is the slice of the paho client surface the sink depends on. The
// concrete paho client satisfies it; tests inject their own.
type Client interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

type Options struct {
	Keepalive time.Duration // channel keep-alive interval, default 60s
	QoS       byte
	Retained  bool

	// Configure is applied to the client options immediately before
	// connecting, forwarding whatever extra connect configuration the caller
	// wants verbatim.
	Configure func(*paho.ClientOptions)

	// NewClient builds the broker client. Defaults to the real paho client.
	NewClient func(*paho.ClientOptions) Client
}

type Sink struct {
	generic.Base
	host  string
	port  int
	topic string
	opts  Options

	mu     sync.Mutex
	state  generic.ConnectionState
	client Client
}

func New(logger kitlog.Logger, registry *generic.Registry, upstream stream.Node, host string, port int, topic string, opts Options) *Sink {
	if opts.Keepalive == 0 {
		opts.Keepalive = 60 * time.Second
	}
	if opts.NewClient == nil {
		opts.NewClient = func(options *paho.ClientOptions) Client { return paho.NewClient(options) }
	}

	sink := &Sink{
		host:  host,
		port:  port,
		topic: topic,
		opts:  opts,
		state: generic.Unconnected,
	}
	sink.Init(sink, logger, registry, upstream, "mqtt")

	return sink
}

// Update publishes value to the configured topic. The first delivery
// establishes the connection and blocks the caller for the duration of the
// handshake; no handle is produced for it, unlike the websocket sink. Every
// delivery completes as soon as the publish is handed to the client.
func (s *Sink) Update(ctx context.Context, value interface{}, who stream.Node, _ []stream.Metadata) (stream.Result, error) {
	payload, err := generic.Payload(value)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case generic.Closed:
		return nil, ErrClosed
	case generic.Unconnected:
		if err := s.connect(); err != nil {
			return nil, err
		}
	}

	// Deliberately not awaited, see the package comment.
	_ = s.client.Publish(s.topic, s.opts.QoS, s.opts.Retained, payload)

	return nil, nil
}

// connect is called with s.mu held. A failed connect closes the sink for
// good: configuration errors surface on the first delivery and every
// subsequent one, never at construction.
func (s *Sink) connect() error {
	options := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", s.host, s.port)).
		SetKeepAlive(s.opts.Keepalive)
	if s.opts.Configure != nil {
		s.opts.Configure(options)
	}

	s.state = generic.Connecting
	client := s.opts.NewClient(options)

	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		s.state = generic.Closed
		return errors.Wrap(err, "failed to connect to broker")
	}

	s.client = client
	s.state = generic.Open
	s.Logger().Log("event", "connect", "host", s.host, "port", s.port, "topic", s.topic)

	return nil
}

// Destroy disconnects the client and clears the reference. Disconnecting a
// sink that never connected has nothing to do beyond unregistering; the
// never-connected case is guarded rather than left to fall over on the empty
// client.
func (s *Sink) Destroy(context.Context) error {
	s.Teardown()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		s.client.Disconnect(disconnectQuiesce)
	}
	s.client = nil
	s.state = generic.Closed

	return nil
}

// Client exposes the underlying broker client: non-nil while connected, nil
// once destroyed.
func (s *Sink) Client() Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.client
}

// State reports the connection state, for observability and tests.
func (s *Sink) State() generic.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}
