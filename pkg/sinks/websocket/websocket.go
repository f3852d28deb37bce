// Package websocket provides a sink that writes elements to a bidirectional
// websocket channel. The channel is opened on the first delivery and kept
// open for the sink's lifetime; should it drop, deliveries fail from then on
// rather than reconnect.
package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prodo56/streamz/pkg/sinks/generic"
	"github.com/prodo56/streamz/pkg/stream"

	kitlog "github.com/go-kit/kit/log"
	gorilla "github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// ErrClosed is returned for deliveries attempted after the channel has
// closed, whether through destroy or an observed failure.
var ErrClosed = errors.New("websocket channel closed")

type Options struct {
	Dialer       *gorilla.Dialer // defaults to gorilla.DefaultDialer
	Header       http.Header     // forwarded verbatim to the dial call
	QueueSize    int             // sends buffered before Update blocks, default 64
	CloseTimeout time.Duration   // close handshake budget at destroy, default 5s
}

type delivery struct {
	messageType int
	payload     []byte
	pending     *stream.Pending
}

type Sink struct {
	generic.Base
	uri          string
	dialer       *gorilla.Dialer
	header       http.Header
	closeTimeout time.Duration

	mu    sync.Mutex
	state generic.ConnectionState
	conn  *gorilla.Conn

	sends    chan delivery
	done     chan struct{}
	doneOnce sync.Once
}

func New(logger kitlog.Logger, registry *generic.Registry, upstream stream.Node, uri string, opts Options) *Sink {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = gorilla.DefaultDialer
	}
	queueSize := opts.QueueSize
	if queueSize == 0 {
		queueSize = 64
	}
	closeTimeout := opts.CloseTimeout
	if closeTimeout == 0 {
		closeTimeout = 5 * time.Second
	}

	sink := &Sink{
		uri:          uri,
		dialer:       dialer,
		header:       opts.Header,
		closeTimeout: closeTimeout,
		state:        generic.Unconnected,
		sends:        make(chan delivery, queueSize),
		done:         make(chan struct{}),
	}
	sink.Init(sink, logger, registry, upstream, "websocket")

	return sink
}

// Update queues value for sending and returns a handle that resolves once the
// send has been written to the channel. The first delivery additionally
// triggers the dial: its handle resolves only after both connect and send, and
// elements arriving while the dial is in flight share that one attempt rather
// than racing a second connection.
func (s *Sink) Update(ctx context.Context, value interface{}, who stream.Node, _ []stream.Metadata) (stream.Result, error) {
	messageType, payload, err := encode(value)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	switch s.state {
	case generic.Closed:
		s.mu.Unlock()
		return nil, ErrClosed
	case generic.Unconnected:
		s.state = generic.Connecting
		go s.connect(ctx)
	}
	s.mu.Unlock()

	pending := stream.NewPending()
	select {
	case s.sends <- delivery{messageType, payload, pending}:
		// The channel may have dropped between the state check and the
		// enqueue. Items are popped exactly once, so a second drain here
		// cannot double-resolve anything.
		select {
		case <-s.done:
			s.drain(ErrClosed)
		default:
		}
	case <-s.done:
		return nil, ErrClosed
	}

	return pending, nil
}

func (s *Sink) connect(ctx context.Context) {
	logger := kitlog.With(s.Logger(), "uri", s.uri)
	conn, _, err := s.dialer.DialContext(ctx, s.uri, s.header)

	s.mu.Lock()
	if err != nil {
		s.state = generic.Closed
		s.mu.Unlock()

		logger.Log("event", "connect_failed", "error", err)
		s.shutdown(errors.Wrap(err, "failed to connect"))
		return
	}

	if s.state != generic.Connecting {
		// Destroyed while the dial was in flight: the channel never counts as
		// opened, we just give the connection straight back.
		s.mu.Unlock()
		conn.Close()
		return
	}

	s.conn = conn
	s.state = generic.Open
	s.mu.Unlock()

	logger.Log("event", "connect")
	go s.writeLoop(conn)
}

func (s *Sink) writeLoop(conn *gorilla.Conn) {
	for {
		select {
		case <-s.done:
			s.drain(ErrClosed)
			return
		case item := <-s.sends:
			if err := conn.WriteMessage(item.messageType, item.payload); err != nil {
				// The channel dropped under us: fail this send, everything
				// queued behind it, and every delivery after.
				s.mu.Lock()
				s.state = generic.Closed
				s.conn = nil
				s.mu.Unlock()

				conn.Close()
				item.pending.Resolve(errors.Wrap(err, "failed to send"))
				s.Logger().Log("event", "send_failed", "error", err)
				s.shutdown(ErrClosed)
				return
			}

			item.pending.Resolve(nil)
		}
	}
}

// shutdown closes the done channel, once, and fails whatever is queued.
func (s *Sink) shutdown(err error) {
	s.doneOnce.Do(func() { close(s.done) })
	s.drain(err)
}

func (s *Sink) drain(err error) {
	for {
		select {
		case item := <-s.sends:
			item.pending.Resolve(err)
		default:
			return
		}
	}
}

// Destroy unregisters the sink and, when the channel is open, runs the close
// handshake to completion before returning. Sends are asynchronous but
// teardown deliberately blocks on the peer acknowledging the close.
func (s *Sink) Destroy(ctx context.Context) error {
	s.Teardown()

	s.mu.Lock()
	state, conn := s.state, s.conn
	s.state = generic.Closed
	s.conn = nil
	s.mu.Unlock()

	s.shutdown(ErrClosed)

	if state != generic.Open || conn == nil {
		return nil
	}

	deadline := time.Now().Add(s.closeTimeout)
	message := gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, "")
	if err := conn.WriteControl(gorilla.CloseMessage, message, deadline); err != nil && err != gorilla.ErrCloseSent {
		conn.Close()
		return errors.Wrap(err, "failed to send close frame")
	}

	// Wait for the peer's close frame, or the deadline, before dropping the
	// connection.
	conn.SetReadDeadline(deadline)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	return errors.Wrap(conn.Close(), "failed to close connection")
}

// State reports the connection state, for observability and tests.
func (s *Sink) State() generic.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func encode(value interface{}) (int, []byte, error) {
	switch v := value.(type) {
	case []byte:
		return gorilla.BinaryMessage, v, nil
	case string:
		return gorilla.TextMessage, []byte(v), nil
	}

	return 0, nil, errors.Errorf("unsupported payload type %T", value)
}
