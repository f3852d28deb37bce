// Package textfile provides a sink that writes elements to a plain text
// file, one element per terminator. Writes are synchronous: this is the one
// sink variant that never suspends.
package textfile

import (
	"context"
	"encoding"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"

	"github.com/prodo56/streamz/pkg/sinks/generic"
	"github.com/prodo56/streamz/pkg/stream"

	"github.com/alecthomas/kingpin"
	kitlog "github.com/go-kit/kit/log"
	"github.com/pkg/errors"
)

// ErrNotText is returned when a delivered element cannot be rendered as text.
var ErrNotText = errors.New("value is not textual")

const (
	ModeAppend   = "append"
	ModeTruncate = "truncate"
)

type Options struct {
	Mode       string // how to open a path target, ModeAppend unless set
	Terminator string // written after every element, newline unless set
}

func (opt *Options) Bind(app *kingpin.Application, prefix string) *Options {
	app.Flag(fmt.Sprintf("%smode", prefix), "How to open the target file").Default(ModeAppend).EnumVar(&opt.Mode, ModeAppend, ModeTruncate)
	app.Flag(fmt.Sprintf("%sterminator", prefix), "Written after every element").Default("\n").StringVar(&opt.Terminator)

	return opt
}

type Sink struct {
	generic.Base
	mu     sync.Mutex
	writer io.Writer
	guard  *closeGuard
	end    string
}

// New opens path eagerly, per opts.Mode, and returns a sink writing to it.
// Unopenable targets surface here, at construction, not at first delivery.
// The handle is released when the sink is destroyed, and by a runtime cleanup
// should the instance be dropped without an explicit destroy.
func New(logger kitlog.Logger, registry *generic.Registry, upstream stream.Node, path string, opts Options) (*Sink, error) {
	flag := os.O_CREATE | os.O_WRONLY
	switch opts.Mode {
	case "", ModeAppend:
		flag |= os.O_APPEND
	case ModeTruncate:
		flag |= os.O_TRUNC
	default:
		return nil, errors.Errorf("unsupported file mode %q", opts.Mode)
	}

	file, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open target file")
	}

	return newSink(logger, registry, upstream, file, file, opts), nil
}

// NewWriter wraps an already-open writer supplied by the caller. Closure of
// the writer is still scheduled for teardown, but only when it actually
// implements io.Closer; wrapping os.Stdout in a bare io.Writer keeps it safe.
func NewWriter(logger kitlog.Logger, registry *generic.Registry, upstream stream.Node, w io.Writer, opts Options) *Sink {
	closer, _ := w.(io.Closer)
	return newSink(logger, registry, upstream, w, closer, opts)
}

func newSink(logger kitlog.Logger, registry *generic.Registry, upstream stream.Node, w io.Writer, closer io.Closer, opts Options) *Sink {
	end := opts.Terminator
	if end == "" {
		end = "\n"
	}

	sink := &Sink{writer: w, guard: &closeGuard{closer: closer}, end: end}

	// Ownership of the handle belongs to the guard, not the sink: release is
	// tied to the instance's own lifetime and must happen even if Destroy is
	// never invoked. The cleanup must not reference the sink itself.
	runtime.AddCleanup(sink, func(guard *closeGuard) { guard.Close() }, sink.guard)

	sink.Init(sink, logger, registry, upstream, "textfile")

	return sink
}

// Update writes value followed by the terminator, synchronously. The write
// either completed or failed by the time this returns, so no handle is ever
// produced.
func (s *Sink) Update(ctx context.Context, value interface{}, who stream.Node, _ []stream.Metadata) (stream.Result, error) {
	text, err := asText(value)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := io.WriteString(s.writer, text+s.end); err != nil {
		return nil, errors.Wrap(err, "failed to write to target")
	}

	return nil, nil
}

// Destroy unregisters the sink and releases the handle through the guard, so
// the runtime cleanup cannot double-close behind it. Deliveries after this
// fail against the closed descriptor.
func (s *Sink) Destroy(context.Context) error {
	s.Teardown()
	return errors.Wrap(s.guard.Close(), "failed to close target")
}

func asText(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	case encoding.TextMarshaler:
		text, err := v.MarshalText()
		return string(text), errors.Wrap(err, "failed to marshal value")
	}

	return "", errors.Wrapf(ErrNotText, "unsupported value type %T", value)
}

// closeGuard owns closure of the underlying handle. Whoever reaches it first
// wins; everyone else observes the same outcome.
type closeGuard struct {
	once   sync.Once
	closer io.Closer
	err    error
}

func (g *closeGuard) Close() error {
	g.once.Do(func() {
		if g.closer != nil {
			g.err = g.closer.Close()
		}
	})

	return g.err
}
