package generic

import (
	"context"
	"sync"

	"github.com/prodo56/streamz/pkg/stream"

	kitlog "github.com/go-kit/kit/log"
)

// Sink is a terminal node of the dataflow graph: it consumes elements
// delivered by the graph and performs an external side effect per element.
//
// Destroy releases whatever external resource the variant owns and removes
// the sink from its registry. It is expected to be called exactly once per
// instance; the sink must not be updated afterwards.
type Sink interface {
	stream.Updater
	Destroy(context.Context) error
}

// nodeOptions is the set of graph-level configuration option names recognized
// by the base sink contract. Constructors that accept a bag of options
// consult this set to decide which entries configure the node and which
// belong to the variant.
var nodeOptions = map[string]struct{}{
	"name": {},
}

// IsNodeOption reports whether name is a recognized graph-level configuration
// option.
func IsNodeOption(name string) bool {
	_, ok := nodeOptions[name]
	return ok
}

// Base carries the lifecycle shared by every sink variant: registration,
// upstream attachment and once-guarded teardown. Variants embed it, call Init
// at the end of their constructor and Teardown from their Destroy.
type Base struct {
	logger   kitlog.Logger
	name     string
	registry *Registry
	upstream stream.Node
	self     Sink
	torndown sync.Once
}

// Init registers self and attaches it to the upstream node, which is the
// point the sink starts receiving deliveries. It must be the last thing a
// variant constructor does. The external side effect is never performed here:
// resources are established lazily on first update, with the textfile sink as
// the one eager exception (it opens its handle before calling Init).
func (b *Base) Init(self Sink, logger kitlog.Logger, registry *Registry, upstream stream.Node, name string) {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}

	b.self = self
	b.logger = kitlog.With(logger, "sink", name)
	b.name = name
	b.registry = registry
	b.upstream = upstream

	registry.Register(self)
	if upstream != nil {
		upstream.Attach(self)
	}

	b.logger.Log("event", "register")
}

// Teardown detaches from the upstream node and unregisters, once. Variants
// call this at the start of Destroy, before releasing their resource: a
// failure to close must never leave the sink registered.
func (b *Base) Teardown() {
	b.torndown.Do(func() {
		if b.upstream != nil {
			b.upstream.Detach(b.self)
		}
		b.registry.Unregister(b.self)
		b.logger.Log("event", "unregister")
	})
}

func (b *Base) Name() string          { return b.name }
func (b *Base) Logger() kitlog.Logger { return b.logger }
