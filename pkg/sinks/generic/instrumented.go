package generic

import (
	"context"

	"github.com/prodo56/streamz/internal/telem"
	"github.com/prodo56/streamz/pkg/stream"

	kitlog "github.com/go-kit/kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opencensus.io/trace"
)

var (
	sinkDeliverDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamz_sink_deliver_duration_seconds",
			Help:    "Distribution of time spent delivering elements, from update until the effect settles",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms -> 8s
		},
		[]string{"sink"},
	)
	sinkDeliverTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamz_sink_deliver_total",
			Help: "Count of elements delivered, by outcome",
		},
		[]string{"sink", "outcome"},
	)
)

type instrumentedSink struct {
	Sink
	logger          kitlog.Logger
	name            string
	durationSeconds prometheus.ObserverVec
	total           *prometheus.CounterVec
}

// NewInstrumentedSink wraps an existing sink, causing every delivery to be
// logged, timed and counted, and to open a new span. Asynchronous deliveries
// are measured through to the resolution of their handle, not just the
// update call.
func NewInstrumentedSink(logger kitlog.Logger, sink Sink, name string) Sink {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}

	labels := prometheus.Labels(map[string]string{"sink": name})
	logger = kitlog.With(logger, "sink", name)

	return &instrumentedSink{
		Sink:            sink,
		logger:          logger,
		name:            name,
		durationSeconds: sinkDeliverDurationSeconds.MustCurryWith(labels),
		total:           sinkDeliverTotal.MustCurryWith(labels),
	}
}

func (i *instrumentedSink) Update(ctx context.Context, value interface{}, who stream.Node, metadata []stream.Metadata) (stream.Result, error) {
	ctx, span, logger := telem.StartSpan(ctx, i.logger, "pkg/sinks/generic.Sink.Update()")
	span.AddAttributes(trace.StringAttribute("sink", i.name))

	timer := prometheus.NewTimer(i.durationSeconds.WithLabelValues())
	result, err := i.Sink.Update(ctx, value, who, metadata)

	if err != nil || result == nil {
		defer span.End()
		i.observe(logger, timer, err)
		return result, err
	}

	// The effect is still in flight: settle the observation when the handle
	// resolves, handing the caller our own handle in its place.
	pending := stream.NewPending()
	go func() {
		defer span.End()
		err := result.Wait(ctx)
		i.observe(logger, timer, err)
		pending.Resolve(err)
	}()

	return pending, nil
}

func (i *instrumentedSink) observe(logger kitlog.Logger, timer *prometheus.Timer, err error) {
	duration := timer.ObserveDuration()

	outcome := "success"
	if err != nil {
		outcome = "error"
	}

	i.total.WithLabelValues(outcome).Inc()
	logger.Log("event", "deliver", "duration", duration.Seconds(), "outcome", outcome, "error", err)
}
