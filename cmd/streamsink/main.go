package main

import (
	"bufio"
	"context"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/prodo56/streamz/pkg/sinks/generic"
	"github.com/prodo56/streamz/pkg/sinks/mqtt"
	streampubsub "github.com/prodo56/streamz/pkg/sinks/pubsub"
	"github.com/prodo56/streamz/pkg/sinks/textfile"
	"github.com/prodo56/streamz/pkg/sinks/websocket"

	gcppubsub "cloud.google.com/go/pubsub"
	"github.com/alecthomas/kingpin"
	kitlog "github.com/go-kit/kit/log"
	level "github.com/go-kit/kit/log/level"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var logger kitlog.Logger

var (
	app = kingpin.New("streamsink", "Deliver lines from stdin to a stream sink").Version(versionStanza())

	// Global flags applying to every sink
	debug          = app.Flag("debug", "Enable debug logging").Default("false").Bool()
	metricsAddress = app.Flag("metrics-address", "Address to bind HTTP metrics listener").Default("127.0.0.1").String()
	metricsPort    = app.Flag("metrics-port", "Port to bind HTTP metrics listener").Default("9526").Uint16()

	sinkType = app.Flag("sink", "Type of sink target").Default("file").Enum("file", "websocket", "mqtt", "pubsub")

	filePath        = app.Flag("sink-file.path", "File path to write elements to").Default("/dev/stdout").String()
	fileOptions     = (&textfile.Options{}).Bind(app, "sink-file.")
	websocketURI    = app.Flag("sink-websocket.uri", "Websocket endpoint, ws:// or wss://").String()
	mqttHost        = app.Flag("sink-mqtt.host", "MQTT broker host").Default("127.0.0.1").String()
	mqttPort        = app.Flag("sink-mqtt.port", "MQTT broker port").Default("1883").Int()
	mqttTopic       = app.Flag("sink-mqtt.topic", "MQTT topic to publish to").String()
	mqttKeepalive   = app.Flag("sink-mqtt.keepalive", "Channel keep-alive interval").Default("60s").Duration()
	pubsubProjectID = app.Flag("sink-pubsub.project", "Google project ID").String()
	pubsubTopic     = app.Flag("sink-pubsub.topic", "Pub/Sub topic to publish to").String()
)

func main() {
	_ = kingpin.MustParse(app.Parse(os.Args[1:]))

	logger = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))

	if *debug {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC, "caller", kitlog.DefaultCaller)
	stdlog.SetOutput(kitlog.NewStdlibAdapter(logger))

	go func() {
		logger.Log("event", "metrics.listen", "address", *metricsAddress, "port", *metricsPort)
		http.Handle("/metrics", promhttp.Handler())
		http.ListenAndServe(fmt.Sprintf("%s:%v", *metricsAddress, *metricsPort), nil)
	}()

	ctx, cancel := setupSignalHandler()
	defer cancel()

	registry := generic.NewRegistry()

	var sink generic.Sink

	switch *sinkType {
	case "file":
		fileSink, err := textfile.New(logger, registry, nil, *filePath, *fileOptions)
		if err != nil {
			kingpin.Fatalf("failed to create file sink: %v", err)
		}
		sink = fileSink
	case "websocket":
		if *websocketURI == "" {
			kingpin.Fatalf("missing required flag: --sink-websocket.uri")
		}
		sink = websocket.New(logger, registry, nil, *websocketURI, websocket.Options{})
	case "mqtt":
		if *mqttTopic == "" {
			kingpin.Fatalf("missing required flag: --sink-mqtt.topic")
		}
		sink = mqtt.New(logger, registry, nil, *mqttHost, *mqttPort, *mqttTopic, mqtt.Options{
			Keepalive: *mqttKeepalive,
		})
	case "pubsub":
		if *pubsubProjectID == "" || *pubsubTopic == "" {
			kingpin.Fatalf("missing required flags: --sink-pubsub.project and --sink-pubsub.topic")
		}
		client, err := gcppubsub.NewClient(ctx, *pubsubProjectID)
		if err != nil {
			kingpin.Fatalf("failed to create pubsub client: %v", err)
		}
		sink = streampubsub.New(logger, registry, nil, client.Topic(*pubsubTopic))
	}

	sink = generic.NewInstrumentedSink(logger, sink, *sinkType)

	var g run.Group

	{
		logger := kitlog.With(logger, "component", "pump")

		g.Add(
			func() error {
				scanner := bufio.NewScanner(os.Stdin)
				for scanner.Scan() {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}

					result, err := sink.Update(ctx, scanner.Text(), nil, nil)
					if err != nil {
						return err
					}

					// An unsettled delivery is the sink's backpressure signal:
					// wait it out before reading the next line.
					if result != nil {
						if err := result.Wait(ctx); err != nil {
							return err
						}
					}
				}

				return scanner.Err()
			},
			func(err error) {
				if err != nil {
					logger.Log("error", err.Error(), "msg", "received error, cancelling context")
				}
				cancel()
			},
		)
	}

	{
		g.Add(
			func() error {
				<-ctx.Done()
				return nil
			},
			func(error) {
				cancel()
			},
		)
	}

	if err := g.Run(); err != nil {
		logger.Log("error", err.Error(), "msg", "exiting with error")
	}

	if err := sink.Destroy(context.Background()); err != nil {
		logger.Log("error", err.Error(), "msg", "failed to destroy sink")
	}

	logger.Log("event", "finished", "msg", "streamsink has finished")
}

var (
	Version   = "dev"
	Commit    = "none"
	Date      = "unknown"
	GoVersion = runtime.Version()
)

func versionStanza() string {
	return fmt.Sprintf(
		"streamsink Version: %v\nGit SHA: %v\nGo Version: %v\nGo OS/Arch: %v/%v\nBuilt at: %v",
		Version, Commit, GoVersion, runtime.GOOS, runtime.GOARCH, Date,
	)
}

// setupSignalHandler is similar to the community provided functions, but follows a more
// modern pattern using contexts. If the caller desires a channel that will be closed on
// completion, they can simply use ctx.Done()
func setupSignalHandler() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	go func() {
		<-sigc
		cancel()
		<-sigc
		panic("received second signal, exiting immediately")
	}()

	return ctx, cancel
}
