package mqtt_test

import (
	"context"
	"fmt"
	"time"

	"github.com/prodo56/streamz/pkg/sinks/generic"
	"github.com/prodo56/streamz/pkg/sinks/mqtt"

	paho "github.com/eclipse/paho.mqtt.golang"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Sink", func() {
	var (
		ctx      context.Context
		cancel   func()
		registry *generic.Registry
		client   *fakeClient
		captured *paho.ClientOptions
		sink     *mqtt.Sink
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		registry = generic.NewRegistry()
		client = &fakeClient{}
		captured = nil

		sink = mqtt.New(nil, registry, nil, "broker.local", 1883, "sensors/raw", mqtt.Options{
			NewClient: func(options *paho.ClientOptions) mqtt.Client {
				captured = options
				return client
			},
		})
	})

	AfterEach(func() {
		cancel()
	})

	Describe(".Update", func() {
		It("connects lazily on the first delivery, then publishes each element", func() {
			Expect(sink.State()).To(Equal(generic.Unconnected))
			Expect(client.connects).To(Equal(0), "construction must not connect")

			for _, value := range []string{"21.5", "22.0"} {
				result, err := sink.Update(ctx, value, nil, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(result).To(BeNil(), "publishes complete as soon as handed to the client")
			}

			Expect(client.connects).To(Equal(1))
			Expect(sink.State()).To(Equal(generic.Open))
			Expect(client.publications).To(Equal([]publication{
				{"sensors/raw", 0, false, []byte("21.5")},
				{"sensors/raw", 0, false, []byte("22.0")},
			}))
		})

		It("builds the client from the configured target and keepalive", func() {
			sink.Update(ctx, "x", nil, nil)

			Expect(captured).NotTo(BeNil())
			Expect(captured.Servers).To(HaveLen(1))
			Expect(captured.Servers[0].String()).To(Equal("tcp://broker.local:1883"))
			Expect(captured.KeepAlive).To(Equal(int64(60)))
		})

		It("forwards extra connect configuration verbatim", func() {
			custom := mqtt.New(nil, registry, nil, "broker.local", 1883, "t", mqtt.Options{
				Keepalive: 5 * time.Second,
				Configure: func(options *paho.ClientOptions) {
					options.SetClientID("streamz-test")
				},
				NewClient: func(options *paho.ClientOptions) mqtt.Client {
					captured = options
					return client
				},
			})

			custom.Update(ctx, "x", nil, nil)

			Expect(captured.ClientID).To(Equal("streamz-test"))
			Expect(captured.KeepAlive).To(Equal(int64(5)))
		})

		It("surfaces connect failures on first use and every delivery after", func() {
			client.connectErr = fmt.Errorf("connection refused")

			_, err := sink.Update(ctx, "x", nil, nil)
			Expect(err).To(MatchError(ContainSubstring("connection refused")))
			Expect(sink.State()).To(Equal(generic.Closed))

			_, err = sink.Update(ctx, "y", nil, nil)
			Expect(err).To(MatchError(mqtt.ErrClosed), "a failed connect is terminal, no retry")
			Expect(client.connects).To(Equal(1))
		})

		It("rejects payloads that are not strings or bytes", func() {
			_, err := sink.Update(ctx, 3.14, nil, nil)
			Expect(err).To(HaveOccurred())
			Expect(client.connects).To(Equal(0))
		})
	})

	Describe(".Destroy", func() {
		It("disconnects and clears the client reference", func() {
			sink.Update(ctx, "x", nil, nil)
			Expect(sink.Client()).NotTo(BeNil())

			Expect(sink.Destroy(ctx)).To(Succeed())

			Expect(client.disconnects).To(Equal(1))
			Expect(sink.Client()).To(BeNil())
			Expect(registry.Contains(sink)).To(BeFalse())
		})

		It("tolerates a sink that never connected", func() {
			Expect(sink.Destroy(ctx)).To(Succeed())

			Expect(client.disconnects).To(Equal(0))
			Expect(registry.Contains(sink)).To(BeFalse())
		})

		It("closes the sink for further deliveries", func() {
			sink.Update(ctx, "x", nil, nil)
			Expect(sink.Destroy(ctx)).To(Succeed())

			_, err := sink.Update(ctx, "y", nil, nil)
			Expect(err).To(MatchError(mqtt.ErrClosed))
		})
	})
})
