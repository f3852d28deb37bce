package function_test

import (
	"context"
	"fmt"

	"github.com/prodo56/streamz/pkg/sinks/function"
	"github.com/prodo56/streamz/pkg/sinks/generic"
	"github.com/prodo56/streamz/pkg/stream"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Sink", func() {
	var (
		ctx      context.Context
		cancel   func()
		registry *generic.Registry
		captured [][]interface{}
		capture  function.Func
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		registry = generic.NewRegistry()
		captured = [][]interface{}{}
		capture = func(ctx context.Context, args ...interface{}) (stream.Result, error) {
			captured = append(captured, args)
			return nil, nil
		}
	})

	AfterEach(func() {
		cancel()
	})

	Describe(".Update", func() {
		It("invokes the function once per element, in delivery order", func() {
			sink := function.New(nil, registry, nil, capture)

			for _, value := range []int{1, 2, 3} {
				result, err := sink.Update(ctx, value, nil, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(result).To(BeNil())
			}

			Expect(captured).To(Equal([][]interface{}{{1}, {2}, {3}}))
		})

		It("prepends the element to the fixed arguments", func() {
			sink := function.New(nil, registry, nil, capture,
				function.Arg("topic"), function.Arg(9), function.Keyword("flush", true))

			_, err := sink.Update(ctx, "x", nil, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(captured).To(Equal([][]interface{}{
				{"x", "topic", 9, function.KV{Name: "flush", Value: true}},
			}))
		})

		It("routes recognized option names to the node, not the function", func() {
			sink := function.New(nil, registry, nil, capture,
				function.Keyword("name", "audit"), function.Keyword("flush", true))

			Expect(sink.Name()).To(Equal("audit"))

			_, err := sink.Update(ctx, "x", nil, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(captured[0]).To(Equal([]interface{}{"x", function.KV{Name: "flush", Value: true}}))
		})

		It("propagates the function's own handle for asynchronous effects", func() {
			pending := stream.NewPending()
			sink := function.New(nil, registry, nil, func(ctx context.Context, args ...interface{}) (stream.Result, error) {
				return pending, nil
			})

			result, err := sink.Update(ctx, "x", nil, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(BeIdenticalTo(stream.Result(pending)))
		})

		It("propagates synchronous failures", func() {
			sink := function.New(nil, registry, nil, func(ctx context.Context, args ...interface{}) (stream.Result, error) {
				return nil, fmt.Errorf("effect failed")
			})

			_, err := sink.Update(ctx, "x", nil, nil)
			Expect(err).To(MatchError("effect failed"))
		})
	})

	Describe(".Destroy", func() {
		It("unregisters without touching any resource", func() {
			sink := function.New(nil, registry, nil, capture)
			Expect(registry.Contains(sink)).To(BeTrue())

			Expect(sink.Destroy(ctx)).To(Succeed())
			Expect(registry.Contains(sink)).To(BeFalse())
		})
	})
})
