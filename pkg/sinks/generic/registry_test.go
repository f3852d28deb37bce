package generic_test

import (
	"context"
	"sync"

	"github.com/prodo56/streamz/pkg/sinks/generic"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Registry", func() {
	var (
		ctx      context.Context
		cancel   func()
		registry *generic.Registry
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		registry = generic.NewRegistry()
	})

	AfterEach(func() {
		cancel()
	})

	It("holds a sink strictly between construction and destroy", func() {
		Expect(registry.Len()).To(Equal(0))

		sink := generic.NewCapture(nil, registry, nil)
		Expect(registry.Contains(sink)).To(BeTrue(), "construction should register the sink")

		Expect(sink.Destroy(ctx)).To(Succeed())
		Expect(registry.Contains(sink)).To(BeFalse(), "destroy should unregister the sink")
		Expect(registry.Len()).To(Equal(0))
	})

	Describe(".Unregister", func() {
		It("tolerates sinks that were never registered", func() {
			other := generic.NewCapture(nil, generic.NewRegistry(), nil)

			Expect(func() { registry.Unregister(other) }).NotTo(Panic())
			Expect(registry.Len()).To(Equal(0))
		})
	})

	It("is safe under concurrent register and unregister", func() {
		var wg sync.WaitGroup
		for idx := 0; idx < 50; idx++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				sink := generic.NewCapture(nil, registry, nil)
				registry.Unregister(sink)
			}()
		}

		wg.Wait()
		Expect(registry.Len()).To(Equal(0))
	})
})
