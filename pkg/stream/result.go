package stream

import "context"

// Result is a promise interface for in-progress side effects. Wait will block
// until the effect has completed or failed, returning the failure if any.
type Result interface {
	Wait(context.Context) error
}

// Resolved represents a side effect that completed synchronously. It can be
// returned wherever a Result is expected but no work remains outstanding.
var Resolved Result = resolved{}

type resolved struct{}

func (resolved) Wait(context.Context) error { return nil }

// Failed returns a Result that has already failed with err.
func Failed(err error) Result {
	return failed{err}
}

type failed struct{ err error }

func (f failed) Wait(context.Context) error { return f.err }

func NewPending() *Pending {
	return &Pending{ready: make(chan struct{})}
}

// Pending is a single unresolved result, or promise.
type Pending struct {
	ready chan struct{}
	err   error
}

func (p *Pending) Wait(ctx context.Context) error {
	// If the result is ready, we should return the outcome even if the context
	// is done
	select {
	case <-p.ready:
		return p.err
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ready:
		return p.err
	}
}

// Resolve fulfills the promise. We return a Result, as it is not correct to
// resolve a promise twice, so we don't care if the caller no longer has access
// to this method.
func (p *Pending) Resolve(err error) Result {
	p.err = err
	close(p.ready)

	return p
}

// ResolveFrom causes the subject to be resolved with the outcome of the given
// result
func (p *Pending) ResolveFrom(ctx context.Context, result Result) Result {
	go func() {
		p.Resolve(result.Wait(ctx))
	}()

	return p
}
