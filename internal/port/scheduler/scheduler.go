// Package scheduler defines the port for deferring coalesced work.
package scheduler

// Handle identifies one pending callback for cancellation. Its concrete
// type belongs to the scheduler that issued it.
type Handle any

// Scheduler defers a callback so that many rapid mutations collapse into a
// single notification pass. Implementations run the callback at most once.
type Scheduler interface {
	// Schedule queues fn to run once and returns a cancellation handle.
	Schedule(fn func()) Handle

	// Cancel drops a pending callback. Fired or foreign handles are ignored.
	Cancel(h Handle)
}

// Immediate runs callbacks synchronously inside Schedule. Tests and replay
// paths use it; batching there would only add latency.
type Immediate struct{}

// Schedule runs fn before returning.
func (Immediate) Schedule(fn func()) Handle {
	fn()
	return nil
}

// Cancel is a no-op; Immediate never has a pending callback.
func (Immediate) Cancel(Handle) {}
