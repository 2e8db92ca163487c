// Package tagqueue buffers tag-manager calls and drains them into a native bridge at a fixed cadence.
//
// Invariants:
// - Calls are forwarded in exactly the order they were enqueued.
// - At most one call is removed and forwarded per tick.
// - The dispatcher is running iff it holds a timer handle.
// - Enqueue never blocks on the bridge and never drops a call.
//
// Init arms the tick when it is enqueued, before its own item is drained. Exit stops the tick
// once it has been forwarded; calls enqueued afterwards accumulate until the next Init.
//
// Usage:
//
//	d := tagqueue.New(sink)
//	d.Init("GTM-XXXXXX", 30)
//	c := d.TrackEvent("Checkout", "Click", "", -1)
//	msg, err := c.Wait(ctx)
package tagqueue
