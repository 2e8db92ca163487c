package tagqueue

import "context"

// Invocation is the external call shape a queued call is mapped to
type Invocation struct {
	CallID    string `json:"callId,omitempty"`
	Namespace string `json:"namespace"`
	Method    string `json:"method"`
	Args      []any  `json:"args"`
}

// Sink performs the real bridge call and resolves reply exactly once, with either
// Succeed or Fail. A sink may resolve before Invoke returns or later. Invoke runs inside
// the tick, so a remote sink should return once the request is sent and resolve when
// the reply arrives; a local sink may do its work synchronously.
type Sink interface {
	Invoke(ctx context.Context, inv Invocation, reply *Completion)
}

// SinkFunc adapts a function to a Sink
type SinkFunc func(ctx context.Context, inv Invocation, reply *Completion)

func (f SinkFunc) Invoke(ctx context.Context, inv Invocation, reply *Completion) {
	f(ctx, inv, reply)
}

// invocationFor maps a call onto its bridge invocation
func invocationFor(id string, call Call) Invocation {
	args := call.Args()
	if args == nil {
		args = []any{}
	}
	return Invocation{
		CallID:    id,
		Namespace: Namespace,
		Method:    call.Kind().Method(),
		Args:      args,
	}
}
