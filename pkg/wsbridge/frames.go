// Package wsbridge carries tag-manager invocations over a WebSocket so a dispatcher can
// forward to a bridge hosted in another process.
//
// Each invocation travels as a request frame and is answered by exactly one reply frame
// with the same id. Replies may arrive in any order.
package wsbridge

import (
	"errors"
	"time"

	"github.com/harun/tagqueue/pkg/tagqueue"
)

// SecretHeader carries the shared secret on the upgrade request
const SecretHeader = "X-Tagqueue-Secret"

const writeTimeout = 10 * time.Second

// ErrClosed fails every call still pending when the connection goes away
var ErrClosed = errors.New("bridge connection closed")

// Request is sent by the dispatcher side
type Request struct {
	ID        string `json:"id"`
	CallID    string `json:"callId,omitempty"`
	Namespace string `json:"namespace"`
	Method    string `json:"method"`
	Args      []any  `json:"args"`
}

// Reply answers one request
type Reply struct {
	ID      string `json:"id"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RemoteError is a failure reported by the bridge on the other end
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (r Request) invocation() tagqueue.Invocation {
	args := r.Args
	if args == nil {
		args = []any{}
	}
	return tagqueue.Invocation{
		CallID:    r.CallID,
		Namespace: r.Namespace,
		Method:    r.Method,
		Args:      args,
	}
}
