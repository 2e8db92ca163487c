package tagqueue

import (
	"context"
	"errors"
	"sync"
)

// ErrFailed is reported when a sink fails a call without giving a reason
var ErrFailed = errors.New("bridge call failed")

// Result is the outcome of one forwarded call
type Result struct {
	Message string
	Err     error
}

// Completion is resolved exactly once by the sink that handled the call.
// The dispatcher never resolves it.
type Completion struct {
	once   sync.Once
	done   chan struct{}
	result Result
}

// NewCompletion creates an unresolved completion
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Succeed resolves the completion with a success message.
// It returns false if the completion was already resolved.
func (c *Completion) Succeed(message string) bool {
	return c.resolve(Result{Message: message})
}

// Fail resolves the completion with an error.
// It returns false if the completion was already resolved.
func (c *Completion) Fail(err error) bool {
	if err == nil {
		err = ErrFailed
	}
	return c.resolve(Result{Err: err})
}

func (c *Completion) resolve(r Result) bool {
	resolved := false
	c.once.Do(func() {
		c.result = r
		resolved = true
		close(c.done)
	})
	return resolved
}

// Done is closed once the completion is resolved
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Result returns the outcome and whether it is available yet
func (c *Completion) Result() (Result, bool) {
	select {
	case <-c.done:
		return c.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the completion is resolved or ctx is done
func (c *Completion) Wait(ctx context.Context) (string, error) {
	select {
	case <-c.done:
		return c.result.Message, c.result.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Then calls exactly one of onSuccess or onFailure once the completion resolves.
// Either callback may be nil.
func (c *Completion) Then(onSuccess func(string), onFailure func(error)) {
	go func() {
		<-c.done
		if c.result.Err != nil {
			if onFailure != nil {
				onFailure(c.result.Err)
			}
			return
		}
		if onSuccess != nil {
			onSuccess(c.result.Message)
		}
	}()
}
