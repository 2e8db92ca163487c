package script

import (
	"encoding/json"
	"fmt"

	"github.com/harun/tagqueue/pkg/tagqueue"
)

// Call converts the step into the call its method names
func (s Step) Call() (tagqueue.Call, error) {
	kind, ok := tagqueue.KindForMethod(s.Method)
	if !ok {
		return nil, fmt.Errorf("unknown method %q", s.Method)
	}
	a := args(s.Args)

	switch kind {
	case tagqueue.KindInit:
		var c tagqueue.Init
		return result(&c, a.decode(2, 2, &c.AccountID, &c.Period))
	case tagqueue.KindTrackEvent:
		c := tagqueue.TrackEvent{Value: -1}
		return result(&c, a.decode(2, 4, &c.Category, &c.Action, &c.Label, &c.Value))
	case tagqueue.KindTrackPage:
		var c tagqueue.TrackPage
		return result(&c, a.decode(1, 1, &c.PageURL))
	case tagqueue.KindPushImpressions:
		var c tagqueue.PushImpressions
		return result(&c, a.decode(1, 1, &c.Items))
	case tagqueue.KindPushProductClick:
		var c tagqueue.PushProductClick
		return result(&c, a.decode(2, 2, &c.Item, &c.List))
	case tagqueue.KindPushDetailView:
		var c tagqueue.PushDetailView
		return result(&c, a.decode(1, 1, &c.Item))
	case tagqueue.KindPushAddToCart:
		var c tagqueue.PushAddToCart
		return result(&c, a.decode(2, 2, &c.Item, &c.CurrencyCode))
	case tagqueue.KindPushRemoveFromCart:
		var c tagqueue.PushRemoveFromCart
		return result(&c, a.decode(1, 1, &c.Item))
	case tagqueue.KindPushCheckout:
		var c tagqueue.PushCheckout
		return result(&c, a.decode(2, 4, &c.Step, &c.Products, &c.Option, &c.ScreenName))
	case tagqueue.KindPushTransaction:
		var c tagqueue.PushTransaction
		return result(&c, a.decode(2, 2, &c.Transaction, &c.Items))
	case tagqueue.KindPushEvent:
		var c tagqueue.PushEvent
		return result(&c, a.decode(1, 1, &c.Data))
	case tagqueue.KindDispatch:
		return result(&tagqueue.Dispatch{}, a.decode(0, 0))
	case tagqueue.KindExit:
		return result(&tagqueue.Exit{}, a.decode(0, 0))
	}
	return nil, fmt.Errorf("unhandled kind %s", kind)
}

// result returns *c once decoding into it has finished
func result[C tagqueue.Call](c *C, err error) (tagqueue.Call, error) {
	if err != nil {
		return nil, err
	}
	return *c, nil
}

type args []any

// decode fills targets positionally. Between lo and hi args are accepted; targets past
// the supplied args keep their preset values.
func (a args) decode(lo, hi int, targets ...any) error {
	if len(a) < lo || len(a) > hi {
		if lo == hi {
			return fmt.Errorf("expected %d arguments, got %d", lo, len(a))
		}
		return fmt.Errorf("expected %d to %d arguments, got %d", lo, hi, len(a))
	}
	for i, arg := range a {
		data, err := json.Marshal(arg)
		if err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
		if err := json.Unmarshal(data, targets[i]); err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
	}
	return nil
}
