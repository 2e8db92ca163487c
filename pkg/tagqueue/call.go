package tagqueue

// Namespace is the bridge service every call is addressed to.
const Namespace = "TagManager"

// Kind identifies which operation a queued call represents
type Kind int

const (
	KindInit Kind = iota
	KindTrackEvent
	KindTrackPage
	KindPushImpressions
	KindPushProductClick
	KindPushDetailView
	KindPushAddToCart
	KindPushRemoveFromCart
	KindPushCheckout
	KindPushTransaction
	KindPushEvent
	KindDispatch
	KindExit
)

var kindNames = [...]string{
	KindInit:               "Init",
	KindTrackEvent:         "TrackEvent",
	KindTrackPage:          "TrackPage",
	KindPushImpressions:    "PushImpressions",
	KindPushProductClick:   "PushProductClick",
	KindPushDetailView:     "PushDetailView",
	KindPushAddToCart:      "PushAddToCart",
	KindPushRemoveFromCart: "PushRemoveFromCart",
	KindPushCheckout:       "PushCheckout",
	KindPushTransaction:    "PushTransaction",
	KindPushEvent:          "PushEvent",
	KindDispatch:           "Dispatch",
	KindExit:               "Exit",
}

var kindMethods = [...]string{
	KindInit:               "initGTM",
	KindTrackEvent:         "trackEvent",
	KindTrackPage:          "trackPage",
	KindPushImpressions:    "pushImpressions",
	KindPushProductClick:   "pushProductClick",
	KindPushDetailView:     "pushDetailView",
	KindPushAddToCart:      "pushAddToCart",
	KindPushRemoveFromCart: "pushRemoveFromCart",
	KindPushCheckout:       "pushCheckout",
	KindPushTransaction:    "pushTransaction",
	KindPushEvent:          "pushEvent",
	KindDispatch:           "dispatch",
	KindExit:               "exitGTM",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Unknown"
	}
	return kindNames[k]
}

// Method returns the bridge method name for the kind
func (k Kind) Method() string {
	if k < 0 || int(k) >= len(kindMethods) {
		return ""
	}
	return kindMethods[k]
}

// Product is an e-commerce item as the bridge expects it
type Product struct {
	Name     string `json:"name" yaml:"name"`
	ID       string `json:"id" yaml:"id"`
	Price    string `json:"price" yaml:"price"`
	Quantity string `json:"quantity,omitempty" yaml:"quantity,omitempty"`
}

// Transaction describes a completed purchase
type Transaction struct {
	ID          string `json:"transactionId" yaml:"transactionId"`
	Affiliation string `json:"transactionAffiliation" yaml:"transactionAffiliation"`
	Total       string `json:"transactionTotal" yaml:"transactionTotal"`
	Tax         string `json:"transactionTax" yaml:"transactionTax"`
	Shipping    string `json:"transactionShipping" yaml:"transactionShipping"`
}

// Call is one queueable tag-manager operation. The set of implementations is closed:
// each variant below carries its own positional argument mapping.
type Call interface {
	Kind() Kind
	// Args returns the positional arguments forwarded to the bridge.
	Args() []any
	sealed()
}

// Init starts the tag manager with a container ID. Period is a dispatch hint for the
// bridge and does not change the local tick interval.
type Init struct {
	AccountID string
	Period    int
}

// TrackEvent logs an interaction. Category and Action must be non-empty; Label may be
// empty and Value may be -1 to mean no value.
type TrackEvent struct {
	Category string
	Action   string
	Label    string
	Value    int
}

type TrackPage struct {
	PageURL string
}

// PushImpressions reports a list of product impressions.
type PushImpressions struct {
	Items []Product
}

type PushProductClick struct {
	Item Product
	List string
}

type PushDetailView struct {
	Item Product
}

type PushAddToCart struct {
	Item         Product
	CurrencyCode string
}

type PushRemoveFromCart struct {
	Item Product
}

type PushCheckout struct {
	Step       int
	Products   []Product
	Option     string
	ScreenName string
}

type PushTransaction struct {
	Transaction Transaction
	Items       []Product
}

// PushEvent pushes arbitrary key/value data onto the data layer.
type PushEvent struct {
	Data map[string]any
}

// Dispatch asks the bridge to flush. It still waits its turn in the queue.
type Dispatch struct{}

// Exit shuts the bridge down and stops the tick after it is forwarded.
type Exit struct{}

func (Init) Kind() Kind               { return KindInit }
func (TrackEvent) Kind() Kind         { return KindTrackEvent }
func (TrackPage) Kind() Kind          { return KindTrackPage }
func (PushImpressions) Kind() Kind    { return KindPushImpressions }
func (PushProductClick) Kind() Kind   { return KindPushProductClick }
func (PushDetailView) Kind() Kind     { return KindPushDetailView }
func (PushAddToCart) Kind() Kind      { return KindPushAddToCart }
func (PushRemoveFromCart) Kind() Kind { return KindPushRemoveFromCart }
func (PushCheckout) Kind() Kind       { return KindPushCheckout }
func (PushTransaction) Kind() Kind    { return KindPushTransaction }
func (PushEvent) Kind() Kind          { return KindPushEvent }
func (Dispatch) Kind() Kind           { return KindDispatch }
func (Exit) Kind() Kind               { return KindExit }

func (c Init) Args() []any       { return []any{c.AccountID, c.Period} }
func (c TrackEvent) Args() []any { return []any{c.Category, c.Action, c.Label, c.Value} }
func (c TrackPage) Args() []any  { return []any{c.PageURL} }

func (c PushImpressions) Args() []any    { return []any{c.Items} }
func (c PushProductClick) Args() []any   { return []any{c.Item, c.List} }
func (c PushDetailView) Args() []any     { return []any{c.Item} }
func (c PushAddToCart) Args() []any      { return []any{c.Item, c.CurrencyCode} }
func (c PushRemoveFromCart) Args() []any { return []any{c.Item} }
func (c PushCheckout) Args() []any {
	return []any{c.Step, c.Products, c.Option, c.ScreenName}
}
func (c PushTransaction) Args() []any { return []any{c.Transaction, c.Items} }
func (c PushEvent) Args() []any       { return []any{c.Data} }
func (Dispatch) Args() []any          { return []any{} }
func (Exit) Args() []any              { return []any{} }

func (Init) sealed()               {}
func (TrackEvent) sealed()         {}
func (TrackPage) sealed()          {}
func (PushImpressions) sealed()    {}
func (PushProductClick) sealed()   {}
func (PushDetailView) sealed()     {}
func (PushAddToCart) sealed()      {}
func (PushRemoveFromCart) sealed() {}
func (PushCheckout) sealed()       {}
func (PushTransaction) sealed()    {}
func (PushEvent) sealed()          {}
func (Dispatch) sealed()           {}
func (Exit) sealed()               {}

// Kinds lists every call kind in declaration order
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(kindNames))
	for k := range kindNames {
		kinds = append(kinds, Kind(k))
	}
	return kinds
}

// KindForMethod resolves a bridge method name back to its kind
func KindForMethod(method string) (Kind, bool) {
	for k, m := range kindMethods {
		if m == method {
			return Kind(k), true
		}
	}
	return 0, false
}
