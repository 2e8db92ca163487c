package gtm

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/harun/tagqueue/pkg/tagqueue"
)

func (b *Bridge) dispatch(ctx context.Context, _ []any) (string, error) {
	n, err := b.store.Flush(ctx)
	if err != nil {
		return "", err
	}
	b.logger.Debug().Int("entries", n).Msg("Data layer dispatched")
	return "dispatch sent", nil
}

func (b *Bridge) trackEvent(ctx context.Context, args []any) (string, error) {
	var category, action, label string
	if err := decodeArgs(args[:min(len(args), 3)], &category, &action, &label); err != nil {
		return "", err
	}

	value := 0
	if len(args) > 3 {
		// an unreadable value is reported as zero
		_ = decodeArg(args[3], &value)
	}

	err := b.store.Push(ctx, map[string]any{
		"event":             "interaction",
		"target":            category,
		"action":            action,
		"target-properties": label,
		"value":             value,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("trackEvent - category = %s; action = %s; label = %s; value = %d", category, action, label, value), nil
}

func (b *Bridge) trackPage(ctx context.Context, args []any) (string, error) {
	var pageURL string
	if err := decodeArgs(args, &pageURL); err != nil {
		return "", err
	}

	if err := b.pushNamedEvent(ctx, "content-view", map[string]any{"content-name": pageURL}); err != nil {
		return "", err
	}
	if _, err := b.store.Flush(ctx); err != nil {
		return "", err
	}
	if err := b.clear(ctx, "event", "content-name"); err != nil {
		return "", err
	}
	return "trackPage - url = " + pageURL, nil
}

func (b *Bridge) pushEvent(ctx context.Context, args []any) (string, error) {
	var data map[string]any
	if err := decodeArgs(args, &data); err != nil {
		return "", err
	}
	if data == nil {
		data = map[string]any{}
	}

	if err := b.store.Push(ctx, data); err != nil {
		return "", err
	}
	return "pushEvent: " + describe(data), nil
}

func (b *Bridge) pushImpressions(ctx context.Context, args []any) (string, error) {
	var items []tagqueue.Product
	if err := decodeArgs(args, &items); err != nil {
		return "", err
	}

	data := map[string]any{
		"ecommerce": map[string]any{
			"impressions": productMaps(items),
		},
	}
	if err := b.pushAndClear(ctx, "productImpression", data, "ecommerce"); err != nil {
		return "", err
	}
	return fmt.Sprintf("pushImpressions: %d items", len(items)), nil
}

func (b *Bridge) pushProductClick(ctx context.Context, args []any) (string, error) {
	var (
		item tagqueue.Product
		list string
	)
	if err := decodeArgs(args, &item, &list); err != nil {
		return "", err
	}

	data := map[string]any{
		"value": priceValue(item.Price),
		"ecommerce": map[string]any{
			"click": map[string]any{
				"actionField": map[string]any{"list": list},
				"products":    []map[string]any{productMap(item)},
			},
		},
	}
	if err := b.pushAndClear(ctx, "productClick", data, "value", "ecommerce"); err != nil {
		return "", err
	}
	return "pushProductClick = " + describe(item), nil
}

func (b *Bridge) pushDetailView(ctx context.Context, args []any) (string, error) {
	var item tagqueue.Product
	if err := decodeArgs(args, &item); err != nil {
		return "", err
	}

	data := map[string]any{
		"content-name": item.Name,
		"ecommerce": map[string]any{
			"detail": map[string]any{
				"products": []map[string]any{productMap(item)},
			},
		},
	}
	if err := b.pushAndClear(ctx, "detailView", data, "ecommerce"); err != nil {
		return "", err
	}
	return "pushDetailView = " + describe(item), nil
}

func (b *Bridge) pushAddToCart(ctx context.Context, args []any) (string, error) {
	var (
		item         tagqueue.Product
		currencyCode string
	)
	if err := decodeArgs(args, &item, &currencyCode); err != nil {
		return "", err
	}

	data := map[string]any{
		"value": priceValue(item.Price),
		"ecommerce": map[string]any{
			"currencyCode": currencyCode,
			"add": map[string]any{
				"products": []map[string]any{productMap(item)},
			},
		},
	}
	if err := b.pushAndClear(ctx, "addToCart", data, "ecommerce"); err != nil {
		return "", err
	}
	return fmt.Sprintf("pushAddToCart = %s currencyCode = %s", describe(item), currencyCode), nil
}

func (b *Bridge) pushRemoveFromCart(ctx context.Context, args []any) (string, error) {
	var item tagqueue.Product
	if err := decodeArgs(args, &item); err != nil {
		return "", err
	}

	data := map[string]any{
		"value": priceValue(item.Price),
		"ecommerce": map[string]any{
			"remove": map[string]any{
				"products": []map[string]any{productMap(item)},
			},
		},
	}
	if err := b.pushAndClear(ctx, "removeFromCart", data, "ecommerce"); err != nil {
		return "", err
	}
	return "pushRemoveFromCart = " + describe(item), nil
}

func (b *Bridge) pushCheckout(ctx context.Context, args []any) (string, error) {
	var (
		step       int
		products   []tagqueue.Product
		option     string
		screenName string
	)
	if err := decodeArgs(args, &step, &products, &option, &screenName); err != nil {
		return "", err
	}

	actionField := map[string]any{"step": step}
	if option != "" {
		actionField["option"] = option
	}

	data := map[string]any{
		"content-name": screenName,
		"ecommerce": map[string]any{
			"checkout": map[string]any{
				"actionField": actionField,
				"products":    productMaps(products),
			},
		},
	}
	if err := b.pushAndClear(ctx, "checkout", data, "ecommerce"); err != nil {
		return "", err
	}
	return fmt.Sprintf("pushCheckout: step %d, %d products", step, len(products)), nil
}

func (b *Bridge) pushTransaction(ctx context.Context, args []any) (string, error) {
	var (
		tx    tagqueue.Transaction
		items []tagqueue.Product
	)
	if err := decodeArgs(args, &tx, &items); err != nil {
		return "", err
	}

	data := map[string]any{
		"content-name": ContentNamePaymentResponse,
		"ecommerce": map[string]any{
			"purchase": map[string]any{
				"actionField": map[string]any{
					"id":          tx.ID,
					"affiliation": tx.Affiliation,
					"revenue":     tx.Total,
					"tax":         tx.Tax,
					"shipping":    tx.Shipping,
				},
				"products": productMaps(items),
			},
		},
	}
	if err := b.pushAndClear(ctx, "orderPlaced", data, "ecommerce"); err != nil {
		return "", err
	}
	return "pushTransaction: " + tx.ID, nil
}

// pushNamedEvent pushes data with its event key set to name
func (b *Bridge) pushNamedEvent(ctx context.Context, name string, data map[string]any) error {
	event := maps.Clone(data)
	event["event"] = name
	return b.store.Push(ctx, event)
}

func (b *Bridge) pushAndClear(ctx context.Context, name string, data map[string]any, keys ...string) error {
	if err := b.pushNamedEvent(ctx, name, data); err != nil {
		return err
	}
	return b.clear(ctx, keys...)
}

// clear pushes nil for each key, which removes it from the data-layer model
func (b *Bridge) clear(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	data := make(map[string]any, len(keys))
	for _, k := range keys {
		data[k] = nil
	}
	return b.store.Push(ctx, data)
}

func describe(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
