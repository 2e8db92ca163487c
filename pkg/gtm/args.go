package gtm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/harun/tagqueue/pkg/tagqueue"
)

// decodeArgs decodes positional args into targets. Args may hold typed values from an
// in-process dispatcher or generic JSON values from a remote one.
func decodeArgs(args []any, targets ...any) error {
	if len(args) < len(targets) {
		return fmt.Errorf("expected %d arguments, got %d", len(targets), len(args))
	}
	for i, target := range targets {
		if err := decodeArg(args[i], target); err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
	}
	return nil
}

func decodeArg(arg any, target any) error {
	if n, ok := target.(*int); ok {
		v, err := intArg(arg)
		if err != nil {
			return err
		}
		*n = v
		return nil
	}

	data, err := json.Marshal(arg)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// intArg reads a whole number from a JSON number or a numeric string. Fractions are
// truncated.
func intArg(arg any) (int, error) {
	var n json.Number
	if s, ok := arg.(string); ok {
		n = json.Number(strings.TrimSpace(s))
	} else {
		data, err := json.Marshal(arg)
		if err != nil {
			return 0, err
		}
		if err := json.Unmarshal(data, &n); err != nil {
			return 0, fmt.Errorf("expected a number, got %s", data)
		}
	}

	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("expected a number, got %q", n.String())
	}
	return int(f), nil
}

func productMap(p tagqueue.Product) map[string]any {
	quantity := p.Quantity
	if quantity == "" {
		quantity = "1"
	}
	return map[string]any{
		"name":     p.Name,
		"id":       p.ID,
		"price":    p.Price,
		"quantity": quantity,
	}
}

func productMaps(items []tagqueue.Product) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, productMap(item))
	}
	return out
}

// priceValue truncates a price to whole units. Unparseable prices are worth 0.
func priceValue(price string) int {
	f, err := strconv.ParseFloat(price, 32)
	if err != nil {
		return 0
	}
	return int(f)
}
