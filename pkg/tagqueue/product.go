package tagqueue

import (
	"encoding/json"
	"fmt"
)

// UnmarshalJSON accepts each field as a JSON string or number. Numbers keep their
// literal text, so {"price":49.9} decodes to Price "49.9".
func (p *Product) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name     text `json:"name"`
		ID       text `json:"id"`
		Price    text `json:"price"`
		Quantity text `json:"quantity"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("product: %w", err)
	}
	*p = Product{
		Name:     string(raw.Name),
		ID:       string(raw.ID),
		Price:    string(raw.Price),
		Quantity: string(raw.Quantity),
	}
	return nil
}

// UnmarshalJSON accepts each field as a JSON string or number
func (tx *Transaction) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          text `json:"transactionId"`
		Affiliation text `json:"transactionAffiliation"`
		Total       text `json:"transactionTotal"`
		Tax         text `json:"transactionTax"`
		Shipping    text `json:"transactionShipping"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("transaction: %w", err)
	}
	*tx = Transaction{
		ID:          string(raw.ID),
		Affiliation: string(raw.Affiliation),
		Total:       string(raw.Total),
		Tax:         string(raw.Tax),
		Shipping:    string(raw.Shipping),
	}
	return nil
}

// text is a JSON string or number held as its text. null leaves it empty.
type text string

func (t *text) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = text(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected a string or number, got %s", data)
	}
	*t = text(n.String())
	return nil
}
