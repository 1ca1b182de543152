package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/the-solipsist/invoice-system/decision/billing"
	"github.com/the-solipsist/invoice-system/pkg/money"
)

// ItemDoc is the YAML shape of one line item. Scalar fields stay untyped
// because the data files mix quoted and bare forms; yaml resolves bare
// dates to time.Time and bare numbers to int/float.
type ItemDoc struct {
	Date        interface{}            `yaml:"date"`
	Description string                 `yaml:"description"`
	Owner       string                 `yaml:"owner"`
	Quantity    interface{}            `yaml:"quantity"`
	Rate        interface{}            `yaml:"rate"`
	Amount      interface{}            `yaml:"amount"`
	Unit        string                 `yaml:"unit"`
	Meta        map[string]interface{} `yaml:"meta"`
}

// ToLineItem converts the document item into an engine line item. An
// absent quantity defaults to 1, matching the historical data files
// where single deliverables omit it.
func (d ItemDoc) ToLineItem() (billing.LineItem, error) {
	item := billing.LineItem{
		Description: d.Description,
		Owner:       d.Owner,
		Unit:        d.Unit,
		Meta:        d.Meta,
	}
	if d.Date != nil {
		date, err := parseDate(d.Date)
		if err != nil {
			return item, fmt.Errorf("line item date: %w", err)
		}
		item.Date = date.Format("2006-01-02")
	}

	if d.Quantity == nil {
		item.Quantity = decimal.NewFromInt(1)
	} else {
		qty, err := money.Parse(d.Quantity)
		if err != nil {
			return item, fmt.Errorf("line item quantity %v: %w", d.Quantity, err)
		}
		if qty.IsNegative() {
			return item, fmt.Errorf("line item quantity %v is negative", d.Quantity)
		}
		item.Quantity = qty
	}

	if d.Rate != nil {
		rate, err := money.Parse(d.Rate)
		if err != nil {
			return item, fmt.Errorf("line item rate %v: %w", d.Rate, err)
		}
		item.Rate = &rate
	}
	if d.Amount != nil {
		amount, err := money.Parse(d.Amount)
		if err != nil {
			return item, fmt.Errorf("line item amount %v: %w", d.Amount, err)
		}
		item.Amount = &amount
	}
	return item, nil
}

// InvoiceDoc is the YAML shape of one invoice source document, after
// legacy normalization.
type InvoiceDoc struct {
	Date time.Time `yaml:"-"`

	RawDate interface{} `yaml:"date"`

	ContractSeries *bool  `yaml:"contract_series"`
	BillingPreset  string `yaml:"billing_preset"`

	ContractID         string `yaml:"contract_id"`
	ClientID           string `yaml:"client_id"`
	SenderID           string `yaml:"sender_id"`
	WorkSequenceNumber string `yaml:"work_sequence_number"`

	// InvoiceSequenceNumber is a manual invoice-sequence override:
	// "00" marks a standalone invoice, any other value replaces the
	// rank-derived sequence digit pair in the canonical id.
	InvoiceSequenceNumber string `yaml:"invoice_sequence_number"`

	PONumber     string `yaml:"po_number"`
	ContractRef  string `yaml:"contract_ref"`
	Service      string `yaml:"service"`
	SACCode      string `yaml:"sac_code"`
	PaymentTerms string `yaml:"payment_terms"`

	LineItems []ItemDoc              `yaml:"line_items"`
	Params    map[string]interface{} `yaml:"params"`

	// InvoiceNumber is an explicit historical face-number override.
	InvoiceNumber string `yaml:"invoice_number"`
}

// parseDate accepts the two forms yaml can deliver a date in: a native
// timestamp (bare 2025-06-30) or a quoted "YYYY-MM-DD" string.
func parseDate(v interface{}) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Truncate(24 * time.Hour), nil
	case string:
		t, err := time.Parse("2006-01-02", val)
		if err != nil {
			return time.Time{}, fmt.Errorf("date %q: expected YYYY-MM-DD", val)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("date %v: expected YYYY-MM-DD", v)
	}
}

// ParseInvoice decodes an invoice document: legacy aliases are rewritten
// first, then the normalized document is decoded and validated.
func ParseInvoice(data []byte) (*InvoiceDoc, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing invoice document: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("invoice document is empty")
	}
	normalizeInvoice(raw)

	normalized, err := yaml.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var doc InvoiceDoc
	if err := yaml.Unmarshal(normalized, &doc); err != nil {
		return nil, fmt.Errorf("decoding invoice document: %w", err)
	}

	if doc.RawDate == nil {
		return nil, fmt.Errorf("invoice document has no date")
	}
	doc.Date, err = parseDate(doc.RawDate)
	if err != nil {
		return nil, fmt.Errorf("invoice %w", err)
	}
	return &doc, nil
}

// InvoiceDate returns the invoice date.
func (d *InvoiceDoc) InvoiceDate() time.Time {
	return d.Date
}

// Items converts all line items.
func (d *InvoiceDoc) Items() ([]billing.LineItem, error) {
	items := make([]billing.LineItem, 0, len(d.LineItems))
	for i, itemDoc := range d.LineItems {
		item, err := itemDoc.ToLineItem()
		if err != nil {
			return nil, fmt.Errorf("line item %d: %w", i+1, err)
		}
		items = append(items, item)
	}
	return items, nil
}
