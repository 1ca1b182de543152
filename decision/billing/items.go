// Package billing provides the fee calculation engine: it evaluates one
// pricing formula against a set of line items and a variable-binding
// context, producing ordered billing rows and an exact total.
package billing

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// LineItem is one unit of raw work supplied by the caller. Read-only to
// the engine.
type LineItem struct {
	Date        string                 `json:"date,omitempty"`
	Description string                 `json:"description,omitempty"`
	Owner       string                 `json:"owner,omitempty"`
	Quantity    decimal.Decimal        `json:"quantity"`
	Rate        *decimal.Decimal       `json:"rate,omitempty"`
	Amount      *decimal.Decimal       `json:"amount,omitempty"`
	Unit        string                 `json:"unit,omitempty"`
	Meta        map[string]interface{} `json:"meta,omitempty"`
}

// Context binds variable names to scalar values. Assembled externally
// from contract terms, invoice overrides and profile data; the engine
// never mutates a caller's context.
type Context map[string]interface{}

// Merge layers contexts left to right into a fresh map, later values
// winning.
func Merge(layers ...Context) Context {
	out := make(Context)
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

// metaFingerprint builds a deterministic string key for an item's meta
// map, so grouping by (description, meta) is stable across runs.
func metaFingerprint(meta map[string]interface{}) string {
	if len(meta) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(stringify(meta[k]))
		b.WriteByte(';')
	}
	return b.String()
}
