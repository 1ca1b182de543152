package config

import "github.com/the-solipsist/invoice-system/pkg/units"

// Legacy invoice documents predate the preset vocabulary. The aliases
// below are rewritten in place before decoding so the rest of the
// pipeline only ever sees the current field names.

// billingTypeAliases maps retired billing_type values to preset IDs.
// The single-shot types also imply a standalone invoice outside any
// contract series.
var billingTypeAliases = map[string]struct {
	preset     string
	standalone bool
}{
	"flat_fee":        {preset: "flat_fee", standalone: false},
	"flat_fee_single": {preset: "flat_fee", standalone: true},
	"rate":            {preset: "rate", standalone: false},
	"rate_single":     {preset: "rate", standalone: true},
	"reimbursement":   {preset: "reimbursement", standalone: true},
	"retainer":        {preset: "retainer", standalone: false},
}

func normalizeInvoice(raw map[string]interface{}) {
	renameKey(raw, "contract_number", "contract_ref")
	renameKey(raw, "service_description", "service")

	if bt, ok := raw["billing_type"].(string); ok {
		delete(raw, "billing_type")
		if alias, known := billingTypeAliases[bt]; known {
			if _, set := raw["billing_preset"]; !set {
				raw["billing_preset"] = alias.preset
			}
			if alias.standalone {
				if _, set := raw["contract_series"]; !set {
					raw["contract_series"] = false
				}
			}
		} else {
			// Unknown values flow through as preset IDs so the
			// registry reports them instead of a silent drop.
			if _, set := raw["billing_preset"]; !set {
				raw["billing_preset"] = bt
			}
		}
	}

	// An invoice sequence of "00" historically marked a standalone
	// invoice. The field itself stays: non-"00" values are manual
	// sequence overrides, distinct from the work sequence.
	if seq, ok := raw["invoice_sequence_number"].(string); ok && seq == "00" {
		if _, set := raw["contract_series"]; !set {
			raw["contract_series"] = false
		}
	}

	if items, ok := raw["line_items"].([]interface{}); ok {
		for _, entry := range items {
			if item, ok := entry.(map[string]interface{}); ok {
				normalizeItem(item)
			}
		}
	}
}

func normalizeItem(item map[string]interface{}) {
	for alias, unit := range units.QuantityAlias {
		v, ok := item[alias]
		if !ok {
			continue
		}
		delete(item, alias)
		if _, set := item["quantity"]; !set {
			item["quantity"] = v
		}
		if _, set := item["unit"]; !set {
			item["unit"] = string(unit)
		}
	}
}

func renameKey(m map[string]interface{}, from, to string) {
	v, ok := m[from]
	if !ok {
		return
	}
	delete(m, from)
	if _, set := m[to]; !set {
		m[to] = v
	}
}
