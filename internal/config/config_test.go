package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const billingYAML = `
pricing_formulas:
  retainer_with_excess:
    components:
      - id: base
        type: flat_rate
        amount: "{base_amount}"
      - id: excess
        type: unit_rate
        rate: "{excess_rate}"
        min_quantity: "{included_quantity}"
  itemized:
    components:
      - id: lines
        type: flat_rate

invoice_presets:
  retainer:
    formula_id: retainer_with_excess
    display_title: Monthly Retainer
    billing_table:
      unit_name: hour
      row_templates:
        base:
          label: Retainer for {month} {year}
          details: Includes {threshold} {units}
        excess:
          label: Additional {units}
          details: "{qty} {units} @ {rate} beyond {threshold} included"
  reimbursement:
    formula_id: itemized
    display_title: Expense Reimbursement
    unit_name: expense
    row_templates:
      lines:
        label: "{description}"
    defaults:
      payment_terms: 15 days
`

func TestLoadBillingConfig(t *testing.T) {
	reg, err := LoadBillingConfig([]byte(billingYAML))
	require.NoError(t, err)

	preset, f, err := reg.FormulaForPreset("retainer")
	require.NoError(t, err)
	assert.Equal(t, "retainer_with_excess", f.ID)
	require.Len(t, f.Components, 2)
	assert.Equal(t, "base", f.Components[0].ID)

	// Row templates and unit name nested under billing_table are lifted.
	assert.Equal(t, "hour", preset.UnitName)
	require.Contains(t, preset.RowTemplates, "excess")
	assert.Equal(t, "Additional {units}", preset.RowTemplates["excess"].Label)

	// Top-level placement works too.
	preset, _, err = reg.FormulaForPreset("reimbursement")
	require.NoError(t, err)
	assert.Equal(t, "expense", preset.UnitName)
	assert.Contains(t, preset.RowTemplates, "lines")
	assert.Equal(t, "15 days", preset.Defaults["payment_terms"])
}

func TestLoadBillingConfigRejectsUnknownFormulaReference(t *testing.T) {
	_, err := LoadBillingConfig([]byte(`
pricing_formulas:
  itemized:
    components:
      - id: lines
        type: flat_rate
invoice_presets:
  broken:
    formula_id: no_such_formula
    display_title: Broken
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_formula")
}

func TestLoadBillingConfigRejectsInvalidFormula(t *testing.T) {
	_, err := LoadBillingConfig([]byte(`
pricing_formulas:
  bad:
    components:
      - id: a
        type: flat_rate
      - id: a
        type: flat_rate
invoice_presets: {}
`))
	require.Error(t, err)
}

func TestParseInvoiceNormalizesLegacyFields(t *testing.T) {
	doc, err := ParseInvoice([]byte(`
date: 2025-06-30
billing_type: rate_single
contract_number: CTR-2024-07
service_description: Editorial services
invoice_sequence_number: "04"
line_items:
  - description: Feature article
    words: 1200
    rate: 6
`))
	require.NoError(t, err)

	assert.Equal(t, "rate", doc.BillingPreset)
	require.NotNil(t, doc.ContractSeries)
	assert.False(t, *doc.ContractSeries)
	assert.Equal(t, "CTR-2024-07", doc.ContractRef)
	assert.Equal(t, "Editorial services", doc.Service)
	assert.Equal(t, "04", doc.InvoiceSequenceNumber)
	assert.Empty(t, doc.WorkSequenceNumber)

	items, err := doc.Items()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Quantity.Equal(decimal.NewFromInt(1200)))
	assert.Equal(t, "word", items[0].Unit)
	require.NotNil(t, items[0].Rate)
	assert.True(t, items[0].Rate.Equal(decimal.NewFromInt(6)))
}

func TestParseInvoiceZeroSequenceImpliesStandalone(t *testing.T) {
	doc, err := ParseInvoice([]byte(`
date: 2025-01-10
billing_preset: flat_fee
invoice_sequence_number: "00"
`))
	require.NoError(t, err)
	require.NotNil(t, doc.ContractSeries)
	assert.False(t, *doc.ContractSeries)
	assert.Equal(t, "00", doc.InvoiceSequenceNumber)
}

func TestParseInvoiceKeepsWorkAndInvoiceSequencesDistinct(t *testing.T) {
	doc, err := ParseInvoice([]byte(`
date: 2021-04-30
billing_preset: retainer
contract_series: true
work_sequence_number: "02"
invoice_sequence_number: "04"
`))
	require.NoError(t, err)
	assert.Equal(t, "02", doc.WorkSequenceNumber)
	assert.Equal(t, "04", doc.InvoiceSequenceNumber)
	require.NotNil(t, doc.ContractSeries)
	assert.True(t, *doc.ContractSeries)
}

func TestParseInvoiceModernFieldsUntouched(t *testing.T) {
	doc, err := ParseInvoice([]byte(`
date: 2025-03-01
billing_preset: retainer
contract_series: true
work_sequence_number: "02"
params:
  base_amount: 5000
line_items:
  - description: Consulting
    quantity: 12.5
    unit: hour
`))
	require.NoError(t, err)
	assert.Equal(t, "retainer", doc.BillingPreset)
	require.NotNil(t, doc.ContractSeries)
	assert.True(t, *doc.ContractSeries)
	assert.Equal(t, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), doc.InvoiceDate())

	items, err := doc.Items()
	require.NoError(t, err)
	assert.True(t, items[0].Quantity.Equal(decimal.RequireFromString("12.5")))
}

func TestParseInvoiceDefaultsQuantityToOne(t *testing.T) {
	doc, err := ParseInvoice([]byte(`
date: 2025-03-01
line_items:
  - description: Filing fee
    amount: "1,500.00"
`))
	require.NoError(t, err)
	items, err := doc.Items()
	require.NoError(t, err)
	assert.True(t, items[0].Quantity.Equal(decimal.NewFromInt(1)))
	require.NotNil(t, items[0].Amount)
	assert.True(t, items[0].Amount.Equal(decimal.NewFromInt(1500)))
}

func TestParseInvoiceRejectsBadDates(t *testing.T) {
	_, err := ParseInvoice([]byte(`billing_preset: retainer`))
	require.Error(t, err)

	_, err = ParseInvoice([]byte(`date: 30/06/2025`))
	require.Error(t, err)
}

func TestParseInvoiceRejectsNegativeQuantity(t *testing.T) {
	doc, err := ParseInvoice([]byte(`
date: 2025-03-01
line_items:
  - description: Credit
    quantity: -2
`))
	require.NoError(t, err)
	_, err = doc.Items()
	require.Error(t, err)
}

func TestBusinessRulesTax(t *testing.T) {
	rules, err := LoadBusinessRules([]byte(`
tax_rules:
  default_gst_rate: 0.18
  cgst_rate: 0.09
  sgst_rate: 0.09
  igst_rate: 0.18
  gst_threshold_date: "2017-07-01"
  default_sac_code: "998216"
  lut_text_template: Supply under LUT {lut_number} without payment of IGST
state_map:
  KA: Karnataka
  MH: Maharashtra
invoice_defaults:
  payment_terms: 30 days
`))
	require.NoError(t, err)

	taxRules, err := rules.Tax()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2017, time.July, 1, 0, 0, 0, 0, time.UTC), taxRules.CutoverDate)
	assert.True(t, taxRules.CGSTRate.Equal(decimal.RequireFromString("0.09")))
	assert.True(t, taxRules.IGSTRate.Equal(decimal.RequireFromString("0.18")))
	assert.Equal(t, "Karnataka", rules.StateMap["KA"])
	assert.Equal(t, "30 days", rules.InvoiceDefaults.PaymentTerms)
}

func TestBusinessRulesTaxRejectsBadCutover(t *testing.T) {
	rules, err := LoadBusinessRules([]byte("tax_rules:\n  gst_threshold_date: July 2017\n"))
	require.NoError(t, err)
	_, err = rules.Tax()
	require.Error(t, err)
}
