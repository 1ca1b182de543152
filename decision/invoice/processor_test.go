package invoice

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-solipsist/invoice-system/decision/billing"
	"github.com/the-solipsist/invoice-system/decision/formula"
	"github.com/the-solipsist/invoice-system/decision/tax"
	billerrors "github.com/the-solipsist/invoice-system/pkg/errors"
)

const lutTemplate = "Supply meant for export under LUT No. {lut_number} without payment of integrated tax."

func testProcessor(t *testing.T) *Processor {
	t.Helper()
	reg, err := formula.NewRegistry(
		map[string]*formula.Formula{
			"retainer_with_excess": {
				Components: []formula.Component{
					{ID: "retainer", Kind: formula.KindFlatRate, Amount: "{base_amount}"},
					{ID: "excess", Kind: formula.KindUnitRate, Rate: "{excess_rate}", MinQuantity: "{included_hours}"},
				},
			},
		},
		map[string]*formula.Preset{
			"monthly_retainer": {
				FormulaID: "retainer_with_excess",
				UnitName:  "hour",
				Defaults:  map[string]interface{}{"included_hours": "10"},
			},
		},
	)
	require.NoError(t, err)

	rules := tax.Rules{
		CutoverDate: time.Date(2017, 7, 1, 0, 0, 0, 0, time.UTC),
		CGSTRate:    decimal.RequireFromString("0.09"),
		SGSTRate:    decimal.RequireFromString("0.09"),
		IGSTRate:    decimal.RequireFromString("0.18"),
	}
	return NewProcessor(reg, rules, lutTemplate, nil)
}

func retainerInput(key string, date time.Time) Input {
	qty := decimal.RequireFromString("15")
	return Input{
		SourceKey: key,
		Date:      date,
		PresetID:  "monthly_retainer",
		Items:     []billing.LineItem{{Quantity: qty, Unit: "hour"}},
		Params: billing.Context{
			"base_amount": "5000",
			"excess_rate": "100",
		},
		ClientPrefix:   "ACM",
		WorkSequence:   "01",
		ContractSeries: true,
		Relationship:   tax.RelationshipIntraState,
	}
}

func TestProcessBatchCombinesAllOutputs(t *testing.T) {
	p := testProcessor(t)
	date := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

	outcomes := p.ProcessBatch([]Input{retainerInput("jun.yaml", date)})
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)

	fin := outcomes[0].Financials
	assert.Equal(t, "ACM-01-01-250630", fin.Identity.CanonicalID)
	require.Len(t, fin.BillingLines, 2)
	assert.Equal(t, "5500", fin.Subtotal.String())
	assert.True(t, fin.ShowSubtotal)
	assert.Equal(t, tax.RegimeIntraState, fin.Regime)
	assert.Equal(t, "990", fin.TaxTotal.String())
	assert.Equal(t, "6490", fin.FinalTotal.String())
}

func TestOneBadInvoiceDoesNotShiftSiblingSequences(t *testing.T) {
	p := testProcessor(t)

	good1 := retainerInput("jan.yaml", time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
	bad := retainerInput("feb.yaml", time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC))
	bad.Params = billing.Context{"excess_rate": "100"} // base_amount unbound
	good2 := retainerInput("mar.yaml", time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC))

	outcomes := p.ProcessBatch([]Input{good1, bad, good2})
	require.Len(t, outcomes, 3)

	var berr *billerrors.BillingError
	require.ErrorAs(t, outcomes[1].Err, &berr)
	assert.Equal(t, billerrors.ErrCodeMissingVariable, berr.Code)

	// The failed invoice still occupied its rank: siblings keep the
	// sequence numbers they would have had.
	assert.Equal(t, "01", outcomes[0].Financials.Identity.Sequence)
	assert.Equal(t, "03", outcomes[2].Financials.Identity.Sequence)
}

func TestDuplicateOverrideFailsItsWorkRelationshipOnly(t *testing.T) {
	p := testProcessor(t)
	a := retainerInput("a.yaml", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	a.FaceOverride = "LEGACY-7"
	b := retainerInput("b.yaml", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	b.FaceOverride = "LEGACY-7"
	other := retainerInput("zen.yaml", time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))
	other.ClientPrefix = "ZEN"

	outcomes := p.ProcessBatch([]Input{a, b, other})
	require.Len(t, outcomes, 3)

	var berr *billerrors.BillingError
	require.ErrorAs(t, outcomes[0].Err, &berr)
	require.ErrorAs(t, outcomes[1].Err, &berr)
	assert.Equal(t, billerrors.ErrCodeDuplicateOverride, berr.Code)

	// The conflict is confined to its work relationship.
	require.NoError(t, outcomes[2].Err)
	assert.Equal(t, "ZEN-01-01-250115", outcomes[2].Financials.Identity.CanonicalID)
}

func TestManualSequenceFlowsIntoCanonicalID(t *testing.T) {
	p := testProcessor(t)
	in := retainerInput("legacy.yaml", time.Date(2021, 4, 30, 0, 0, 0, 0, time.UTC))
	in.WorkSequence = "02"
	in.ManualSequence = "04"

	outcomes := p.ProcessBatch([]Input{in})
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, "ACM-02-04-210430", outcomes[0].Financials.Identity.CanonicalID)
}

func TestExportInvoiceCarriesLUTText(t *testing.T) {
	p := testProcessor(t)
	in := retainerInput("exp.yaml", time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC))
	in.Relationship = tax.RelationshipExport
	in.LUTNumber = "AD290325000000X"

	outcomes := p.ProcessBatch([]Input{in})
	require.NoError(t, outcomes[0].Err)
	fin := outcomes[0].Financials

	assert.Equal(t, tax.RegimeExport, fin.Regime)
	assert.Empty(t, fin.TaxLines)
	assert.True(t, fin.TaxTotal.IsZero())
	assert.Equal(t, fin.Subtotal, fin.FinalTotal)
	assert.Equal(t,
		"Supply meant for export under LUT No. AD290325000000X without payment of integrated tax.",
		fin.LUTText)
}

func TestUnknownPresetFailsOnlyThatInvoice(t *testing.T) {
	p := testProcessor(t)
	good := retainerInput("ok.yaml", time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
	bad := retainerInput("bad.yaml", time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC))
	bad.PresetID = "no_such_preset"

	outcomes := p.ProcessBatch([]Input{good, bad})
	require.NoError(t, outcomes[0].Err)

	var berr *billerrors.BillingError
	require.ErrorAs(t, outcomes[1].Err, &berr)
	assert.Equal(t, billerrors.ErrCodeUnknownPreset, berr.Code)
}
