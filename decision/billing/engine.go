package billing

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/the-solipsist/invoice-system/decision/formula"
	billerrors "github.com/the-solipsist/invoice-system/pkg/errors"
	"github.com/the-solipsist/invoice-system/pkg/money"
	"github.com/the-solipsist/invoice-system/pkg/units"
)

// Row is one presented line in the billing table.
type Row struct {
	ComponentID string          `json:"component_id"`
	Label       string          `json:"label"`
	Details     string          `json:"details,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
}

// Result is the ordered output of one formula evaluation. Total is the
// exact sum of row amounts; each amount was rounded once at computation
// time and is never re-rounded here.
type Result struct {
	Rows  []Row           `json:"rows"`
	Total decimal.Decimal `json:"total"`
}

// Calculator evaluates pricing formulas. It is stateless; every call is a
// pure function of its inputs.
type Calculator struct{}

// NewCalculator creates a fee calculator.
func NewCalculator() *Calculator { return &Calculator{} }

// Compute evaluates one formula against a set of line items and a
// variable-binding context, in component order. The preset supplies row
// templates, defaults and the display unit; params carry invoice-level
// overrides. Neither input is mutated.
func (c *Calculator) Compute(
	f *formula.Formula,
	preset *formula.Preset,
	items []LineItem,
	params Context,
	invoiceDate time.Time,
) (*Result, error) {
	ctx := Merge(Context(preset.Defaults), params, dateContext(invoiceDate))

	result := &Result{Rows: make([]Row, 0, len(f.Components))}
	for _, comp := range f.Components {
		tmpl := preset.RowTemplates[comp.ID]

		var rows []Row
		var err error
		switch comp.Kind {
		case formula.KindFlatRate:
			rows, err = c.flatRateRows(comp, tmpl, preset, items, ctx)
		case formula.KindUnitRate:
			rows, err = c.unitRateRows(comp, tmpl, preset, items, ctx)
		default:
			err = &billerrors.BillingError{
				Code:        billerrors.ErrCodeMalformedTemplate,
				Message:     fmt.Sprintf("unsupported component type %q", comp.Kind),
				Severity:    billerrors.SeverityError,
				ComponentID: comp.ID,
			}
		}
		if err != nil {
			return nil, err
		}

		for _, row := range rows {
			result.Rows = append(result.Rows, row)
			result.Total = result.Total.Add(row.Amount)
		}
	}
	return result, nil
}

// flatRateRows evaluates a flat_rate component. With a bound amount it
// emits exactly one row; without one it partitions items by
// (description, meta) and emits one row per partition in first-seen
// order.
func (c *Calculator) flatRateRows(
	comp formula.Component,
	tmpl formula.RowTemplate,
	preset *formula.Preset,
	items []LineItem,
	ctx Context,
) ([]Row, error) {
	amount, bound, err := resolveExpr(comp.Amount, ctx, comp.ID)
	if err != nil {
		return nil, err
	}

	if bound {
		rounded := money.RoundCurrency(amount)
		vars := renderVars(ctx)
		vars["amount"] = money.FormatCurrency(rounded)
		row, err := c.renderRow(comp.ID, tmpl, vars)
		if err != nil {
			return nil, err
		}
		row.Amount = rounded
		return []Row{row}, nil
	}

	// Items that carry neither an amount nor a rate cannot contribute to
	// a flat component; they are not part of any partition.
	priced := make([]LineItem, 0, len(items))
	for _, item := range items {
		if item.Amount != nil || item.Rate != nil {
			priced = append(priced, item)
		}
	}

	groups := GroupBy(priced, func(item LineItem) string {
		return item.Description + "\x1f" + metaFingerprint(item.Meta)
	})

	rows := make([]Row, 0, len(groups))
	for _, g := range groups {
		var sum, qty decimal.Decimal
		for _, item := range g.Items {
			if item.Amount != nil {
				sum = sum.Add(*item.Amount)
			} else {
				sum = sum.Add(item.Quantity.Mul(*item.Rate))
			}
			qty = qty.Add(item.Quantity)
		}
		rounded := money.RoundCurrency(sum)

		rep := g.Items[0]
		vars := renderVars(ctx)
		for k, v := range rep.Meta {
			vars[k] = stringify(v)
		}
		if rep.Description != "" {
			vars["description"] = rep.Description
		}
		vars["qty"] = money.FormatQuantity(qty)
		vars["amount"] = money.FormatCurrency(rounded)

		row, err := c.renderRow(comp.ID, tmpl, vars)
		if err != nil {
			return nil, err
		}
		row.Amount = rounded
		rows = append(rows, row)
	}
	return rows, nil
}

// unitRateRows evaluates a unit_rate component. With a bound rate it sums
// quantity across all items and clips it against the component threshold;
// without one it partitions items by their own rate and applies the
// threshold per the component's configured scope.
func (c *Calculator) unitRateRows(
	comp formula.Component,
	tmpl formula.RowTemplate,
	preset *formula.Preset,
	items []LineItem,
	ctx Context,
) ([]Row, error) {
	rate, rateBound, err := resolveExpr(comp.Rate, ctx, comp.ID)
	if err != nil {
		return nil, err
	}
	minQty, _, err := resolveExpr(comp.MinQuantity, ctx, comp.ID)
	if err != nil {
		return nil, err
	}
	maxQty, maxSet, err := resolveExpr(comp.MaxQuantity, ctx, comp.ID)
	if err != nil {
		return nil, err
	}
	if maxSet && minQty.GreaterThan(maxQty) {
		return nil, billerrors.NewInvalidThresholdError(comp.ID,
			fmt.Sprintf("min_quantity %s exceeds max_quantity %s", minQty, maxQty))
	}

	if rateBound {
		var total decimal.Decimal
		var rep *LineItem
		for i, item := range items {
			if rep == nil && item.Unit != "" {
				rep = &items[i]
			}
			total = total.Add(item.Quantity)
		}
		billable := clampBillable(total, minQty, maxQty, maxSet)
		rounded := money.RoundCurrency(billable.Mul(rate))

		vars := c.unitVars(ctx, preset, rep, billable, rate, rounded, minQty, maxQty, maxSet)
		row, err := c.renderRow(comp.ID, tmpl, vars)
		if err != nil {
			return nil, err
		}
		row.Amount = rounded
		return []Row{row}, nil
	}

	// Dynamic rates: every contributing item must carry its own rate.
	rated := make([]LineItem, 0, len(items))
	for _, item := range items {
		if item.Rate != nil {
			rated = append(rated, item)
		}
	}
	groups := GroupBy(rated, func(item LineItem) string {
		return item.Rate.String()
	})

	scope := comp.ThresholdScope
	if scope == "" {
		scope = formula.ScopePartition
	}

	allowance := minQty
	capLeft := maxQty.Sub(minQty)

	rows := make([]Row, 0, len(groups))
	for _, g := range groups {
		groupRate := *g.Items[0].Rate
		var qty decimal.Decimal
		for _, item := range g.Items {
			qty = qty.Add(item.Quantity)
		}

		var billable decimal.Decimal
		switch scope {
		case formula.ScopeTotal:
			// One shared allowance, consumed in first-seen partition order.
			use := decimal.Min(qty, allowance)
			allowance = allowance.Sub(use)
			billable = qty.Sub(use)
			if maxSet {
				if billable.GreaterThan(capLeft) {
					billable = capLeft
				}
				capLeft = capLeft.Sub(billable)
			}
		default:
			billable = clampBillable(qty, minQty, maxQty, maxSet)
		}
		rounded := money.RoundCurrency(billable.Mul(groupRate))

		vars := c.unitVars(ctx, preset, &g.Items[0], billable, groupRate, rounded, minQty, maxQty, maxSet)
		row, err := c.renderRow(comp.ID, tmpl, vars)
		if err != nil {
			return nil, err
		}
		row.Amount = rounded
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *Calculator) renderRow(componentID string, tmpl formula.RowTemplate, vars map[string]string) (Row, error) {
	label, err := Interpolate(tmpl.Label, vars, componentID)
	if err != nil {
		return Row{}, err
	}
	details, err := Interpolate(tmpl.Details, vars, componentID)
	if err != nil {
		return Row{}, err
	}
	return Row{ComponentID: componentID, Label: label, Details: details}, nil
}

// unitVars assembles the interpolation variables for a unit_rate row.
func (c *Calculator) unitVars(
	ctx Context,
	preset *formula.Preset,
	rep *LineItem,
	billable, rate, amount decimal.Decimal,
	minQty, maxQty decimal.Decimal,
	maxSet bool,
) map[string]string {
	vars := renderVars(ctx)
	if rep != nil {
		for k, v := range rep.Meta {
			vars[k] = stringify(v)
		}
	}

	qtyStr := money.FormatQuantity(billable)
	unit := displayUnit(preset, rep, ctx)
	vars["qty"] = qtyStr
	vars["rate"] = money.FormatCurrency(rate)
	vars["amount"] = money.FormatCurrency(amount)
	vars["unit"] = units.Singular(unit)
	vars["units"] = units.ForCount(unit, qtyStr)

	threshold := minQty
	if !minQty.IsPositive() && maxSet {
		threshold = maxQty
	}
	vars["threshold"] = money.FormatQuantity(threshold)
	return vars
}

// displayUnit picks the unit name for a row: the representative item's
// declared unit wins, then the preset, then context, then the default.
func displayUnit(preset *formula.Preset, rep *LineItem, ctx Context) string {
	if rep != nil && rep.Unit != "" {
		return rep.Unit
	}
	if preset.UnitName != "" {
		return preset.UnitName
	}
	if v, ok := ctx["unit_name"]; ok {
		return stringify(v)
	}
	if v, ok := ctx["unit"]; ok {
		return stringify(v)
	}
	return string(units.DefaultUnit)
}

// clampBillable applies threshold clipping: quantity below min_quantity is
// a free allowance, quantity above max_quantity is capped.
func clampBillable(total, minQty, maxQty decimal.Decimal, maxSet bool) decimal.Decimal {
	billable := total.Sub(minQty)
	if billable.IsNegative() {
		return decimal.Zero
	}
	if maxSet {
		ceiling := maxQty.Sub(minQty)
		if billable.GreaterThan(ceiling) {
			return ceiling
		}
	}
	return billable
}

// resolveExpr resolves a component expression against the context.
// Returns (value, bound) where bound is false when the expression is
// absent from configuration. A placeholder naming an unbound variable is
// a data error.
func resolveExpr(e formula.Expr, ctx Context, componentID string) (decimal.Decimal, bool, error) {
	if !e.IsSet() {
		return decimal.Zero, false, nil
	}
	if name, isVar := e.Variable(); isVar {
		raw, ok := ctx[name]
		if !ok {
			return decimal.Zero, false, billerrors.NewMissingVariableError(name, componentID)
		}
		d, err := money.Parse(raw)
		if err != nil {
			return decimal.Zero, false, &billerrors.BillingError{
				Code:        billerrors.ErrCodeMalformedItem,
				Message:     fmt.Sprintf("variable %q is bound to a non-numeric value: %v", name, raw),
				Severity:    billerrors.SeverityError,
				ComponentID: componentID,
				Variable:    name,
			}
		}
		return d, true, nil
	}
	d, err := e.Literal()
	if err != nil {
		return decimal.Zero, false, &billerrors.BillingError{
			Code:        billerrors.ErrCodeMalformedTemplate,
			Message:     fmt.Sprintf("expression %q is neither a number nor a {variable} reference", e),
			Severity:    billerrors.SeverityError,
			ComponentID: componentID,
		}
	}
	return d, true, nil
}

// renderVars stringifies the evaluation context for interpolation.
func renderVars(ctx Context) map[string]string {
	vars := make(map[string]string, len(ctx)+8)
	for k, v := range ctx {
		vars[k] = stringify(v)
	}
	return vars
}

// dateContext decomposes the invoice date into interpolation variables.
func dateContext(d time.Time) Context {
	return Context{
		"date":  d.Format("2006-01-02"),
		"day":   strconv.Itoa(d.Day()),
		"month": d.Format("January"),
		"year":  strconv.Itoa(d.Year()),
	}
}
