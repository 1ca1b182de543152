// Package tax classifies invoices into tax regimes and computes the
// resulting tax components. Classification is a pure function of the
// invoice date, the jurisdiction relationship between the two parties,
// and the configured rate rules.
package tax

import (
	"time"

	"github.com/shopspring/decimal"

	billerrors "github.com/the-solipsist/invoice-system/pkg/errors"
	"github.com/the-solipsist/invoice-system/pkg/money"
)

// Relationship describes where the counterparty sits relative to the
// invoicing entity.
type Relationship string

const (
	RelationshipIntraState Relationship = "domestic-same-jurisdiction"
	RelationshipInterState Relationship = "domestic-other-jurisdiction"
	RelationshipExport     Relationship = "export"
)

// IsValid checks the relationship tag is recognized.
func (r Relationship) IsValid() bool {
	switch r {
	case RelationshipIntraState, RelationshipInterState, RelationshipExport:
		return true
	}
	return false
}

// Regime is the resolved tax treatment.
type Regime string

const (
	RegimeIntraState    Regime = "domestic-intra-state"
	RegimeInterState    Regime = "domestic-inter-state"
	RegimeExport        Regime = "export-zero-rated"
	RegimeNotApplicable Regime = "not-applicable" // invoice predates the regime cutover
)

// Rules carries the configured rates and the regime cutover date.
// Configurable in principle; the shipped business rules use the split
// 9%+9% intra-state pair and 18% inter-state.
type Rules struct {
	CutoverDate time.Time
	CGSTRate    decimal.Decimal
	SGSTRate    decimal.Decimal
	IGSTRate    decimal.Decimal
}

// Component is one tax line: a labelled rate applied to the subtotal.
type Component struct {
	Label  string          `json:"label"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

// Breakdown is the classification result.
type Breakdown struct {
	Regime Regime `json:"regime"`
	// Components is empty for zero-rated exports and pre-cutover
	// invoices.
	Components []Component     `json:"components,omitempty"`
	Total      decimal.Decimal `json:"total"`
	// ExportNotification marks zero-rated exports that must carry the
	// export-undertaking notice on the document.
	ExportNotification bool `json:"export_notification,omitempty"`
}

// Classify maps an invoice date and jurisdiction relationship to a tax
// breakdown over the given subtotal. An invoice dated exactly on the
// cutover uses the post-cutover regime; one day earlier predates it.
func Classify(invoiceDate time.Time, relationship Relationship, subtotal decimal.Decimal, rules Rules) (*Breakdown, error) {
	if !relationship.IsValid() {
		return nil, billerrors.NewUnknownJurisdictionError(string(relationship), "")
	}

	if invoiceDate.Before(rules.CutoverDate) {
		return &Breakdown{Regime: RegimeNotApplicable}, nil
	}

	switch relationship {
	case RelationshipExport:
		return &Breakdown{Regime: RegimeExport, ExportNotification: true}, nil

	case RelationshipIntraState:
		cgst := money.RoundCurrency(subtotal.Mul(rules.CGSTRate))
		sgst := money.RoundCurrency(subtotal.Mul(rules.SGSTRate))
		return &Breakdown{
			Regime: RegimeIntraState,
			Components: []Component{
				{Label: "CGST", Rate: rules.CGSTRate, Amount: cgst},
				{Label: "SGST", Rate: rules.SGSTRate, Amount: sgst},
			},
			Total: cgst.Add(sgst),
		}, nil

	default: // RelationshipInterState
		igst := money.RoundCurrency(subtotal.Mul(rules.IGSTRate))
		return &Breakdown{
			Regime:     RegimeInterState,
			Components: []Component{{Label: "IGST", Rate: rules.IGSTRate, Amount: igst}},
			Total:      igst,
		}, nil
	}
}
