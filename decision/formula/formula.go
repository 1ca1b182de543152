// Package formula holds the registry of abstract pricing formulas and
// invoice presets. Formulas are loaded once per run from configuration and
// are read-only afterwards; all domain variation lives in this data, not
// in engine code.
package formula

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	billerrors "github.com/the-solipsist/invoice-system/pkg/errors"
	"github.com/the-solipsist/invoice-system/pkg/money"
)

// ComponentKind discriminates the two calculation primitives.
type ComponentKind string

const (
	KindFlatRate ComponentKind = "flat_rate"
	KindUnitRate ComponentKind = "unit_rate"
)

// IsValid checks the kind is one of the two supported primitives.
func (k ComponentKind) IsValid() bool {
	return k == KindFlatRate || k == KindUnitRate
}

// ThresholdScope decides how a unit_rate threshold applies when items are
// partitioned by rate: against each partition independently, or against
// the combined total with the free allowance consumed in first-seen order.
type ThresholdScope string

const (
	ScopePartition ThresholdScope = "partition"
	ScopeTotal     ThresholdScope = "total"
)

// Expr is a configuration scalar: either a literal decimal ("5000") or a
// reference to a context variable ("{base_amount}"). The empty string
// means the field is absent.
type Expr string

// IsSet reports whether the expression is present.
func (e Expr) IsSet() bool { return e != "" }

// Variable returns the referenced variable name, if the expression is a
// "{name}" placeholder.
func (e Expr) Variable() (string, bool) {
	s := string(e)
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s[1 : len(s)-1], true
	}
	return "", false
}

// Literal parses the expression as a literal decimal.
func (e Expr) Literal() (decimal.Decimal, error) {
	return money.Parse(string(e))
}

// Component is one calculation block within a formula.
type Component struct {
	ID   string        `yaml:"id" json:"id"`
	Kind ComponentKind `yaml:"type" json:"type"`

	// flat_rate
	Amount Expr `yaml:"amount,omitempty" json:"amount,omitempty"`

	// unit_rate
	Rate           Expr           `yaml:"rate,omitempty" json:"rate,omitempty"`
	MinQuantity    Expr           `yaml:"min_quantity,omitempty" json:"min_quantity,omitempty"`
	MaxQuantity    Expr           `yaml:"max_quantity,omitempty" json:"max_quantity,omitempty"`
	ThresholdScope ThresholdScope `yaml:"threshold_scope,omitempty" json:"threshold_scope,omitempty"`
}

// Formula is an ordered list of components under a unique id.
type Formula struct {
	ID         string      `yaml:"-" json:"id"`
	Components []Component `yaml:"components" json:"components"`
}

// RowTemplate is the presentation template for one component's rows.
type RowTemplate struct {
	Label   string `yaml:"label" json:"label"`
	Details string `yaml:"details" json:"details"`
}

// Preset binds a formula to presentation defaults for one invoice shape.
type Preset struct {
	FormulaID    string                 `yaml:"formula_id" json:"formula_id"`
	DisplayTitle string                 `yaml:"display_title" json:"display_title"`
	UnitName     string                 `yaml:"unit_name,omitempty" json:"unit_name,omitempty"`
	RowTemplates map[string]RowTemplate `yaml:"row_templates,omitempty" json:"row_templates,omitempty"`
	Defaults     map[string]interface{} `yaml:"defaults,omitempty" json:"defaults,omitempty"`
}

// Validate checks structural invariants: recognized kinds, unique
// component ids, and literal threshold ordering. Thresholds bound through
// variables are checked again at computation time.
func (f *Formula) Validate() error {
	seen := make(map[string]bool)
	for _, comp := range f.Components {
		if comp.ID == "" {
			return &billerrors.BillingError{
				Code:     billerrors.ErrCodeMalformedTemplate,
				Message:  fmt.Sprintf("formula %s has a component without an id", f.ID),
				Severity: billerrors.SeverityError,
			}
		}
		if seen[comp.ID] {
			return &billerrors.BillingError{
				Code:        billerrors.ErrCodeDuplicateComponent,
				Message:     fmt.Sprintf("formula %s declares component id %s twice", f.ID, comp.ID),
				Severity:    billerrors.SeverityError,
				ComponentID: comp.ID,
			}
		}
		seen[comp.ID] = true

		if !comp.Kind.IsValid() {
			return &billerrors.BillingError{
				Code:        billerrors.ErrCodeMalformedTemplate,
				Message:     fmt.Sprintf("formula %s component %s has unsupported type %q", f.ID, comp.ID, comp.Kind),
				Severity:    billerrors.SeverityError,
				ComponentID: comp.ID,
			}
		}
		if comp.ThresholdScope != "" && comp.ThresholdScope != ScopePartition && comp.ThresholdScope != ScopeTotal {
			return &billerrors.BillingError{
				Code:        billerrors.ErrCodeMalformedTemplate,
				Message:     fmt.Sprintf("component %s has unknown threshold_scope %q", comp.ID, comp.ThresholdScope),
				Severity:    billerrors.SeverityError,
				ComponentID: comp.ID,
			}
		}

		if err := validateLiteralThreshold(comp); err != nil {
			return err
		}
	}
	return nil
}

func validateLiteralThreshold(comp Component) error {
	if _, isVar := comp.MinQuantity.Variable(); isVar || !comp.MinQuantity.IsSet() {
		return nil
	}
	if _, isVar := comp.MaxQuantity.Variable(); isVar || !comp.MaxQuantity.IsSet() {
		return nil
	}
	min, err := comp.MinQuantity.Literal()
	if err != nil {
		return billerrors.NewInvalidThresholdError(comp.ID, fmt.Sprintf("min_quantity %q is not numeric", comp.MinQuantity))
	}
	max, err := comp.MaxQuantity.Literal()
	if err != nil {
		return billerrors.NewInvalidThresholdError(comp.ID, fmt.Sprintf("max_quantity %q is not numeric", comp.MaxQuantity))
	}
	if min.GreaterThan(max) {
		return billerrors.NewInvalidThresholdError(comp.ID,
			fmt.Sprintf("min_quantity %s exceeds max_quantity %s", min, max))
	}
	return nil
}
