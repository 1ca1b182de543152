// Package errors provides severity-aware error types for the billing engine.
package errors

import "fmt"

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// BillingError is a structured error with enough context to act on
// without opening source files: which component, which invoice, which
// variable.
type BillingError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	ComponentID string   `json:"component_id,omitempty"`
	InvoiceID   string   `json:"invoice_id,omitempty"`
	Variable    string   `json:"variable,omitempty"`
	Recoverable bool     `json:"recoverable"`
}

func (e *BillingError) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
	if e.ComponentID != "" {
		msg += fmt.Sprintf(" (component: %s)", e.ComponentID)
	}
	if e.InvoiceID != "" {
		msg += fmt.Sprintf(" (invoice: %s)", e.InvoiceID)
	}
	return msg
}

// Error codes
const (
	// Configuration errors: the billing config itself is broken.
	ErrCodeUnknownFormula     = "UNKNOWN_FORMULA"
	ErrCodeUnknownPreset      = "UNKNOWN_PRESET"
	ErrCodeInvalidThreshold   = "INVALID_THRESHOLD"
	ErrCodeMalformedTemplate  = "MALFORMED_TEMPLATE"
	ErrCodeDuplicateComponent = "DUPLICATE_COMPONENT"

	// Data errors: one invoice's inputs are broken.
	ErrCodeMissingVariable = "MISSING_VARIABLE"
	ErrCodeMalformedItem   = "MALFORMED_ITEM"

	// Numbering conflicts.
	ErrCodeDuplicateOverride = "DUPLICATE_OVERRIDE"
	ErrCodeAmbiguousRank     = "AMBIGUOUS_RANK"

	// Tax rule errors.
	ErrCodeUnknownJurisdiction = "UNKNOWN_JURISDICTION"
)

// NewUnknownFormulaError creates an error for an unresolvable formula id.
func NewUnknownFormulaError(formulaID string) *BillingError {
	return &BillingError{
		Code:        ErrCodeUnknownFormula,
		Message:     fmt.Sprintf("no pricing formula registered with id: %s", formulaID),
		Severity:    SeverityError,
		Recoverable: false,
	}
}

// NewUnknownPresetError creates an error for an unresolvable preset id.
func NewUnknownPresetError(presetID string) *BillingError {
	return &BillingError{
		Code:        ErrCodeUnknownPreset,
		Message:     fmt.Sprintf("no invoice preset registered with id: %s", presetID),
		Severity:    SeverityError,
		Recoverable: false,
	}
}

// NewMissingVariableError creates an error for an unbound interpolation or
// expression variable.
func NewMissingVariableError(variable, componentID string) *BillingError {
	return &BillingError{
		Code:        ErrCodeMissingVariable,
		Message:     fmt.Sprintf("variable %q is not bound in the evaluation context", variable),
		Severity:    SeverityError,
		ComponentID: componentID,
		Variable:    variable,
		Recoverable: false,
	}
}

// NewInvalidThresholdError creates an error for min_quantity > max_quantity.
func NewInvalidThresholdError(componentID, detail string) *BillingError {
	return &BillingError{
		Code:        ErrCodeInvalidThreshold,
		Message:     fmt.Sprintf("invalid quantity threshold: %s", detail),
		Severity:    SeverityError,
		ComponentID: componentID,
		Recoverable: false,
	}
}

// NewDuplicateOverrideError creates an error for two invoices claiming the
// same historical number. Fatal for the whole numbering group.
func NewDuplicateOverrideError(number, firstInvoice, secondInvoice string) *BillingError {
	return &BillingError{
		Code: ErrCodeDuplicateOverride,
		Message: fmt.Sprintf("invoices %s and %s both claim historical number %s",
			firstInvoice, secondInvoice, number),
		Severity:    SeverityFatal,
		InvoiceID:   secondInvoice,
		Recoverable: false,
	}
}

// NewUnknownJurisdictionError creates an error for an unrecognized
// jurisdiction relationship tag.
func NewUnknownJurisdictionError(relationship, invoiceID string) *BillingError {
	return &BillingError{
		Code:        ErrCodeUnknownJurisdiction,
		Message:     fmt.Sprintf("unrecognized jurisdiction relationship: %s", relationship),
		Severity:    SeverityError,
		InvoiceID:   invoiceID,
		Recoverable: false,
	}
}
