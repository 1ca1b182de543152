// Package invoice orchestrates a batch run: identities are assigned over
// the whole batch first, then each invoice's fees and taxes are computed
// independently, so one invoice's bad data can never shift the sequence
// numbers of its siblings.
package invoice

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/the-solipsist/invoice-system/decision/billing"
	"github.com/the-solipsist/invoice-system/decision/formula"
	"github.com/the-solipsist/invoice-system/decision/numbering"
	"github.com/the-solipsist/invoice-system/decision/tax"
)

// Input is one invoice's resolved data, assembled by the caller from its
// source documents.
type Input struct {
	SourceKey string
	Date      time.Time
	PresetID  string
	Items     []billing.LineItem
	Params    billing.Context

	ClientPrefix   string
	WorkSequence   string
	ContractSeries bool
	// ManualSequence is an explicit historical invoice-sequence digit
	// pair, used verbatim in the canonical id.
	ManualSequence string
	FaceOverride   string

	Relationship tax.Relationship
	// LUTNumber is the sender's letter-of-undertaking number, rendered
	// into the export notice on zero-rated invoices.
	LUTNumber string
}

// Financials is the combined computation output for one invoice.
type Financials struct {
	Identity     numbering.Identity `json:"identity"`
	BillingLines []billing.Row      `json:"billing_lines"`
	Subtotal     decimal.Decimal    `json:"subtotal"`
	// ShowSubtotal is set when more than one billing line exists, the
	// cue for presentation to print an explicit sub-total row.
	ShowSubtotal bool            `json:"show_subtotal"`
	Regime       tax.Regime      `json:"regime"`
	TaxLines     []tax.Component `json:"tax_lines,omitempty"`
	TaxTotal     decimal.Decimal `json:"tax_total"`
	FinalTotal   decimal.Decimal `json:"final_total"`
	LUTText      string          `json:"lut_text,omitempty"`
}

// Outcome pairs one input with its result or its failure. Failures are
// per-invoice: siblings in the batch still complete.
type Outcome struct {
	SourceKey  string
	Financials *Financials
	Err        error
}

// Processor wires the registry, calculator, classifier rules and
// numbering service together for batch runs.
type Processor struct {
	registry    *formula.Registry
	calculator  *billing.Calculator
	numbering   *numbering.Service
	taxRules    tax.Rules
	lutTemplate string
	logger      *slog.Logger
}

// NewProcessor creates a batch processor. lutTemplate is the export
// notice with a {lut_number} placeholder.
func NewProcessor(registry *formula.Registry, rules tax.Rules, lutTemplate string, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		registry:    registry,
		calculator:  billing.NewCalculator(),
		numbering:   numbering.NewService(logger),
		taxRules:    rules,
		lutTemplate: lutTemplate,
		logger:      logger,
	}
}

// ProcessBatch computes identities, fees and taxes for a batch of
// invoices. The returned outcomes preserve input order. A numbering
// conflict (duplicate historical override) fails every invoice in the
// affected work relationship; any other failure is recorded on its own
// invoice only.
func (p *Processor) ProcessBatch(inputs []Input) []Outcome {
	identities, numberingErrs := p.AssignIdentities(inputs)

	outcomes := make([]Outcome, 0, len(inputs))
	for _, in := range inputs {
		if err := numberingErrs[in.SourceKey]; err != nil {
			outcomes = append(outcomes, Outcome{SourceKey: in.SourceKey, Err: err})
			continue
		}
		fin, err := p.processOne(in, identities[in.SourceKey])
		if err != nil {
			p.logger.Error("invoice computation failed",
				"source_key", in.SourceKey, "error", err)
			outcomes = append(outcomes, Outcome{SourceKey: in.SourceKey, Err: err})
			continue
		}
		outcomes = append(outcomes, Outcome{SourceKey: in.SourceKey, Financials: fin})
	}
	return outcomes
}

// AssignIdentities resolves face numbers and canonical ids for the whole
// batch without computing any amounts. The second map carries per-invoice
// numbering failures keyed by source key.
func (p *Processor) AssignIdentities(inputs []Input) (map[string]numbering.Identity, map[string]error) {
	refs := make([]numbering.Ref, 0, len(inputs))
	for _, in := range inputs {
		refs = append(refs, numbering.Ref{
			SourceKey:      in.SourceKey,
			Date:           in.Date,
			ClientPrefix:   in.ClientPrefix,
			WorkSequence:   in.WorkSequence,
			ContractSeries: in.ContractSeries,
			ManualSequence: in.ManualSequence,
			FaceOverride:   in.FaceOverride,
		})
	}
	return p.numbering.AssignIdentities(refs)
}

func (p *Processor) processOne(in Input, identity numbering.Identity) (*Financials, error) {
	preset, f, err := p.registry.FormulaForPreset(in.PresetID)
	if err != nil {
		return nil, err
	}

	result, err := p.calculator.Compute(f, preset, in.Items, in.Params, in.Date)
	if err != nil {
		return nil, err
	}

	breakdown, err := tax.Classify(in.Date, in.Relationship, result.Total, p.taxRules)
	if err != nil {
		return nil, err
	}

	fin := &Financials{
		Identity:     identity,
		BillingLines: result.Rows,
		Subtotal:     result.Total,
		ShowSubtotal: len(result.Rows) > 1,
		Regime:       breakdown.Regime,
		TaxLines:     breakdown.Components,
		TaxTotal:     breakdown.Total,
		FinalTotal:   result.Total.Add(breakdown.Total),
	}
	if breakdown.ExportNotification && in.LUTNumber != "" {
		text, err := billing.Interpolate(p.lutTemplate, map[string]string{"lut_number": in.LUTNumber}, "")
		if err != nil {
			return nil, err
		}
		fin.LUTText = text
	}
	return fin, nil
}
