// Package config loads the declarative configuration the engine runs
// from: pricing formulas and invoice presets, business tax rules, and
// invoice/contract documents. Legacy field aliases are normalized here,
// once, so the engine itself never sees old schema shapes.
package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/the-solipsist/invoice-system/decision/formula"
	"github.com/the-solipsist/invoice-system/decision/tax"
)

// presetDoc is the YAML shape of one invoice preset. Row templates may
// sit at the top level or nested under billing_table, both accepted.
type presetDoc struct {
	FormulaID    string                         `yaml:"formula_id"`
	DisplayTitle string                         `yaml:"display_title"`
	UnitName     string                         `yaml:"unit_name"`
	BillingTable struct {
		UnitName     string                         `yaml:"unit_name"`
		RowTemplates map[string]formula.RowTemplate `yaml:"row_templates"`
	} `yaml:"billing_table"`
	RowTemplates map[string]formula.RowTemplate `yaml:"row_templates"`
	Defaults     map[string]interface{}         `yaml:"defaults"`
}

type billingDoc struct {
	PricingFormulas map[string]*formula.Formula `yaml:"pricing_formulas"`
	InvoicePresets  map[string]presetDoc        `yaml:"invoice_presets"`
}

// LoadBillingConfig parses billing configuration and builds the validated
// formula registry for the run.
func LoadBillingConfig(data []byte) (*formula.Registry, error) {
	var doc billingDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing billing config: %w", err)
	}

	presets := make(map[string]*formula.Preset, len(doc.InvoicePresets))
	for id, p := range doc.InvoicePresets {
		templates := p.RowTemplates
		if len(templates) == 0 {
			templates = p.BillingTable.RowTemplates
		}
		unitName := p.UnitName
		if unitName == "" {
			unitName = p.BillingTable.UnitName
		}
		presets[id] = &formula.Preset{
			FormulaID:    p.FormulaID,
			DisplayTitle: p.DisplayTitle,
			UnitName:     unitName,
			RowTemplates: templates,
			Defaults:     p.Defaults,
		}
	}
	return formula.NewRegistry(doc.PricingFormulas, presets)
}

// TaxRulesDoc is the YAML shape of the tax section of business rules.
type TaxRulesDoc struct {
	DefaultGSTRate  float64 `yaml:"default_gst_rate"`
	CGSTRate        float64 `yaml:"cgst_rate"`
	SGSTRate        float64 `yaml:"sgst_rate"`
	IGSTRate        float64 `yaml:"igst_rate"`
	CutoverDate     string  `yaml:"gst_threshold_date"`
	DefaultSACCode  string  `yaml:"default_sac_code"`
	LUTTextTemplate string  `yaml:"lut_text_template"`
}

// BusinessRules is the loaded business-rules document.
type BusinessRules struct {
	TaxRules        TaxRulesDoc       `yaml:"tax_rules"`
	StateMap        map[string]string `yaml:"state_map"`
	InvoiceDefaults struct {
		PaymentTerms string `yaml:"payment_terms"`
	} `yaml:"invoice_defaults"`
}

// LoadBusinessRules parses the business-rules document.
func LoadBusinessRules(data []byte) (*BusinessRules, error) {
	var rules BusinessRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parsing business rules: %w", err)
	}
	return &rules, nil
}

// Tax converts the document into the classifier's rule set.
func (b *BusinessRules) Tax() (tax.Rules, error) {
	cutover, err := time.Parse("2006-01-02", b.TaxRules.CutoverDate)
	if err != nil {
		return tax.Rules{}, fmt.Errorf("parsing gst_threshold_date %q: %w", b.TaxRules.CutoverDate, err)
	}
	return tax.Rules{
		CutoverDate: cutover,
		CGSTRate:    decimal.NewFromFloat(b.TaxRules.CGSTRate),
		SGSTRate:    decimal.NewFromFloat(b.TaxRules.SGSTRate),
		IGSTRate:    decimal.NewFromFloat(b.TaxRules.IGSTRate),
	}, nil
}
