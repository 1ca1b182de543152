// invoicectl - composable invoice computation engine
//
// Usage:
//   invoicectl compute --invoice 2025-06-acme.yaml [options]
//   invoicectl number file1.yaml file2.yaml ...
//   invoicectl classify --date 2025-06-30 --relationship domestic-same-jurisdiction --subtotal 5500
//   invoicectl registry show
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/the-solipsist/invoice-system/db/registry"
	"github.com/the-solipsist/invoice-system/decision/invoice"
	"github.com/the-solipsist/invoice-system/decision/tax"
	"github.com/the-solipsist/invoice-system/internal/config"
	"github.com/the-solipsist/invoice-system/pkg/money"
	"github.com/the-solipsist/invoice-system/pkg/platform"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "invoicectl",
		Usage:   "Composable invoice computation engine",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"INVOICECTL_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "billing-config",
				Value:   "billing.yaml",
				Usage:   "Pricing formulas and invoice presets",
				EnvVars: []string{"INVOICECTL_BILLING_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "business-rules",
				Value:   "business.yaml",
				Usage:   "Tax rules and invoice defaults",
				EnvVars: []string{"INVOICECTL_BUSINESS_RULES"},
			},
			&cli.StringFlag{
				Name:    "registry",
				Value:   "registry.json",
				Usage:   "Invoice registry file",
				EnvVars: []string{"INVOICECTL_REGISTRY"},
			},
			&cli.StringFlag{
				Name:    "registry-dsn",
				Usage:   "Postgres DSN for the registry (overrides --registry)",
				EnvVars: []string{"INVOICECTL_REGISTRY_DSN"},
			},
		},

		Commands: []*cli.Command{
			computeCommand(),
			numberCommand(),
			classifyCommand(),
			registryCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// COMPUTE COMMAND
// =============================================================================

func computeCommand() *cli.Command {
	return &cli.Command{
		Name:      "compute",
		Usage:     "Compute billing lines, taxes and identities for invoice documents",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "relationship",
				Aliases: []string{"r"},
				Value:   string(tax.RelationshipIntraState),
				Usage:   "Jurisdiction relationship (domestic-same-jurisdiction, domestic-other-jurisdiction, export)",
			},
			&cli.StringFlag{
				Name:  "lut-number",
				Usage: "Letter-of-undertaking number for export invoices",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "table",
				Usage:   "Output format (table, json)",
			},
			&cli.BoolFlag{
				Name:  "record",
				Usage: "Record computed invoices in the registry",
			},
		},
		Action: runCompute,
	}
}

func runCompute(c *cli.Context) error {
	logger := platform.InitLogger(c.String("log-level"))
	if c.NArg() == 0 {
		return fmt.Errorf("no invoice documents given")
	}

	proc, err := buildProcessor(c)
	if err != nil {
		return err
	}

	relationship := tax.Relationship(c.String("relationship"))
	inputs := make([]invoice.Input, 0, c.NArg())
	for _, path := range c.Args().Slice() {
		in, err := loadInput(path, relationship, c.String("lut-number"))
		if err != nil {
			return err
		}
		inputs = append(inputs, *in)
	}

	outcomes := proc.ProcessBatch(inputs)

	if c.Bool("record") {
		if err := recordOutcomes(c, outcomes); err != nil {
			return err
		}
	}

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			logger.Error("invoice failed", "source_key", o.SourceKey, "error", o.Err)
		}
	}

	switch c.String("format") {
	case "json":
		err = outputJSON(outcomes)
	default:
		err = outputTable(outcomes)
	}
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d invoices failed", failed, len(outcomes))
	}
	return nil
}

func buildProcessor(c *cli.Context) (*invoice.Processor, error) {
	logger := platform.InitLogger(c.String("log-level"))

	billingData, err := os.ReadFile(c.String("billing-config"))
	if err != nil {
		return nil, fmt.Errorf("reading billing config: %w", err)
	}
	reg, err := config.LoadBillingConfig(billingData)
	if err != nil {
		return nil, err
	}

	rulesData, err := os.ReadFile(c.String("business-rules"))
	if err != nil {
		return nil, fmt.Errorf("reading business rules: %w", err)
	}
	rules, err := config.LoadBusinessRules(rulesData)
	if err != nil {
		return nil, err
	}
	taxRules, err := rules.Tax()
	if err != nil {
		return nil, err
	}

	return invoice.NewProcessor(reg, taxRules, rules.TaxRules.LUTTextTemplate, logger), nil
}

// loadInput reads one invoice document and assembles the processor input.
// The file's base name is its source key within the batch.
func loadInput(path string, relationship tax.Relationship, lutNumber string) (*invoice.Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading invoice document: %w", err)
	}
	doc, err := config.ParseInvoice(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	items, err := doc.Items()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	contractSeries := true
	if doc.ContractSeries != nil {
		contractSeries = *doc.ContractSeries
	}
	workSequence := doc.WorkSequenceNumber
	if workSequence == "" {
		workSequence = "01"
	}
	// "00" only marks the invoice standalone; it is not a manual
	// sequence in its own right.
	manualSequence := doc.InvoiceSequenceNumber
	if manualSequence == "00" {
		manualSequence = ""
	}

	return &invoice.Input{
		SourceKey:      filepath.Base(path),
		Date:           doc.InvoiceDate(),
		PresetID:       doc.BillingPreset,
		Items:          items,
		Params:         doc.Params,
		ClientPrefix:   doc.ClientID,
		WorkSequence:   workSequence,
		ContractSeries: contractSeries,
		ManualSequence: manualSequence,
		FaceOverride:   doc.InvoiceNumber,
		Relationship:   relationship,
		LUTNumber:      lutNumber,
	}, nil
}

func recordOutcomes(c *cli.Context, outcomes []invoice.Outcome) error {
	store, err := openRegistry(c)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now()
	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		content, err := json.Marshal(o.Financials)
		if err != nil {
			return err
		}
		entry := registry.NewEntry(
			o.Financials.Identity.CanonicalID,
			o.Financials.Identity.FaceNumber,
			o.SourceKey,
			o.Financials.FinalTotal,
			content,
			now,
		)
		if err := store.Put(ctx, entry); err != nil {
			return fmt.Errorf("recording %s: %w", o.SourceKey, err)
		}
	}
	return nil
}

// =============================================================================
// NUMBER COMMAND
// =============================================================================

func numberCommand() *cli.Command {
	return &cli.Command{
		Name:      "number",
		Usage:     "Assign invoice identities without computing amounts",
		ArgsUsage: "FILE...",
		Action:    runNumber,
	}
}

func runNumber(c *cli.Context) error {
	platform.InitLogger(c.String("log-level"))
	if c.NArg() == 0 {
		return fmt.Errorf("no invoice documents given")
	}

	proc, err := buildProcessor(c)
	if err != nil {
		return err
	}

	inputs := make([]invoice.Input, 0, c.NArg())
	for _, path := range c.Args().Slice() {
		in, err := loadInput(path, tax.RelationshipIntraState, "")
		if err != nil {
			return err
		}
		// Amounts are irrelevant for numbering.
		in.Items = nil
		inputs = append(inputs, *in)
	}

	identities, failures := proc.AssignIdentities(inputs)
	for _, in := range inputs {
		if err := failures[in.SourceKey]; err != nil {
			fmt.Printf("%-40s FAILED: %v\n", in.SourceKey, err)
			continue
		}
		id := identities[in.SourceKey]
		fmt.Printf("%-40s %-20s %s\n", in.SourceKey, id.FaceNumber, id.CanonicalID)
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d of %d invoices could not be numbered", len(failures), len(inputs))
	}
	return nil
}

// =============================================================================
// CLASSIFY COMMAND
// =============================================================================

func classifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "classify",
		Usage: "Classify a subtotal into its tax breakdown",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "date",
				Usage:    "Invoice date (YYYY-MM-DD)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "relationship",
				Aliases:  []string{"r"},
				Usage:    "Jurisdiction relationship",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "subtotal",
				Usage:    "Taxable subtotal",
				Required: true,
			},
		},
		Action: runClassify,
	}
}

func runClassify(c *cli.Context) error {
	platform.InitLogger(c.String("log-level"))

	invoiceDate, err := time.Parse("2006-01-02", c.String("date"))
	if err != nil {
		return fmt.Errorf("parsing date: %w", err)
	}
	subtotal, err := money.Parse(c.String("subtotal"))
	if err != nil {
		return fmt.Errorf("parsing subtotal: %w", err)
	}

	rulesData, err := os.ReadFile(c.String("business-rules"))
	if err != nil {
		return fmt.Errorf("reading business rules: %w", err)
	}
	rules, err := config.LoadBusinessRules(rulesData)
	if err != nil {
		return err
	}
	taxRules, err := rules.Tax()
	if err != nil {
		return err
	}

	breakdown, err := tax.Classify(invoiceDate, tax.Relationship(c.String("relationship")), subtotal, taxRules)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(breakdown)
}

// =============================================================================
// REGISTRY COMMAND
// =============================================================================

func registryCommand() *cli.Command {
	return &cli.Command{
		Name:  "registry",
		Usage: "Inspect and update the invoice registry",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "List recorded invoices",
				Action: runRegistryShow,
			},
			{
				Name:      "set-status",
				Usage:     "Update the payment status of a recorded invoice",
				ArgsUsage: "CANONICAL-ID STATUS",
				Action:    runRegistrySetStatus,
			},
		},
	}
}

func openRegistry(c *cli.Context) (registry.Store, error) {
	if dsn := c.String("registry-dsn"); dsn != "" {
		return registry.NewPostgresStore(context.Background(), dsn)
	}
	return registry.NewFileStore(c.String("registry"))
}

func runRegistryShow(c *cli.Context) error {
	platform.InitLogger(c.String("log-level"))
	store, err := openRegistry(c)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("%-22s %-22s %-12s %12s  %s\n", "CANONICAL", "FACE", "STATUS", "TOTAL", "SOURCE")
	for _, e := range entries {
		fmt.Printf("%-22s %-22s %-12s %12s  %s\n",
			e.CanonicalID, e.FaceNumber, e.Status,
			money.FormatCurrency(e.Total), e.SourceKey)
	}
	return nil
}

func runRegistrySetStatus(c *cli.Context) error {
	platform.InitLogger(c.String("log-level"))
	if c.NArg() != 2 {
		return fmt.Errorf("usage: registry set-status CANONICAL-ID STATUS")
	}
	store, err := openRegistry(c)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.SetStatus(context.Background(), c.Args().Get(0), registry.PaymentStatus(c.Args().Get(1)))
}

// =============================================================================
// OUTPUT FORMATTERS
// =============================================================================

func outputJSON(outcomes []invoice.Outcome) error {
	type failedOutput struct {
		SourceKey string `json:"source_key"`
		Error     string `json:"error"`
	}
	type output struct {
		Invoices []*invoice.Financials `json:"invoices"`
		Failed   []failedOutput        `json:"failed,omitempty"`
	}
	out := output{Invoices: make([]*invoice.Financials, 0, len(outcomes))}
	for _, o := range outcomes {
		if o.Err != nil {
			out.Failed = append(out.Failed, failedOutput{SourceKey: o.SourceKey, Error: o.Err.Error()})
			continue
		}
		out.Invoices = append(out.Invoices, o.Financials)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func outputTable(outcomes []invoice.Outcome) error {
	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Printf("%s: FAILED: %v\n\n", o.SourceKey, o.Err)
			continue
		}
		fin := o.Financials
		fmt.Printf("%s  (%s)\n", fin.Identity.FaceNumber, o.SourceKey)
		for _, row := range fin.BillingLines {
			fmt.Printf("  %-50s %12s\n", row.Label, money.FormatCurrency(row.Amount))
			if row.Details != "" {
				fmt.Printf("    %s\n", row.Details)
			}
		}
		if fin.ShowSubtotal {
			fmt.Printf("  %-50s %12s\n", "Sub-total", money.FormatCurrency(fin.Subtotal))
		}
		for _, line := range fin.TaxLines {
			label := fmt.Sprintf("%s @ %s%%", line.Label, line.Rate.Mul(decimal.NewFromInt(100)))
			fmt.Printf("  %-50s %12s\n", label, money.FormatCurrency(line.Amount))
		}
		fmt.Printf("  %-50s %12s\n", "Total", money.FormatCurrency(fin.FinalTotal))
		if fin.LUTText != "" {
			fmt.Printf("  %s\n", fin.LUTText)
		}
		fmt.Println()
	}
	return nil
}
