package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"comprobantes/internal/api"
	"comprobantes/internal/config"
	"comprobantes/internal/invoice"
	"comprobantes/internal/logger"
)

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Extract the validation fields from a comprobante",
	Long: `Extract RUC, series-number, document type, issue date and amounts from a
comprobante. The input can be a scan (runs OCR first), a JSON file written by
"ocr --json", or plain text with one OCR line per row.

Subtotal, IGV and total are cross-checked; a single missing amount is derived
from the other two. With --complete and OPENAI_API_KEY set, fields the
heuristics missed are requested from the language model.`,
	Example: `  # Extract from a scan
  comprobantes extract factura.pdf

  # Extract from stored OCR output, filling gaps with the LLM
  comprobantes extract factura.ocr.json --complete

  # JSON output for scripting
  comprobantes extract boleta.txt --json`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

// ExtractOutput is written with --json.
type ExtractOutput struct {
	Fields    api.Fields `json:"fields"`
	Missing   []string   `json:"missing,omitempty"`
	Completed []string   `json:"completed,omitempty"`
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	extractCmd.Flags().Bool("json", false, "Output as JSON")
	extractCmd.Flags().Bool("complete", false, "Ask the LLM for fields the heuristics missed")
	extractCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("extract")

	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	complete, _ := cmd.Flags().GetBool("complete")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	result, err := loadOCRResult(ctx, cfg, args[0], log)
	if err != nil {
		return err
	}

	fields := newExtractor(cfg).Extract(*result)
	out := ExtractOutput{Missing: invoice.MissingFields(fields)}

	if complete && len(out.Missing) > 0 {
		completer, err := newCompleter(cfg)
		if err != nil {
			return err
		}
		if completer == nil {
			return fmt.Errorf("--complete requires OPENAI_API_KEY")
		}
		text := result.Text
		if text == "" {
			text = strings.Join(invoice.SegmentLines(result.Words, cfg.LineThresholdPx), "\n")
		}
		fields, out.Completed, err = completer.Complete(ctx, fields, text)
		if err != nil {
			log.Warn().Err(err).Msg("Field completion failed, keeping extracted fields")
		}
		out.Missing = invoice.MissingFields(fields)
	}
	out.Fields = api.NewFields(fields)

	log.Info().
		Str("series_number", fields.DocumentSeriesNumber).
		Strs("missing", out.Missing).
		Strs("completed", out.Completed).
		Msg("Extraction finished")

	var output []byte
	if jsonOutput {
		output, err = json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode fields: %w", err)
		}
	} else {
		output = []byte(formatExtraction(out))
	}
	return writeOutput(outputPath, output, log)
}

func formatExtraction(out ExtractOutput) string {
	f := out.Fields
	var b strings.Builder
	row := func(label, value string) {
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(&b, "%-22s %s\n", label+":", value)
	}
	amount := func(d *decimal.Decimal) string {
		if d == nil {
			return ""
		}
		return d.StringFixed(2)
	}

	row("RUC emisor", f.IssuerTaxID)
	row("Razón social", f.BusinessName)
	row("Dirección", f.BusinessAddress)
	row("Serie-número", f.SeriesNumber)
	row("Tipo", strings.TrimSpace(f.DocumentTypeCode+" "+f.DocumentType))
	row("Fecha de emisión", f.IssueDate)
	row("Subtotal", amount(f.Subtotal))
	row("IGV", amount(f.TaxAmount))
	row("Tasa IGV %", amount(f.TaxRatePercent))
	row("Total", amount(f.TotalAmount))
	row("Moneda", f.Currency)
	row("RUC receptor", f.CounterpartyTaxID)
	row("DNI receptor", f.CounterpartyNationalID)
	if f.AmountsAdvisory {
		b.WriteString("Aviso: subtotal e IGV no cuadran con el total\n")
	}
	if len(out.Completed) > 0 {
		fmt.Fprintf(&b, "Completados por LLM: %s\n", strings.Join(out.Completed, ", "))
	}
	if len(out.Missing) > 0 {
		fmt.Fprintf(&b, "Faltan: %s\n", strings.Join(out.Missing, ", "))
	}
	return b.String()
}
