package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"comprobantes/internal/api"
	"comprobantes/internal/authority"
	"comprobantes/internal/config"
	"comprobantes/internal/logger"
	"comprobantes/internal/verify"
	"comprobantes/pkg/models"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a comprobante against SUNAT",
	Long: `Check a comprobante against SUNAT's validation service.

The fields come either from a file (scan, "ocr --json" output or plain text,
extracted the same way as "extract") or from flags. Flags override what was
extracted from the file.

When SUNAT does not recognise the exact values the query is retried with small
corrections, in this order: total ±0.01 and ±0.02, issue date ±1 day, day and
month swapped. --max-attempts bounds how many of these are sent.

Required environment variables:
  AUTHORITY_CLIENT_ID, AUTHORITY_CLIENT_SECRET, AUTHORITY_QUERYING_RUC`,
	Example: `  # Validate from flags
  comprobantes validate --ruc 20123456789 --type invoice \
    --series-number F001-00012345 --date 2024-03-15 --total 118.00

  # Extract from a scan and validate
  comprobantes validate factura.pdf

  # Fix an OCR misread of the total
  comprobantes validate factura.ocr.json --total 1180.00 --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

// ValidateOutput is written with --json.
type ValidateOutput struct {
	Fields       api.Fields               `json:"fields"`
	Outcome      models.ValidationOutcome `json:"outcome"`
	AttemptsUsed int                      `json:"attempts_used"`
	Perturbation string                   `json:"perturbation,omitempty"`
	Attempts     []models.RetryAttempt    `json:"attempts,omitempty"`
	Result       verify.Interpretation    `json:"result"`
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().String("ruc", "", "Issuer RUC (11 digits)")
	validateCmd.Flags().String("type", "", "Document type: invoice, receipt, credit-note, debit-note")
	validateCmd.Flags().String("series-number", "", "Series and number, e.g. F001-00012345")
	validateCmd.Flags().String("date", "", "Issue date, YYYY-MM-DD")
	validateCmd.Flags().String("total", "", "Total amount, e.g. 118.00")
	validateCmd.Flags().Int("max-attempts", 0, "Maximum queries per document (default: MAX_ATTEMPTS)")
	validateCmd.Flags().Bool("json", false, "Output as JSON")
	validateCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runValidate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("validate")

	jsonOutput, _ := cmd.Flags().GetBool("json")
	maxAttempts, _ := cmd.Flags().GetInt("max-attempts")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	controller, err := newController(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	var fields models.ExtractedInvoiceFields
	if len(args) == 1 {
		result, err := loadOCRResult(ctx, cfg, args[0], log)
		if err != nil {
			return err
		}
		fields = newExtractor(cfg).Extract(*result)
	}
	if err := applyFieldFlags(cmd, &fields); err != nil {
		return err
	}

	retry, err := controller.ValidateWithRetries(ctx, fields, maxAttempts)
	if err != nil {
		var missing *verify.MissingFieldsError
		switch {
		case errors.As(err, &missing):
			return fmt.Errorf("cannot validate, missing fields: %s", strings.Join(missing.Fields, ", "))
		case authority.IsFatal(err):
			return fmt.Errorf("SUNAT rejected the API credentials. Check AUTHORITY_CLIENT_ID and AUTHORITY_CLIENT_SECRET: %w", err)
		default:
			return fmt.Errorf("validation failed: %w", err)
		}
	}

	interpretation := verify.InterpretOutcome(retry.Outcome)
	log.Info().
		Str("series_number", fields.DocumentSeriesNumber).
		Str("status", string(retry.Outcome.Status)).
		Int("attempts", retry.AttemptsUsed).
		Str("perturbation", retry.Perturbation).
		Msg("Validation finished")

	if jsonOutput {
		output, err := json.MarshalIndent(ValidateOutput{
			Fields:       api.NewFields(fields),
			Outcome:      retry.Outcome,
			AttemptsUsed: retry.AttemptsUsed,
			Perturbation: retry.Perturbation,
			Attempts:     retry.Attempts,
			Result:       interpretation,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	fmt.Println(interpretation.DisplayMessage)
	if retry.Perturbation != "" {
		fmt.Printf("Validado con corrección: %s (%d consultas)\n", retry.Perturbation, retry.AttemptsUsed)
	}
	return nil
}

// applyFieldFlags overrides extracted fields with the values given on the command line.
func applyFieldFlags(cmd *cobra.Command, fields *models.ExtractedInvoiceFields) error {
	if v, _ := cmd.Flags().GetString("ruc"); v != "" {
		fields.IssuerTaxID = v
	}
	if v, _ := cmd.Flags().GetString("type"); v != "" {
		t := models.DocumentType(strings.ToLower(v))
		if t.Code() == "" {
			return fmt.Errorf("--type must be invoice, receipt, credit-note or debit-note, got %q", v)
		}
		fields.DocumentType = t
	}
	if v, _ := cmd.Flags().GetString("series-number"); v != "" {
		fields.DocumentSeriesNumber = strings.ToUpper(v)
	}
	if v, _ := cmd.Flags().GetString("date"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return fmt.Errorf("--date must be YYYY-MM-DD, got %q", v)
		}
		fields.IssueDate = d
	}
	if v, _ := cmd.Flags().GetString("total"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil || d.IsNegative() {
			return fmt.Errorf("--total must be a non-negative amount, got %q", v)
		}
		fields.TotalAmount = models.Amount(d)
	}
	return nil
}
