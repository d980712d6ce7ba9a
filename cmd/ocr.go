package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"comprobantes/internal/config"
	"comprobantes/internal/logger"
	"comprobantes/pkg/models"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [file]",
	Short: "Run OCR on a scanned comprobante (PDF, TIFF, JPEG, PNG)",
	Long: `Process a scanned invoice or receipt with Google Cloud Vision or Document AI
and print the recognised text.

With --json the full result is written, including every word with its page and
position. That file can be fed to "extract" or "import" later without paying
for OCR again.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string

For --engine documentai also:
  GOOGLE_CLOUD_PROJECT, GOOGLE_CLOUD_LOCATION, DOCUMENT_AI_PROCESSOR_ID`,
	Example: `  # Print recognised text
  comprobantes ocr factura.pdf

  # Keep word positions for later extraction
  comprobantes ocr factura.jpg --json -o factura.ocr.json

  # Use Document AI instead of Vision
  comprobantes ocr boleta.png --engine documentai`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

// OCROutput is written with --json.
type OCROutput struct {
	*models.OCRResult
	FileName string `json:"file_name"`
	FileSize int    `json:"file_size"`
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	ocrCmd.Flags().Bool("json", false, "Output the full result as JSON")
	ocrCmd.Flags().String("engine", "", "OCR engine: vision or documentai (default: OCR_ENGINE)")
	ocrCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	engine, _ := cmd.Flags().GetString("engine")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	path := args[0]

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if engine != "" {
		cfg.OCREngine = engine
	}

	log.Info().
		Str("file", path).
		Str("engine", cfg.OCREngine).
		Bool("json", jsonOutput).
		Int("timeout", timeoutSecs).
		Msg("Starting OCR processing")

	data, err := readDocumentFile(path, log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	svc, err := createOCRService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	start := time.Now()
	result, err := svc.ProcessDocument(ctx, data, "")
	if err != nil {
		return handleOCRError(err, log)
	}
	duration := time.Since(start)

	log.Info().
		Int("pages", result.PageCount).
		Int("words", len(result.Words)).
		Dur("duration", duration).
		Msg("OCR processing completed")

	var output []byte
	if jsonOutput {
		output, err = json.MarshalIndent(OCROutput{
			OCRResult: result,
			FileName:  filepath.Base(path),
			FileSize:  len(data),
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
	} else {
		output = []byte(result.Text)
	}

	return writeOutput(outputPath, output, log)
}

// writeOutput writes to outputPath, or stdout when it is empty.
func writeOutput(outputPath string, output []byte, log zerolog.Logger) error {
	if outputPath == "" {
		fmt.Println(string(output))
		return nil
	}
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, output, 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	log.Info().Str("output", outputPath).Msg("Output written")
	fmt.Fprintf(os.Stderr, "Output written to %s\n", outputPath)
	return nil
}
