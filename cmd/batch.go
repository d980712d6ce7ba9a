package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"comprobantes/internal/batch"
	"comprobantes/internal/config"
	"comprobantes/internal/logger"
	"comprobantes/internal/store"
	"comprobantes/pkg/services"
)

var batchCmd = &cobra.Command{
	Use:   "batch [folder-path]",
	Short: "Validate every pending comprobante and write the results to the reports",
	Long: `Process the pending documents in the local database one after another:
OCR when needed, field extraction, validation with bounded retries and optional
RUC enrichment. Every result is stored and appended to the configured reports.

When a folder is given its files are imported first (see "import").

Documents whose previous run ended in an error are retried. A rejected API
credential stops the run; the document being processed stays pending.

Required environment variables:
  AUTHORITY_CLIENT_ID, AUTHORITY_CLIENT_SECRET, AUTHORITY_QUERYING_RUC

Optional environment variables:
  GOOGLE_SHEET_URL     - Append results to this Google Sheet
  XLSX_REPORT_PATH     - Append results to this Excel workbook
  REGISTRY_URL         - Taxpayer registry used to look up issuer names
  OPENAI_API_KEY       - Complete missing fields with the LLM
  DOCUMENT_PAUSE       - Minimum gap between documents (default: 1s)`,
	Example: `  # Import a folder and validate it
  comprobantes batch ./escaneos

  # Process at most 50 pending documents, without writing reports
  comprobantes batch --limit 50 --dry-run

  # Faster pacing against a test endpoint
  comprobantes batch --pause 200ms`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().String("db", "", "Database path (default: DATABASE_PATH)")
	batchCmd.Flags().Int("limit", -1, "Maximum documents to process (default: BATCH_LIMIT)")
	batchCmd.Flags().Duration("pause", -1, "Minimum gap between documents (default: DOCUMENT_PAUSE)")
	batchCmd.Flags().Int("max-attempts", 0, "Maximum queries per document (default: MAX_ATTEMPTS)")
	batchCmd.Flags().Bool("dry-run", false, "Store results but do not write reports")
	batchCmd.Flags().Bool("no-ocr", false, "Do not run OCR; documents without OCR output are recorded as errors")
}

func runBatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("batch")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyBatchFlags(cmd, cfg)
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	noOCR, _ := cmd.Flags().GetBool("no-ocr")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("                      VALIDACIÓN DE COMPROBANTES")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Base de datos: %s\n", cfg.DatabasePath)

	if len(args) == 1 {
		files, err := collectImportFiles(args)
		if err != nil {
			return err
		}
		var imported int
		for _, path := range files {
			if err := importFile(ctx, st, path, log); err != nil {
				log.Warn().Err(err).Str("file", path).Msg("Skipping file")
				continue
			}
			imported++
		}
		fmt.Printf("Importados: %d de %d archivos de %s\n", imported, len(files), args[0])
	}

	deps := batch.Dependencies{
		Store:          st,
		Extractor:      newExtractor(cfg),
		Counterparties: newRegistry(cfg),
	}
	if deps.Validator, err = newController(cfg); err != nil {
		return err
	}
	if deps.Completer, err = newCompleter(cfg); err != nil {
		return err
	}
	if !noOCR {
		svc, err := createOCRService(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer svc.Close()
		deps.OCR = svc
	}
	if dryRun {
		fmt.Println("Modo: Dry Run (sin escribir reportes)")
	} else {
		if deps.Sinks, err = newSinks(ctx, cfg); err != nil {
			return err
		}
		printSinks(cfg, deps.Sinks)
	}
	fmt.Println()

	orchestrator, err := batch.NewOrchestrator(deps, batch.Config{
		Pause:       cfg.DocumentPause,
		Limit:       cfg.BatchLimit,
		MaxAttempts: cfg.MaxAttempts,
	})
	if err != nil {
		return err
	}

	summary, runErr := orchestrator.Run(ctx)
	if summary != nil {
		printSummary(summary)
	}
	if runErr != nil {
		var abort *batch.AbortError
		if errors.As(runErr, &abort) {
			log.Error().Err(runErr).Str("document_id", abort.DocumentID).Msg("Batch aborted")
			if errors.Is(runErr, context.Canceled) {
				return fmt.Errorf("batch interrupted; pending documents will be picked up by the next run")
			}
		}
		return runErr
	}

	if counts, err := st.CountByStatus(ctx); err == nil {
		log.Debug().Interface("status_counts", counts).Msg("Database totals")
	}
	return nil
}

func applyBatchFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.DatabasePath = v
	}
	if v, _ := cmd.Flags().GetInt("limit"); v >= 0 {
		cfg.BatchLimit = v
	}
	if v, _ := cmd.Flags().GetDuration("pause"); v >= 0 {
		cfg.DocumentPause = v
	}
	if v, _ := cmd.Flags().GetInt("max-attempts"); v > 0 {
		cfg.MaxAttempts = v
	}
}

func printSinks(cfg *config.Config, sinks []services.ReportingSink) {
	if len(sinks) == 0 {
		fmt.Println("Reportes: ninguno configurado")
		return
	}
	if cfg.GoogleSheetURL != "" {
		fmt.Printf("Google Sheet: %s (hoja %s)\n", cfg.GoogleSheetURL, cfg.GoogleSheetWorksheet)
	}
	if cfg.XLSXReportPath != "" {
		fmt.Printf("Excel: %s\n", cfg.XLSXReportPath)
	}
}

func printSummary(s *batch.Summary) {
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("                 RESULTADO")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Ejecución:      %s\n", s.RunID)
	fmt.Printf("Procesados:     %d de %d\n", s.Processed, s.Total)
	fmt.Printf("Válidos:        %d\n", s.Valid)
	fmt.Printf("No encontrados: %d\n", s.NotFound)
	if s.Annulled > 0 {
		fmt.Printf("Anulados:       %d\n", s.Annulled)
	}
	if s.Rejected > 0 {
		fmt.Printf("Rechazados:     %d\n", s.Rejected)
	}
	if s.Skipped > 0 {
		fmt.Printf("Incompletos:    %d\n", s.Skipped)
	}
	if s.Errors > 0 {
		fmt.Printf("Errores:        %d\n", s.Errors)
	}
	if s.Aborted {
		fmt.Println("Estado:         DETENIDO")
	}
	fmt.Printf("Duración:       %s\n", s.Duration.Round(time.Millisecond))
	fmt.Println(strings.Repeat("=", 80))
}
