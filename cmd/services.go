package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"comprobantes/internal/authority"
	"comprobantes/internal/config"
	"comprobantes/internal/export"
	"comprobantes/internal/invoice"
	"comprobantes/internal/ocr"
	"comprobantes/internal/sheets"
	"comprobantes/internal/verify"
	"comprobantes/pkg/models"
	"comprobantes/pkg/services"
)

// createContextWithTimeout creates a context with timeout and signal handling
func createContextWithTimeout(timeout time.Duration, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// readDocumentFile checks that path is a readable, non-empty regular file within the OCR size limit.
func readDocumentFile(path string, log zerolog.Logger) ([]byte, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied accessing file: %s", path)
		}
		return nil, fmt.Errorf("error accessing file: %w", err)
	}
	if !fileInfo.Mode().IsRegular() {
		return nil, fmt.Errorf("path is not a regular file: %s", path)
	}
	if fileInfo.Size() == 0 {
		return nil, fmt.Errorf("file is empty: %s", path)
	}
	if fileInfo.Size() > ocr.MaxFileSizeBytes {
		log.Error().
			Str("file", path).
			Int64("size", fileInfo.Size()).
			Int64("max_size", ocr.MaxFileSizeBytes).
			Msg("File exceeds maximum size limit")
		return nil, fmt.Errorf("file too large (%d bytes). Maximum size is %d bytes (20MB)", fileInfo.Size(), ocr.MaxFileSizeBytes)
	}
	return os.ReadFile(path)
}

// isStoredOCR reports whether path holds saved OCR output rather than a scan.
func isStoredOCR(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".txt":
		return true
	}
	return false
}

// createOCRService builds the engine selected by OCR_ENGINE.
func createOCRService(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ocr.OCRService, error) {
	switch cfg.OCREngine {
	case ocr.EngineDocumentAI:
		if err := cfg.RequireDocumentAI(); err != nil {
			return nil, err
		}
		svc, err := ocr.NewDocumentAIOCRService(ctx, ocr.DocumentAIConfig{
			ProjectID:    cfg.GoogleCloudProject,
			Location:     cfg.GoogleCloudLocation,
			ProcessorID:  cfg.DocumentAIProcessorID,
			RowThreshold: cfg.LineThresholdPx,
		})
		if err != nil {
			return nil, explainCredentialError(err)
		}
		log.Debug().Str("engine", ocr.EngineDocumentAI).Msg("OCR service created")
		return svc, nil
	default:
		svc, err := ocr.NewGoogleVisionOCRService(ctx, cfg.LineThresholdPx)
		if err != nil {
			return nil, explainCredentialError(err)
		}
		log.Debug().Str("engine", ocr.EngineVision).Msg("OCR service created")
		return svc, nil
	}
}

func explainCredentialError(err error) error {
	if errors.Is(err, ocr.ErrMissingCredentials) {
		return fmt.Errorf("Google Cloud credentials not configured. Set GOOGLE_APPLICATION_CREDENTIALS "+
			"to a service account JSON file or GOOGLE_CREDENTIALS to inline JSON: %w", err)
	}
	return fmt.Errorf("failed to create OCR service: %w", err)
}

// handleOCRError provides user-facing messages for OCR failures
func handleOCRError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("OCR processing failed")

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ocr.ErrTimeout):
		return fmt.Errorf("OCR processing timed out. Try increasing --timeout or processing a smaller file")
	case errors.Is(err, context.Canceled), errors.Is(err, ocr.ErrContextCanceled):
		return fmt.Errorf("OCR processing was canceled")
	case errors.Is(err, ocr.ErrDocumentTooLarge):
		return fmt.Errorf("file is too large (maximum 20MB). Try compressing or splitting the file")
	case errors.Is(err, ocr.ErrTooManyPages):
		return fmt.Errorf("PDF has too many pages (maximum 5 pages). Try splitting into smaller files")
	case errors.Is(err, ocr.ErrUnsupportedFormat):
		return fmt.Errorf("unsupported or corrupted file: %w", err)
	case errors.Is(err, ocr.ErrEmptyDocument):
		return fmt.Errorf("no readable text found in the document")
	case errors.Is(err, ocr.ErrInvalidCredentials):
		return fmt.Errorf("permission denied. Check that the service account may use the OCR API: %w", err)
	case errors.Is(err, ocr.ErrQuotaExceeded):
		return fmt.Errorf("OCR quota exceeded. Check your project quotas in the Google Cloud Console")
	case errors.Is(err, ocr.ErrProcessorNotFound):
		return fmt.Errorf("Document AI processor not found. Check DOCUMENT_AI_PROCESSOR_ID and GOOGLE_CLOUD_LOCATION")
	default:
		return fmt.Errorf("OCR processing failed: %w", err)
	}
}

// loadOCRResult returns OCR output for path, reading stored results directly and
// running the configured engine on scans.
func loadOCRResult(ctx context.Context, cfg *config.Config, path string, log zerolog.Logger) (*models.OCRResult, error) {
	data, err := readDocumentFile(path, log)
	if err != nil {
		return nil, err
	}
	if isStoredOCR(path) {
		return ocr.ReadStored(data)
	}

	svc, err := createOCRService(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	defer svc.Close()

	result, err := svc.ProcessDocument(ctx, data, "")
	if err != nil {
		return nil, handleOCRError(err, log)
	}
	return result, nil
}

func newExtractor(cfg *config.Config) *invoice.Extractor {
	return invoice.NewExtractor(invoice.ExtractorConfig{
		LineThreshold: cfg.LineThresholdPx,
		Reconciler: invoice.ReconcilerConfig{
			Tolerance:     cfg.AmountTolerance,
			ValidTaxRates: cfg.ValidTaxRates,
			Policy:        invoice.DiscrepancyPolicy(cfg.DiscrepancyPolicy),
		},
	})
}

// newCompleter returns nil when no OpenAI key is configured.
func newCompleter(cfg *config.Config) (invoice.FieldCompleter, error) {
	if !cfg.CompletionEnabled() {
		return nil, nil
	}
	completer, err := invoice.NewOpenAICompleter(cfg.OpenAIAPIKey, invoice.CompletionConfig{
		Model:      cfg.OpenAIModel,
		MaxRetries: cfg.CompletionMaxRetries,
	})
	if err != nil {
		return nil, err
	}
	return completer, nil
}

func newAuthorityClient(cfg *config.Config) (*authority.Client, error) {
	if err := cfg.RequireAuthority(); err != nil {
		return nil, err
	}
	return authority.NewClient(authority.Config{
		TokenURL:      cfg.AuthorityTokenURL,
		ValidateURL:   cfg.AuthorityValidateURL,
		Scope:         cfg.AuthorityScope,
		ClientID:      cfg.AuthorityClientID,
		ClientSecret:  cfg.AuthorityClientSecret,
		QueryingTaxID: cfg.AuthorityQueryingRUC,
		Timeout:       cfg.AuthorityTimeout,
		ExpiryMargin:  cfg.TokenExpiryMargin,
	})
}

func newController(cfg *config.Config) (*verify.Controller, error) {
	client, err := newAuthorityClient(cfg)
	if err != nil {
		return nil, err
	}
	return verify.NewController(client, cfg.MaxAttempts), nil
}

// newRegistry returns nil when no registry endpoint is configured.
func newRegistry(cfg *config.Config) services.CounterpartyLookup {
	if cfg.RegistryURL == "" {
		return nil
	}
	return authority.NewRegistry(authority.RegistryConfig{
		URL:      cfg.RegistryURL,
		Token:    cfg.RegistryToken,
		Timeout:  cfg.AuthorityTimeout,
		CacheTTL: cfg.RegistryCacheTTL,
	}, nil)
}

// newSinks builds every configured reporting sink.
func newSinks(ctx context.Context, cfg *config.Config) ([]services.ReportingSink, error) {
	var sinks []services.ReportingSink
	if cfg.GoogleSheetURL != "" {
		s, err := sheets.NewSheetsService(ctx, cfg.GoogleSheetURL, cfg.GoogleSheetWorksheet)
		if err != nil {
			return nil, fmt.Errorf("failed to create Google Sheets sink: %w", err)
		}
		sinks = append(sinks, s)
	}
	if cfg.XLSXReportPath != "" {
		s, err := export.NewXLSXSink(cfg.XLSXReportPath, cfg.GoogleSheetWorksheet)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}
