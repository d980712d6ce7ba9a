package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"comprobantes/internal/logger"
)

// Default authority endpoints. {client_id} and {ruc} are substituted by the authority client.
const (
	DefaultTokenURL    = "https://api-seguridad.sunat.gob.pe/v1/clientesextranet/{client_id}/oauth2/token/"
	DefaultValidateURL = "https://api.sunat.gob.pe/v1/contribuyente/contribuyentes/{ruc}/validarcomprobante"
	DefaultScope       = "https://api.sunat.gob.pe/v1/contribuyente/contribuyentes"
)

type Config struct {
	// Authority (client identity and secret arrive already decrypted)
	AuthorityClientID     string
	AuthorityClientSecret string
	AuthorityQueryingRUC  string
	AuthorityTokenURL     string
	AuthorityValidateURL  string
	AuthorityScope        string
	AuthorityTimeout      time.Duration
	TokenExpiryMargin     time.Duration

	// Taxpayer registry used to enrich reports
	RegistryURL      string
	RegistryToken    string
	RegistryCacheTTL time.Duration

	// Retry controller
	MaxAttempts int

	// Extraction
	LineThresholdPx   float64
	AmountTolerance   decimal.Decimal
	ValidTaxRates     []int64
	DiscrepancyPolicy string

	// Batch
	DocumentPause time.Duration
	BatchLimit    int
	DatabasePath  string

	// Reporting
	GoogleSheetURL       string
	GoogleSheetWorksheet string
	XLSXReportPath       string

	// OCR
	OCREngine             string // vision or documentai
	GoogleCloudProject    string
	GoogleCloudLocation   string
	DocumentAIProcessorID string

	// Optional LLM completion of fields the heuristics missed
	OpenAIAPIKey         string
	OpenAIModel          string
	CompletionMaxRetries int

	// HTTP API
	HTTPAddr string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	var errs []string
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	config := &Config{
		AuthorityClientID:     getEnv("AUTHORITY_CLIENT_ID", ""),
		AuthorityClientSecret: getEnv("AUTHORITY_CLIENT_SECRET", ""),
		AuthorityQueryingRUC:  getEnv("AUTHORITY_QUERYING_RUC", ""),
		AuthorityTokenURL:     getEnv("AUTHORITY_TOKEN_URL", DefaultTokenURL),
		AuthorityValidateURL:  getEnv("AUTHORITY_VALIDATE_URL", DefaultValidateURL),
		AuthorityScope:        getEnv("AUTHORITY_SCOPE", DefaultScope),
		RegistryURL:           getEnv("REGISTRY_URL", ""),
		RegistryToken:         getEnv("REGISTRY_TOKEN", ""),
		DiscrepancyPolicy:     strings.ToLower(getEnv("DISCREPANCY_POLICY", "keep")),
		DatabasePath:          getEnv("DATABASE_PATH", "comprobantes.db"),
		GoogleSheetURL:        getEnv("GOOGLE_SHEET_URL", ""),
		GoogleSheetWorksheet:  getEnv("GOOGLE_SHEET_WORKSHEET", "Validaciones"),
		XLSXReportPath:        getEnv("XLSX_REPORT_PATH", ""),
		OCREngine:             strings.ToLower(getEnv("OCR_ENGINE", "vision")),
		GoogleCloudProject:    getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:   getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAIProcessorID: getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:         getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:             getEnv("LOG_OUTPUT", "stderr"),
	}

	var err error
	config.AuthorityTimeout, err = getEnvDuration("AUTHORITY_TIMEOUT", 30*time.Second)
	collect(err)
	config.TokenExpiryMargin, err = getEnvDuration("TOKEN_EXPIRY_MARGIN", 5*time.Minute)
	collect(err)
	config.RegistryCacheTTL, err = getEnvDuration("REGISTRY_CACHE_TTL", 24*time.Hour)
	collect(err)
	config.DocumentPause, err = getEnvDuration("DOCUMENT_PAUSE", time.Second)
	collect(err)
	config.MaxAttempts, err = getEnvInt("MAX_ATTEMPTS", 3)
	collect(err)
	config.BatchLimit, err = getEnvInt("BATCH_LIMIT", 0)
	collect(err)
	config.CompletionMaxRetries, err = getEnvInt("COMPLETION_MAX_RETRIES", 2)
	collect(err)
	config.LineThresholdPx, err = getEnvFloat("LINE_THRESHOLD_PX", 5)
	collect(err)
	config.AmountTolerance, err = getEnvDecimal("AMOUNT_TOLERANCE", decimal.NewFromInt(1))
	collect(err)
	config.ValidTaxRates, err = getEnvIntList("VALID_TAX_RATES", []int64{10, 18})
	collect(err)

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("MAX_ATTEMPTS must be at least 1")
	}
	if c.DiscrepancyPolicy != "keep" && c.DiscrepancyPolicy != "clear" {
		return fmt.Errorf("DISCREPANCY_POLICY must be keep or clear, got %q", c.DiscrepancyPolicy)
	}
	if c.OCREngine != "vision" && c.OCREngine != "documentai" {
		return fmt.Errorf("OCR_ENGINE must be vision or documentai, got %q", c.OCREngine)
	}
	if c.AuthorityTimeout <= 0 {
		return fmt.Errorf("AUTHORITY_TIMEOUT must be positive")
	}
	if c.AmountTolerance.IsNegative() {
		return fmt.Errorf("AMOUNT_TOLERANCE must not be negative")
	}
	return nil
}

// RequireAuthority checks the settings needed to talk to the tax authority.
func (c *Config) RequireAuthority() error {
	if c.AuthorityClientID == "" {
		return fmt.Errorf("AUTHORITY_CLIENT_ID is required")
	}
	if c.AuthorityClientSecret == "" {
		return fmt.Errorf("AUTHORITY_CLIENT_SECRET is required")
	}
	if c.AuthorityQueryingRUC == "" {
		return fmt.Errorf("AUTHORITY_QUERYING_RUC is required")
	}
	return nil
}

// RequireDocumentAI checks the settings needed by the Document AI OCR engine.
func (c *Config) RequireDocumentAI() error {
	if c.GoogleCloudProject == "" {
		return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required")
	}
	if c.DocumentAIProcessorID == "" {
		return fmt.Errorf("DOCUMENT_AI_PROCESSOR_ID is required")
	}
	return nil
}

// CompletionEnabled reports whether LLM field completion is configured.
func (c *Config) CompletionEnabled() bool {
	return c.OpenAIAPIKey != ""
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, value)
	}
	return parsed, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", key, value)
	}
	return parsed, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, value)
	}
	return parsed, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid decimal %q", key, value)
	}
	return parsed, nil
}

func getEnvIntList(key string, defaultValue []int64) ([]int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	var out []int64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid integer %q", key, part)
		}
		out = append(out, n)
	}
	return out, nil
}
