package invoice

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"

	"comprobantes/internal/logger"
	"comprobantes/pkg/models"
)

// FieldCompleter fills fields the heuristics could not find.
type FieldCompleter interface {
	// Complete returns a copy of fields with missing values filled from text and
	// the names of the fields it filled. Fields already set are never changed.
	Complete(ctx context.Context, fields models.ExtractedInvoiceFields, text string) (models.ExtractedInvoiceFields, []string, error)
}

// CompletionConfig configures the OpenAI completer
type CompletionConfig struct {
	Model       string  // gpt-4o-mini, gpt-4o
	MaxRetries  int     // attempts per document
	Temperature float32 // keep low, the answer is extraction not prose
	BaseURL     string  // optional, for proxies and tests
}

// OpenAICompleter implements FieldCompleter with a chat completion constrained to JSON.
type OpenAICompleter struct {
	client *openai.Client
	config CompletionConfig
	schema *jsonschema.Schema
	log    zerolog.Logger
}

// completionResponse is the JSON object the model must answer with.
type completionResponse struct {
	IssuerTaxID  *string `json:"issuer_tax_id"`
	BusinessName *string `json:"business_name"`
	SeriesNumber *string `json:"series_number"`
	DocumentType *string `json:"document_type"`
	IssueDate    *string `json:"issue_date"`
	Subtotal     *string `json:"subtotal"`
	TaxAmount    *string `json:"tax_amount"`
	TotalAmount  *string `json:"total_amount"`
}

const completionSchema = `{
  "type": "object",
  "properties": {
    "issuer_tax_id": {"type": ["string", "null"], "pattern": "^(10|20)\\d{9}$"},
    "business_name": {"type": ["string", "null"], "minLength": 3},
    "series_number": {"type": ["string", "null"], "pattern": "^[A-Z0-9]{4}-\\d{1,8}$"},
    "document_type": {"enum": ["01", "03", "07", "08", null]},
    "issue_date":    {"type": ["string", "null"], "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
    "subtotal":      {"type": ["string", "null"], "pattern": "^\\d+(\\.\\d{1,2})?$"},
    "tax_amount":    {"type": ["string", "null"], "pattern": "^\\d+(\\.\\d{1,2})?$"},
    "total_amount":  {"type": ["string", "null"], "pattern": "^\\d+(\\.\\d{1,2})?$"},
    "currency":      {"enum": ["PEN", "USD", null]}
  }
}`

// NewOpenAICompleter creates a completer talking to the OpenAI API.
func NewOpenAICompleter(apiKey string, config CompletionConfig) (*OpenAICompleter, error) {
	const op = "NewOpenAICompleter"

	if apiKey == "" {
		return nil, WrapCompletionError(op, fmt.Errorf("OPENAI_API_KEY is required"), "")
	}
	clientConfig := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return NewOpenAICompleterWithClient(openai.NewClientWithConfig(clientConfig), config)
}

// NewOpenAICompleterWithClient creates a completer with an explicit client.
func NewOpenAICompleterWithClient(client *openai.Client, config CompletionConfig) (*OpenAICompleter, error) {
	const op = "NewOpenAICompleterWithClient"

	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("completion.json", strings.NewReader(completionSchema)); err != nil {
		return nil, WrapCompletionError(op, err, "add schema")
	}
	schema, err := compiler.Compile("completion.json")
	if err != nil {
		return nil, WrapCompletionError(op, err, "compile schema")
	}

	return &OpenAICompleter{
		client: client,
		config: config,
		schema: schema,
		log:    logger.WithComponent("field-completion"),
	}, nil
}

// completionTargets lists the unset fields worth asking for.
func completionTargets(fields models.ExtractedInvoiceFields) []string {
	targets := MissingFields(fields)
	if fields.DocumentType == models.DocumentTypeUnknown {
		targets = append(targets, "document_type")
	}
	if fields.BusinessName == "" {
		targets = append(targets, "business_name")
	}
	if !fields.Subtotal.Valid {
		targets = append(targets, "subtotal")
	}
	if !fields.TaxAmount.Valid {
		targets = append(targets, "tax_amount")
	}
	return targets
}

// Complete asks the model for the missing fields only and merges the answers it can parse.
func (s *OpenAICompleter) Complete(ctx context.Context, fields models.ExtractedInvoiceFields, text string) (models.ExtractedInvoiceFields, []string, error) {
	const op = "Complete"

	targets := completionTargets(fields)
	if len(targets) == 0 {
		return fields, nil, nil
	}
	if strings.TrimSpace(text) == "" {
		return fields, nil, WrapCompletionError(op, ErrNoText, "")
	}

	s.log.Info().
		Strs("missing_fields", targets).
		Str("model", s.config.Model).
		Msg("Requesting completion of missing fields")

	response, err := s.requestCompletion(ctx, text, targets, fields)
	if err != nil {
		return fields, nil, err
	}

	completed, filled := s.merge(fields, response, targets)
	s.log.Info().Strs("filled_fields", filled).Msg("Field completion finished")
	return completed, filled, nil
}

func (s *OpenAICompleter) requestCompletion(ctx context.Context, text string, targets []string, partial models.ExtractedInvoiceFields) (*completionResponse, error) {
	const op = "requestCompletion"

	prompt := buildCompletionPrompt(text, targets, partial)

	var lastErr error
	for attempt := 1; attempt <= s.config.MaxRetries; attempt++ {
		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       s.config.Model,
			Temperature: s.config.Temperature,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: completionSystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			MaxTokens: 500,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, &CompletionError{Op: op, Err: ctx.Err(), Model: s.config.Model}
			}
			lastErr = err
			s.log.Warn().Err(err).Int("attempt", attempt).Msg("Completion request failed, retrying")
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("no response choices")
			continue
		}

		content := []byte(resp.Choices[0].Message.Content)
		var raw any
		if err := json.Unmarshal(content, &raw); err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrInvalidCompletion, err)
			s.log.Warn().Err(err).Int("attempt", attempt).Msg("Completion is not JSON, retrying")
			continue
		}
		if err := s.schema.Validate(raw); err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrInvalidCompletion, err)
			s.log.Warn().Err(err).Int("attempt", attempt).Msg("Completion does not match schema, retrying")
			continue
		}

		var response completionResponse
		if err := json.Unmarshal(content, &response); err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrInvalidCompletion, err)
			continue
		}
		return &response, nil
	}

	return nil, &CompletionError{
		Op:      op,
		Err:     fmt.Errorf("%w: %v", ErrCompletionFailed, lastErr),
		Details: fmt.Sprintf("all %d attempts failed", s.config.MaxRetries),
		Model:   s.config.Model,
	}
}

// merge copies answers into fields that are still unset and listed in targets.
func (s *OpenAICompleter) merge(fields models.ExtractedInvoiceFields, r *completionResponse, targets []string) (models.ExtractedInvoiceFields, []string) {
	var filled []string
	wanted := make(map[string]bool, len(targets))
	for _, t := range targets {
		wanted[t] = true
	}
	value := func(name string, p *string) (string, bool) {
		if !wanted[name] || p == nil || strings.TrimSpace(*p) == "" {
			return "", false
		}
		return strings.TrimSpace(*p), true
	}
	amount := func(name string, p *string) (decimal.NullDecimal, bool) {
		v, ok := value(name, p)
		if !ok {
			return decimal.NullDecimal{}, false
		}
		d, err := decimal.NewFromString(v)
		if err != nil || d.IsNegative() {
			s.log.Warn().Str("field", name).Str("value", v).Msg("Ignoring unparsable amount")
			return decimal.NullDecimal{}, false
		}
		return models.Amount(d), true
	}

	if v, ok := value("issuer_tax_id", r.IssuerTaxID); ok && fields.IssuerTaxID == "" {
		fields.IssuerTaxID = v
		filled = append(filled, "issuer_tax_id")
	}
	if v, ok := value("business_name", r.BusinessName); ok && fields.BusinessName == "" {
		fields.BusinessName = v
		filled = append(filled, "business_name")
	}
	if v, ok := value("series_number", r.SeriesNumber); ok && fields.DocumentSeriesNumber == "" {
		fields.DocumentSeriesNumber = v
		filled = append(filled, "series_number")
	}
	if v, ok := value("document_type", r.DocumentType); ok && fields.DocumentType == models.DocumentTypeUnknown {
		if t := documentTypeFromCode(v); t != models.DocumentTypeUnknown {
			fields.DocumentType = t
			filled = append(filled, "document_type")
		}
	}
	if v, ok := value("issue_date", r.IssueDate); ok && !fields.HasIssueDate() {
		if date, err := time.Parse("2006-01-02", v); err == nil {
			fields.IssueDate = models.Date(date.Year(), date.Month(), date.Day())
			filled = append(filled, "issue_date")
		} else {
			s.log.Warn().Err(err).Str("date", v).Msg("Failed to parse issue date")
		}
	}
	if v, ok := amount("subtotal", r.Subtotal); ok && !fields.Subtotal.Valid {
		fields.Subtotal = v
		filled = append(filled, "subtotal")
	}
	if v, ok := amount("tax_amount", r.TaxAmount); ok && !fields.TaxAmount.Valid {
		fields.TaxAmount = v
		filled = append(filled, "tax_amount")
	}
	if v, ok := amount("total_amount", r.TotalAmount); ok && !fields.TotalAmount.Valid {
		fields.TotalAmount = v
		filled = append(filled, "total_amount")
	}
	return fields, filled
}

func documentTypeFromCode(code string) models.DocumentType {
	for _, t := range []models.DocumentType{
		models.DocumentTypeInvoice,
		models.DocumentTypeReceipt,
		models.DocumentTypeCreditNote,
		models.DocumentTypeDebitNote,
	} {
		if t.Code() == code {
			return t
		}
	}
	return models.DocumentTypeUnknown
}

const completionSystemPrompt = `Extraes datos de comprobantes de pago electrónicos peruanos (SUNAT): facturas, boletas, notas de crédito y notas de débito.

Reglas:
- issuer_tax_id es el RUC del EMISOR (11 dígitos, empieza con 10 o 20), nunca el del cliente.
- series_number tiene la forma SERIE-CORRELATIVO, por ejemplo F001-00012345.
- document_type es el código SUNAT: 01 factura, 03 boleta, 07 nota de crédito, 08 nota de débito.
- issue_date es la fecha de EMISIÓN en formato YYYY-MM-DD, nunca la de vencimiento.
- Los montos van como texto con punto decimal y sin separador de miles, por ejemplo "1180.00".
- total_amount es el "IMPORTE TOTAL" o "TOTAL A PAGAR".

Responde SOLO con un objeto JSON. Usa null para lo que no encuentres. No inventes valores.`

func buildCompletionPrompt(text string, targets []string, partial models.ExtractedInvoiceFields) string {
	var prompt strings.Builder

	prompt.WriteString("Datos ya extraídos:\n")
	if partial.IssuerTaxID != "" {
		prompt.WriteString(fmt.Sprintf("RUC emisor: %s\n", partial.IssuerTaxID))
	}
	if partial.DocumentSeriesNumber != "" {
		prompt.WriteString(fmt.Sprintf("Serie-número: %s\n", partial.DocumentSeriesNumber))
	}
	if partial.HasIssueDate() {
		prompt.WriteString(fmt.Sprintf("Fecha de emisión: %s\n", partial.IssueDate.Format("2006-01-02")))
	}
	if partial.TotalAmount.Valid {
		prompt.WriteString(fmt.Sprintf("Importe total: %s\n", partial.TotalAmount.Decimal.StringFixed(2)))
	}

	prompt.WriteString("\nTexto OCR:\n")
	prompt.WriteString(text)

	prompt.WriteString("\n\nDevuelve JSON solo con estos campos: ")
	prompt.WriteString(strings.Join(targets, ", "))
	return prompt.String()
}
