package ocr

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"comprobantes/internal/logger"
	"comprobantes/pkg/models"
)

// DocumentAIConfig selects the Document OCR processor.
type DocumentAIConfig struct {
	ProjectID   string
	Location    string // "us" or "eu"; other values select a regional endpoint
	ProcessorID string
	Timeout     time.Duration

	// RowThreshold groups tokens into rows, in pixels. Default: DefaultRowThreshold.
	RowThreshold float64
}

// DocumentAIOCRService implements OCRService with a Document AI OCR processor.
// Only the page tokens are used; entity extraction is left to internal/invoice.
type DocumentAIOCRService struct {
	client *documentai.DocumentProcessorClient
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAIOCRService creates a Document AI client for config.Location
// with credentials from the environment.
func NewDocumentAIOCRService(ctx context.Context, config DocumentAIConfig) (*DocumentAIOCRService, error) {
	const op = "NewDocumentAIOCRService"

	if config.ProjectID == "" || config.ProcessorID == "" {
		return nil, WrapOCRError(op, ErrProcessorNotFound, "project id and processor id are required")
	}
	if config.Location == "" {
		config.Location = "us"
	}

	var opts []option.ClientOption
	if config.Location != "us" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)))
	}
	credOpts := clientOptions()
	opts = append(opts, credOpts...)

	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		if len(credOpts) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, err.Error())
		}
		return nil, WrapOCRError(op, err, fmt.Sprintf("failed to create Document AI client for location: %s", config.Location))
	}

	return NewDocumentAIOCRServiceWithClient(config, client), nil
}

// NewDocumentAIOCRServiceWithClient creates the service around an existing client.
func NewDocumentAIOCRServiceWithClient(config DocumentAIConfig, client *documentai.DocumentProcessorClient) *DocumentAIOCRService {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &DocumentAIOCRService{
		client: client,
		config: config,
		log:    logger.WithComponent("ocr_documentai"),
	}
}

func (p *DocumentAIOCRService) processorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", p.config.ProjectID, p.config.Location, p.config.ProcessorID)
}

// ProcessDocument runs the processor on raw content and converts page tokens to words.
func (p *DocumentAIOCRService) ProcessDocument(ctx context.Context, data []byte, mimeType string) (*models.OCRResult, error) {
	const op = "ProcessDocument"
	startTime := time.Now()

	mimeType, err := checkInput(op, data, mimeType)
	if err != nil {
		return nil, err
	}

	processCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	resp, err := p.client.ProcessDocument(processCtx, &documentaipb.ProcessRequest{
		Name: p.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: data, MimeType: mimeType},
		},
	})
	if err != nil {
		p.log.Error().Err(err).Str("processor", p.processorName()).Msg("Document AI processing failed")
		return nil, classifyEngineError(op, err)
	}
	if resp.Document == nil {
		return nil, WrapOCRError(op, ErrEmptyDocument, "no document in response")
	}
	if len(resp.Document.Pages) > MaxPagesSync {
		return nil, WrapOCRError(op, ErrTooManyPages, fmt.Sprintf("document has %d pages", len(resp.Document.Pages)))
	}

	result, err := documentAIResult(resp.Document, p.config.RowThreshold)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to process Document AI response")
	}
	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(startTime)

	p.log.Debug().
		Str("mime_type", mimeType).
		Int("pages", result.PageCount).
		Int("words", len(result.Words)).
		Float32("confidence", result.Confidence).
		Dur("duration", result.ProcessingDuration).
		Msg("Document AI OCR finished")

	return result, nil
}

// documentAIResult turns page tokens into positioned words.
func documentAIResult(doc *documentaipb.Document, rowThreshold float64) (*models.OCRResult, error) {
	var (
		words     []placedWord
		confSum   float32
		confCount int
	)
	for idx, page := range doc.Pages {
		pageNumber := int(page.PageNumber)
		if pageNumber == 0 {
			pageNumber = idx + 1
		}
		for _, token := range page.Tokens {
			if token.Layout == nil {
				continue
			}
			w, ok := tokenWord(doc.Text, token.Layout, page.Dimension, pageNumber)
			if !ok {
				continue
			}
			words = append(words, w)
			if token.Layout.Confidence > 0 {
				confSum += token.Layout.Confidence
				confCount++
			}
		}
	}

	if len(words) == 0 && strings.TrimSpace(doc.Text) == "" {
		return nil, ErrEmptyDocument
	}

	result := &models.OCRResult{
		Words:     orderWords(words, rowThreshold),
		PageCount: len(doc.Pages),
		Source:    EngineDocumentAI,
	}
	result.Text = joinRows(result.Words)
	if result.Text == "" {
		result.Text = doc.Text
	}
	if confCount > 0 {
		result.Confidence = confSum / float32(confCount)
	}
	return result, nil
}

// tokenWord resolves a token's text through its anchor and measures its bounding poly.
func tokenWord(text string, layout *documentaipb.Document_Page_Layout, dim *documentaipb.Document_Page_Dimension, pageNumber int) (placedWord, bool) {
	var b strings.Builder
	if anchor := layout.TextAnchor; anchor != nil {
		for _, seg := range anchor.TextSegments {
			start, end := int(seg.StartIndex), int(seg.EndIndex)
			if start < 0 || end > len(text) || start >= end {
				continue
			}
			b.WriteString(text[start:end])
		}
	}
	word := strings.TrimSpace(b.String())
	if word == "" {
		return placedWord{}, false
	}

	top, left := math.Inf(1), math.Inf(1)
	if poly := layout.BoundingPoly; poly != nil {
		for _, v := range poly.Vertices {
			top = math.Min(top, float64(v.Y))
			left = math.Min(left, float64(v.X))
		}
		if len(poly.Vertices) == 0 && dim != nil {
			for _, v := range poly.NormalizedVertices {
				top = math.Min(top, float64(v.Y)*float64(dim.Height))
				left = math.Min(left, float64(v.X)*float64(dim.Width))
			}
		}
	}
	if math.IsInf(top, 1) {
		top, left = 0, 0
	}
	return placedWord{text: word, page: pageNumber, top: top, left: left}, true
}

// Close closes the underlying Document AI client.
func (p *DocumentAIOCRService) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
