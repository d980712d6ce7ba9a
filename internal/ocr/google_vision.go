package ocr

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"

	"comprobantes/internal/logger"
	"comprobantes/pkg/models"
)

// GoogleVisionOCRService implements OCRService using Google Cloud Vision document text detection.
type GoogleVisionOCRService struct {
	client        *vision.ImageAnnotatorClient
	rowThreshold  float64
	languageHints []string
	log           zerolog.Logger
}

// NewGoogleVisionOCRService creates a Vision client with credentials from the environment.
// It expects either GOOGLE_APPLICATION_CREDENTIALS path or GOOGLE_CREDENTIALS JSON in env,
// and falls back to application default credentials.
func NewGoogleVisionOCRService(ctx context.Context, rowThreshold float64) (*GoogleVisionOCRService, error) {
	const op = "NewGoogleVisionOCRService"

	opts := clientOptions()
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		if len(opts) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, err.Error())
		}
		return nil, WrapOCRError(op, err, "failed to create Vision client")
	}

	return NewGoogleVisionOCRServiceWithClient(client, rowThreshold), nil
}

// NewGoogleVisionOCRServiceWithClient creates the service around an existing client.
func NewGoogleVisionOCRServiceWithClient(client *vision.ImageAnnotatorClient, rowThreshold float64) *GoogleVisionOCRService {
	return &GoogleVisionOCRService{
		client:        client,
		rowThreshold:  rowThreshold,
		languageHints: []string{"es"},
		log:           logger.WithComponent("ocr_vision"),
	}
}

// ProcessDocument sends PDFs and TIFFs through BatchAnnotateFiles and images through
// BatchAnnotateImages, then flattens the text annotation into positioned words.
func (g *GoogleVisionOCRService) ProcessDocument(ctx context.Context, data []byte, mimeType string) (*models.OCRResult, error) {
	const op = "ProcessDocument"
	startTime := time.Now()

	mimeType, err := checkInput(op, data, mimeType)
	if err != nil {
		return nil, err
	}

	features := []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}}
	imageContext := &visionpb.ImageContext{LanguageHints: g.languageHints}

	var pages []*visionpb.AnnotateImageResponse
	if isFileInput(mimeType) {
		resp, err := g.client.BatchAnnotateFiles(ctx, &visionpb.BatchAnnotateFilesRequest{
			Requests: []*visionpb.AnnotateFileRequest{{
				InputConfig:  &visionpb.InputConfig{Content: data, MimeType: mimeType},
				Features:     features,
				ImageContext: imageContext,
			}},
		})
		if err != nil {
			return nil, classifyEngineError(op, err)
		}
		if len(resp.Responses) == 0 {
			return nil, WrapOCRError(op, ErrOCRFailed, "no response from Vision API")
		}
		fileResp := resp.Responses[0]
		if fileResp.Error != nil {
			return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API error: %s", fileResp.Error.Message))
		}
		if fileResp.TotalPages > MaxPagesSync {
			return nil, WrapOCRError(op, ErrTooManyPages, fmt.Sprintf("document has %d pages", fileResp.TotalPages))
		}
		pages = fileResp.Responses
	} else {
		resp, err := g.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
			Requests: []*visionpb.AnnotateImageRequest{{
				Image:        &visionpb.Image{Content: data},
				Features:     features,
				ImageContext: imageContext,
			}},
		})
		if err != nil {
			return nil, classifyEngineError(op, err)
		}
		pages = resp.Responses
	}

	result, err := visionResult(pages, g.rowThreshold)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to process Vision API response")
	}
	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(startTime)

	g.log.Debug().
		Str("mime_type", mimeType).
		Int("pages", result.PageCount).
		Int("words", len(result.Words)).
		Float32("confidence", result.Confidence).
		Dur("duration", result.ProcessingDuration).
		Msg("Vision OCR finished")

	return result, nil
}

// visionResult flattens per-page Vision responses. Page numbers follow response order.
func visionResult(responses []*visionpb.AnnotateImageResponse, rowThreshold float64) (*models.OCRResult, error) {
	if len(responses) == 0 {
		return nil, ErrEmptyDocument
	}

	var (
		words      []placedWord
		texts      []string
		confSum    float32
		confCount  int
		pageNumber int
	)
	for idx, resp := range responses {
		if resp.Error != nil {
			return nil, fmt.Errorf("error processing page %d: %s", idx+1, resp.Error.Message)
		}
		annotation := resp.FullTextAnnotation
		if annotation == nil {
			pageNumber++
			continue
		}
		texts = append(texts, annotation.Text)
		for _, page := range annotation.Pages {
			pageNumber++
			for _, block := range page.Blocks {
				for _, paragraph := range block.Paragraphs {
					for _, word := range paragraph.Words {
						w, ok := visionWord(word, page, pageNumber)
						if !ok {
							continue
						}
						words = append(words, w)
						if word.Confidence > 0 {
							confSum += word.Confidence
							confCount++
						}
					}
				}
			}
		}
	}

	if len(words) == 0 && strings.TrimSpace(strings.Join(texts, "")) == "" {
		return nil, ErrEmptyDocument
	}

	result := &models.OCRResult{
		Words:     orderWords(words, rowThreshold),
		PageCount: pageNumber,
		Source:    EngineVision,
	}
	result.Text = joinRows(result.Words)
	if result.Text == "" {
		result.Text = strings.Join(texts, "\n")
	}
	if confCount > 0 {
		result.Confidence = confSum / float32(confCount)
	}
	return result, nil
}

// visionWord joins the symbols of a word and measures its box. Pixel vertices win;
// normalized vertices (returned for PDF pages) are scaled by the page size.
func visionWord(word *visionpb.Word, page *visionpb.Page, pageNumber int) (placedWord, bool) {
	var b strings.Builder
	for _, symbol := range word.Symbols {
		b.WriteString(symbol.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return placedWord{}, false
	}

	top, left := math.Inf(1), math.Inf(1)
	if box := word.BoundingBox; box != nil {
		for _, v := range box.Vertices {
			top = math.Min(top, float64(v.Y))
			left = math.Min(left, float64(v.X))
		}
		if len(box.Vertices) == 0 {
			for _, v := range box.NormalizedVertices {
				top = math.Min(top, float64(v.Y)*float64(page.Height))
				left = math.Min(left, float64(v.X)*float64(page.Width))
			}
		}
	}
	if math.IsInf(top, 1) {
		top, left = 0, 0
	}
	return placedWord{text: text, page: pageNumber, top: top, left: left}, true
}

// Close closes the underlying Vision client.
func (g *GoogleVisionOCRService) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
