// Package api exposes extraction, validation and outcome interpretation over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"comprobantes/internal/authority"
	"comprobantes/internal/invoice"
	"comprobantes/internal/logger"
	"comprobantes/internal/verify"
	"comprobantes/pkg/models"
)

const maxBodyBytes = 1 << 20

// Validator is the retry controller as used by the validate endpoint.
type Validator interface {
	ValidateWithRetries(ctx context.Context, fields models.ExtractedInvoiceFields, maxAttempts int) (*models.RetryResult, error)
}

// Handler serves the /v1 API. A nil validator disables POST /v1/validate.
type Handler struct {
	extractor *invoice.Extractor
	validator Validator
	timeout   time.Duration
	log       zerolog.Logger
}

// NewHandler creates the API handler.
func NewHandler(extractor *invoice.Extractor, validator Validator) *Handler {
	return &Handler{
		extractor: extractor,
		validator: validator,
		timeout:   2 * time.Minute,
		log:       logger.WithComponent("api"),
	}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.timeout))

	r.Get("/healthz", h.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/extract", h.extract)
		r.Post("/validate", h.validate)
		r.Post("/interpret", h.interpret)
	})
	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log := logger.WithRequestID(middleware.GetReqID(r.Context()))
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"validation": h.validator != nil,
	})
}

func (h *Handler) extract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	var fields models.ExtractedInvoiceFields
	switch {
	case len(req.Words) > 0:
		fields = h.extractor.Extract(models.OCRResult{Words: req.Words, Text: req.Text})
	case len(req.Lines) > 0:
		fields = h.extractor.ExtractLines(req.Lines)
	case req.Text != "":
		fields = h.extractor.ExtractText(req.Text)
	default:
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "one of words, lines or text is required")
		return
	}

	writeJSON(w, http.StatusOK, extractResponse{
		Fields:  NewFields(fields),
		Missing: invoice.MissingFields(fields),
	})
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	if h.validator == nil {
		writeError(w, http.StatusServiceUnavailable, "VALIDATION_DISABLED", "authority credentials are not configured")
		return
	}

	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if req.MaxAttempts < 0 || req.MaxAttempts > verify.AllCandidates {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", fmt.Sprintf("max_attempts must be between 0 and %d", verify.AllCandidates))
		return
	}
	fields, err := req.Fields.ToModel()
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	result, err := h.validator.ValidateWithRetries(r.Context(), fields, req.MaxAttempts)
	if err != nil {
		h.writeValidationError(w, r, err)
		return
	}

	interpretation := verify.InterpretOutcome(result.Outcome)
	resp := validateResponse{
		Outcome:        result.Outcome,
		AttemptsUsed:   result.AttemptsUsed,
		Perturbation:   result.Perturbation,
		IsValid:        interpretation.IsValid,
		DisplayMessage: interpretation.DisplayMessage,
	}
	for _, a := range result.Attempts {
		resp.Attempts = append(resp.Attempts, attemptResponse{
			Sequence:     a.SequenceNumber,
			Perturbation: a.Perturbation,
			IssueDate:    a.Query.DateString(),
			Amount:       a.Query.AmountString(),
			Status:       a.Outcome.Status,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var missing *verify.MissingFieldsError
	switch {
	case errors.As(err, &missing):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:    "INSUFFICIENT_FIELDS",
			Message: err.Error(),
			Missing: missing.Fields,
		})
	case authority.IsFatal(err):
		h.log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("Authority rejected credentials")
		writeError(w, http.StatusBadGateway, "AUTHORITY_CREDENTIAL", "the tax authority rejected the configured credentials")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, "TIMEOUT", err.Error())
	default:
		h.log.Warn().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("Validation call failed")
		writeError(w, http.StatusBadGateway, "AUTHORITY_ERROR", err.Error())
	}
}

func (h *Handler) interpret(w http.ResponseWriter, r *http.Request) {
	var outcome models.ValidationOutcome
	if err := decodeJSON(w, r, &outcome); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	switch outcome.Status {
	case models.StatusValid, models.StatusNotFound, models.StatusAnnulled, models.StatusRejected:
	default:
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", fmt.Sprintf("unknown status %q", outcome.Status))
		return
	}
	writeJSON(w, http.StatusOK, verify.InterpretOutcome(outcome))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
