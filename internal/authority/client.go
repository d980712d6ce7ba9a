// Package authority talks to the tax authority's (SUNAT) comprobante validation
// service: OAuth2 client-credentials exchange with a cached bearer token, the
// exact-match validation call, and a taxpayer registry lookup used for reports.
//
// Every external status code is mapped to a closed set at this boundary; raw
// codes such as "1" or "00" never leave the package.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"comprobantes/internal/logger"
	"comprobantes/pkg/models"
)

// Config holds the authority endpoints and the querying taxpayer's identity.
type Config struct {
	// TokenURL may contain {client_id}; ValidateURL may contain {ruc}.
	TokenURL    string
	ValidateURL string
	Scope       string

	// ClientID and ClientSecret arrive already decrypted.
	ClientID     string
	ClientSecret string

	// QueryingTaxID is the RUC of the taxpayer performing the queries.
	QueryingTaxID string

	// Timeout bounds every HTTP call. Default: 30 seconds.
	Timeout time.Duration

	// ExpiryMargin is subtracted from the token expiry before caching. Default: 5 minutes.
	ExpiryMargin time.Duration
}

// Client is safe for concurrent use; the credential cache is mutex-guarded.
type Client struct {
	config      Config
	httpClient  *http.Client
	credentials *credentialCache
	now         func() time.Time
	log         zerolog.Logger
}

// NewClient creates an authority client with its own HTTP client.
func NewClient(config Config) (*Client, error) {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return NewClientWithHTTPClient(config, &http.Client{Timeout: config.Timeout})
}

// NewClientWithHTTPClient creates an authority client with an explicit HTTP client.
func NewClientWithHTTPClient(config Config, httpClient *http.Client) (*Client, error) {
	const op = "NewClient"

	var missing []string
	if config.TokenURL == "" {
		missing = append(missing, "token URL")
	}
	if config.ValidateURL == "" {
		missing = append(missing, "validate URL")
	}
	if config.ClientID == "" {
		missing = append(missing, "client id")
	}
	if config.ClientSecret == "" {
		missing = append(missing, "client secret")
	}
	if config.QueryingTaxID == "" {
		missing = append(missing, "querying RUC")
	}
	if len(missing) > 0 {
		return nil, &AuthorityError{Op: op, Err: ErrInvalidConfiguration, Details: "missing " + strings.Join(missing, ", ")}
	}
	if config.ExpiryMargin == 0 {
		config.ExpiryMargin = 5 * time.Minute
	}

	return &Client{
		config:      config,
		httpClient:  httpClient,
		credentials: newCredentialCache(),
		now:         time.Now,
		log:         logger.WithComponent("authority"),
	}, nil
}

type validateRequest struct {
	NumRuc       string `json:"numRuc"`
	CodComp      string `json:"codComp"`
	NumeroSerie  string `json:"numeroSerie"`
	Numero       int    `json:"numero"`
	FechaEmision string `json:"fechaEmision"`
	Monto        string `json:"monto"`
}

type validateResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
	Data      *struct {
		EstadoCp      code     `json:"estadoCp"`
		EstadoRuc     code     `json:"estadoRuc"`
		CondDomiRuc   code     `json:"condDomiRuc"`
		Observaciones []string `json:"observaciones"`
	} `json:"data"`
}

// code accepts both "1" and 1 from the wire.
type code string

func (c *code) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = code(strings.TrimSpace(s))
		return nil
	}
	if string(b) == "null" {
		*c = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = code(n.String())
	return nil
}

// Validate sends one exact-match query. It performs no retries of its own.
func (c *Client) Validate(ctx context.Context, query models.ValidationQuery) (models.ValidationOutcome, error) {
	const op = "Validate"

	number, err := strconv.Atoi(strings.TrimLeft(query.Number, " "))
	if err != nil {
		return models.ValidationOutcome{}, &AuthorityError{
			Op:      op,
			Err:     fmt.Errorf("%w: non-numeric document number %q", ErrValidationCall, query.Number),
			Details: "build request",
		}
	}

	cred, err := c.AcquireCredential(ctx)
	if err != nil {
		return models.ValidationOutcome{}, err
	}

	body, err := json.Marshal(validateRequest{
		NumRuc:       query.IssuerTaxID,
		CodComp:      query.DocumentTypeCode,
		NumeroSerie:  query.Series,
		Numero:       number,
		FechaEmision: query.DateString(),
		Monto:        query.AmountString(),
	})
	if err != nil {
		return models.ValidationOutcome{}, WrapAuthorityError(op, err, "encode request")
	}

	url := strings.ReplaceAll(c.config.ValidateURL, "{ruc}", c.config.QueryingTaxID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return models.ValidationOutcome{}, &AuthorityError{Op: op, Err: fmt.Errorf("%w: %v", ErrValidationCall, err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.Token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.ValidationOutcome{}, &AuthorityError{Op: op, Err: fmt.Errorf("%w: %v", ErrValidationCall, err), Details: "transport"}
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("issuer", query.IssuerTaxID).
		Str("type", query.DocumentTypeCode).
		Str("series", query.Series).
		Str("number", query.Number).
		Str("date", query.DateString()).
		Str("amount", query.AmountString()).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Validation call finished")

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.InvalidateCredential()
		return models.ValidationOutcome{}, &AuthorityError{Op: op, Err: ErrCredential, StatusCode: resp.StatusCode, Details: "token rejected"}
	case resp.StatusCode == http.StatusNotFound:
		return models.ValidationOutcome{}, &AuthorityError{Op: op, Err: ErrNotFound, StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.ValidationOutcome{}, &AuthorityError{
			Op:         op,
			Err:        ErrValidationCall,
			StatusCode: resp.StatusCode,
			Details:    strings.TrimSpace(string(snippet)),
		}
	}

	var decoded validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return models.ValidationOutcome{}, &AuthorityError{Op: op, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	if !decoded.Success {
		return models.ValidationOutcome{}, &AuthorityError{
			Op:      op,
			Err:     ErrValidationCall,
			Details: strings.TrimSpace(decoded.ErrorCode + " " + decoded.Message),
		}
	}
	if decoded.Data == nil {
		return models.ValidationOutcome{}, &AuthorityError{Op: op, Err: ErrMalformedResponse, Details: "missing data"}
	}

	status, ok := documentStatus(string(decoded.Data.EstadoCp))
	if !ok {
		return models.ValidationOutcome{}, &AuthorityError{
			Op:      op,
			Err:     ErrMalformedResponse,
			Details: fmt.Sprintf("unknown estadoCp %q", decoded.Data.EstadoCp),
		}
	}

	return models.ValidationOutcome{
		Status:                     status,
		CounterpartyRegistryStatus: registryStatusLabel(string(decoded.Data.EstadoRuc)),
		DomicileCondition:          domicileConditionLabel(string(decoded.Data.CondDomiRuc)),
		Notes:                      decoded.Data.Observaciones,
	}, nil
}

func documentStatus(estadoCp string) (models.ValidationStatus, bool) {
	switch estadoCp {
	case "1":
		return models.StatusValid, true
	case "0":
		return models.StatusNotFound, true
	case "2":
		return models.StatusAnnulled, true
	case "3":
		return models.StatusRejected, true
	}
	return "", false
}

var registryStatusLabels = map[string]string{
	"00": "ACTIVO",
	"01": "BAJA PROVISIONAL",
	"02": "BAJA PROV. POR OFICIO",
	"03": "SUSPENSION TEMPORAL",
	"10": "BAJA DEFINITIVA",
	"11": "BAJA DE OFICIO",
	"22": "INHABILITADO-VENT.UNICA",
}

var domicileConditionLabels = map[string]string{
	"00": "HABIDO",
	"09": "PENDIENTE",
	"11": "POR VERIFICAR",
	"12": "NO HABIDO",
	"20": "NO HALLADO",
}

func registryStatusLabel(c string) string {
	if label, ok := registryStatusLabels[c]; ok {
		return label
	}
	return c
}

func domicileConditionLabel(c string) string {
	if label, ok := domicileConditionLabels[c]; ok {
		return label
	}
	return c
}
