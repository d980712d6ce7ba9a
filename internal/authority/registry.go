package authority

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"comprobantes/internal/logger"
	"comprobantes/pkg/models"
)

// RegistryConfig configures the taxpayer registry lookup.
type RegistryConfig struct {
	URL      string
	Token    string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Registry looks up taxpayer records by RUC. Results are cached in memory.
type Registry struct {
	config     RegistryConfig
	httpClient *http.Client
	cache      *cache.Cache
	log        zerolog.Logger
}

type registryResponse struct {
	NumeroDocumento string `json:"numeroDocumento"`
	RazonSocial     string `json:"razonSocial"`
	Estado          string `json:"estado"`
	Condicion       string `json:"condicion"`
	Direccion       string `json:"direccion"`
	Distrito        string `json:"distrito"`
	Provincia       string `json:"provincia"`
	Departamento    string `json:"departamento"`
}

// NewRegistry creates a registry client. A nil httpClient gets one with the configured timeout.
func NewRegistry(config RegistryConfig, httpClient *http.Client) *Registry {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 24 * time.Hour
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	return &Registry{
		config:     config,
		httpClient: httpClient,
		cache:      cache.New(config.CacheTTL, 2*config.CacheTTL),
		log:        logger.WithComponent("registry"),
	}
}

// LookupCounterparty returns the registry record for taxID.
func (r *Registry) LookupCounterparty(ctx context.Context, taxID string) (*models.CounterpartyRecord, error) {
	const op = "LookupCounterparty"

	if cached, ok := r.cache.Get(taxID); ok {
		return cached.(*models.CounterpartyRecord), nil
	}

	u, err := url.Parse(r.config.URL)
	if err != nil || r.config.URL == "" {
		return nil, &AuthorityError{Op: op, Err: ErrInvalidConfiguration, Details: "registry URL"}
	}
	q := u.Query()
	q.Set("numero", taxID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &AuthorityError{Op: op, Err: fmt.Errorf("%w: %v", ErrRegistryLookup, err)}
	}
	req.Header.Set("Accept", "application/json")
	if r.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.config.Token)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &AuthorityError{Op: op, Err: fmt.Errorf("%w: %v", ErrRegistryLookup, err), Details: "transport"}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &AuthorityError{Op: op, Err: ErrNotFound, StatusCode: resp.StatusCode, Details: taxID}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &AuthorityError{Op: op, Err: ErrRegistryLookup, StatusCode: resp.StatusCode}
	}

	var decoded registryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &AuthorityError{Op: op, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}

	record := &models.CounterpartyRecord{
		TaxID:      taxID,
		Name:       decoded.RazonSocial,
		Status:     decoded.Estado,
		Condition:  decoded.Condicion,
		Address:    decoded.Direccion,
		District:   decoded.Distrito,
		Province:   decoded.Provincia,
		Department: decoded.Departamento,
	}
	r.cache.Set(taxID, record, cache.DefaultExpiration)

	r.log.Debug().Str("tax_id", taxID).Str("name", record.Name).Msg("Registry record fetched")
	return record, nil
}
