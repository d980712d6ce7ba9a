package authority

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"comprobantes/pkg/models"
)

type fakeAuthority struct {
	tokenCalls    int32
	validateCalls int32
	tokenStatus   int
	expiresIn     int
	validate      func(w http.ResponseWriter, r *http.Request)
	lastForm      map[string]string
	scopeSent     bool
	lastBody      map[string]any
}

func (f *fakeAuthority) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token/client-1/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.tokenCalls, 1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		f.lastForm = map[string]string{
			"grant_type":    r.PostForm.Get("grant_type"),
			"client_id":     r.PostForm.Get("client_id"),
			"client_secret": r.PostForm.Get("client_secret"),
			"scope":         r.PostForm.Get("scope"),
		}
		_, f.scopeSent = r.PostForm["scope"]
		if f.tokenStatus != 0 {
			w.WriteHeader(f.tokenStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1",
			"token_type":   "JWT",
			"expires_in":   f.expiresIn,
		})
	})
	mux.HandleFunc("/contribuyentes/20000000001/validarcomprobante", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.validateCalls, 1)
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q", got)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.lastBody = body
		f.validate(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClientWithHTTPClient(Config{
		TokenURL:      srv.URL + "/token/{client_id}/",
		ValidateURL:   srv.URL + "/contribuyentes/{ruc}/validarcomprobante",
		Scope:         "https://api.sunat.gob.pe/v1/contribuyente/contribuyentes",
		ClientID:      "client-1",
		ClientSecret:  "secret-1",
		QueryingTaxID: "20000000001",
		ExpiryMargin:  5 * time.Minute,
	}, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func answer(estadoCp any) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"message": "Operation Success! ",
			"data": map[string]any{
				"estadoCp":      estadoCp,
				"estadoRuc":     "00",
				"condDomiRuc":   "00",
				"observaciones": []string{"- El comprobante fue emitido"},
			},
		})
	}
}

var sampleQuery = models.ValidationQuery{
	IssuerTaxID:      "20123456789",
	DocumentTypeCode: "01",
	Series:           "F001",
	Number:           "00012345",
	IssueDate:        models.Date(2025, 3, 15),
	Amount:           decimal.RequireFromString("118"),
}

func TestValidateMapsStatusAndSendsWireFormat(t *testing.T) {
	tests := []struct {
		estadoCp any
		want     models.ValidationStatus
	}{
		{"1", models.StatusValid},
		{"0", models.StatusNotFound},
		{"2", models.StatusAnnulled},
		{3, models.StatusRejected},
	}

	for _, tt := range tests {
		f := &fakeAuthority{expiresIn: 3600, validate: answer(tt.estadoCp)}
		srv := f.server(t)
		c := newTestClient(t, srv)

		outcome, err := c.Validate(context.Background(), sampleQuery)
		if err != nil {
			t.Fatalf("estadoCp %v: Validate() error = %v", tt.estadoCp, err)
		}
		if outcome.Status != tt.want {
			t.Errorf("estadoCp %v: Status = %s, want %s", tt.estadoCp, outcome.Status, tt.want)
		}
		if outcome.CounterpartyRegistryStatus != "ACTIVO" || outcome.DomicileCondition != "HABIDO" {
			t.Errorf("labels = %q %q", outcome.CounterpartyRegistryStatus, outcome.DomicileCondition)
		}
		if len(outcome.Notes) != 1 {
			t.Errorf("Notes = %v", outcome.Notes)
		}

		want := map[string]any{
			"numRuc":       "20123456789",
			"codComp":      "01",
			"numeroSerie":  "F001",
			"numero":       float64(12345),
			"fechaEmision": "15/03/2025",
			"monto":        "118.00",
		}
		for k, v := range want {
			if f.lastBody[k] != v {
				t.Errorf("body[%s] = %v, want %v", k, f.lastBody[k], v)
			}
		}
		if f.lastForm["grant_type"] != "client_credentials" || f.lastForm["client_id"] != "client-1" || f.lastForm["client_secret"] != "secret-1" {
			t.Errorf("token form = %v", f.lastForm)
		}
	}
}

func TestValidateUnknownStatusIsMalformed(t *testing.T) {
	f := &fakeAuthority{expiresIn: 3600, validate: answer("9")}
	c := newTestClient(t, f.server(t))

	_, err := c.Validate(context.Background(), sampleQuery)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("error = %v, want ErrMalformedResponse", err)
	}
	if IsFatal(err) {
		t.Error("malformed response must not be fatal")
	}
}

func TestValidateHTTPErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
		fatal  bool
	}{
		{name: "not found", status: http.StatusNotFound, want: ErrNotFound},
		{name: "unauthorized", status: http.StatusUnauthorized, want: ErrCredential, fatal: true},
		{name: "forbidden", status: http.StatusForbidden, want: ErrCredential, fatal: true},
		{name: "server error", status: http.StatusBadGateway, want: ErrValidationCall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeAuthority{expiresIn: 3600, validate: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}}
			c := newTestClient(t, f.server(t))

			_, err := c.Validate(context.Background(), sampleQuery)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if IsFatal(err) != tt.fatal {
				t.Errorf("IsFatal = %v, want %v", IsFatal(err), tt.fatal)
			}
			var authErr *AuthorityError
			if !errors.As(err, &authErr) || authErr.StatusCode != tt.status {
				t.Errorf("StatusCode not carried: %v", err)
			}
		})
	}
}

func TestValidateUnsuccessfulEnvelope(t *testing.T) {
	f := &fakeAuthority{expiresIn: 3600, validate: func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"Parametros incorrectos","errorCode":"0001"}`))
	}}
	c := newTestClient(t, f.server(t))

	_, err := c.Validate(context.Background(), sampleQuery)
	if !errors.Is(err, ErrValidationCall) {
		t.Fatalf("error = %v, want ErrValidationCall", err)
	}
}

func TestCredentialIsCachedAndInvalidatedOn401(t *testing.T) {
	var reject atomic.Bool
	f := &fakeAuthority{expiresIn: 3600}
	f.validate = func(w http.ResponseWriter, r *http.Request) {
		if reject.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		answer("1")(w, r)
	}
	c := newTestClient(t, f.server(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Validate(ctx, sampleQuery); err != nil {
			t.Fatal(err)
		}
	}
	if got := atomic.LoadInt32(&f.tokenCalls); got != 1 {
		t.Fatalf("token exchanges = %d, want 1", got)
	}

	reject.Store(true)
	if _, err := c.Validate(ctx, sampleQuery); !IsFatal(err) {
		t.Fatalf("error = %v, want fatal", err)
	}
	reject.Store(false)
	if _, err := c.Validate(ctx, sampleQuery); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&f.tokenCalls); got != 2 {
		t.Errorf("token exchanges = %d, want 2 after invalidation", got)
	}
}

func TestCredentialExpiryMargin(t *testing.T) {
	f := &fakeAuthority{expiresIn: 600}
	c := newTestClient(t, f.server(t))
	now := time.Now()
	c.now = func() time.Time { return now }

	cred, err := c.AcquireCredential(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// 600 s lifetime minus the 5 minute margin.
	if d := cred.ExpiresAt.Sub(now); d < 4*time.Minute || d > 6*time.Minute {
		t.Errorf("effective lifetime = %s, want about 5m", d)
	}
	if cred.ExpiresAtEpochMillis() != cred.ExpiresAt.UnixMilli() {
		t.Error("epoch millis mismatch")
	}

	c.now = func() time.Time { return now.Add(6 * time.Minute) }
	if _, err := c.AcquireCredential(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&f.tokenCalls); got != 2 {
		t.Errorf("token exchanges = %d, want 2 once past the margin", got)
	}
}

func TestCredentialOmitsEmptyScope(t *testing.T) {
	f := &fakeAuthority{expiresIn: 3600}
	srv := f.server(t)
	c := newTestClient(t, srv)
	c.config.Scope = ""

	if _, err := c.AcquireCredential(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.scopeSent {
		t.Errorf("token request carried scope %q, want no scope parameter", f.lastForm["scope"])
	}

	scoped := newTestClient(t, srv)
	if _, err := scoped.AcquireCredential(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !f.scopeSent || f.lastForm["scope"] != scoped.config.Scope {
		t.Errorf("scope = %q, want %q", f.lastForm["scope"], scoped.config.Scope)
	}
}

func TestCredentialExchangeFailureIsFatal(t *testing.T) {
	f := &fakeAuthority{tokenStatus: http.StatusUnauthorized}
	f.validate = answer("1")
	c := newTestClient(t, f.server(t))

	_, err := c.Validate(context.Background(), sampleQuery)
	if !IsFatal(err) {
		t.Fatalf("error = %v, want fatal credential error", err)
	}
	if got := atomic.LoadInt32(&f.validateCalls); got != 0 {
		t.Errorf("validate calls = %d, want 0", got)
	}
}

func TestNewClientRequiresSettings(t *testing.T) {
	_, err := NewClient(Config{TokenURL: "x"})
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("error = %v, want ErrInvalidConfiguration", err)
	}
}
