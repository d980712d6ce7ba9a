package authority

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"comprobantes/pkg/models"
)

// Lifetime assumed when the token endpoint omits expires_in.
const defaultTokenLifetime = time.Hour

// credentialCache holds one bearer token per client id.
type credentialCache struct {
	mu      sync.Mutex
	entries map[string]models.CachedCredential
}

func newCredentialCache() *credentialCache {
	return &credentialCache{entries: make(map[string]models.CachedCredential)}
}

// AcquireCredential returns a cached bearer token while it is valid, otherwise
// exchanges the client credentials for a new one. The cached expiry is the
// token's expiry minus the configured safety margin.
func (c *Client) AcquireCredential(ctx context.Context) (models.CachedCredential, error) {
	const op = "AcquireCredential"

	c.credentials.mu.Lock()
	defer c.credentials.mu.Unlock()

	now := c.now()
	if cred, ok := c.credentials.entries[c.config.ClientID]; ok && cred.Valid(now) {
		return cred, nil
	}

	cc := clientcredentials.Config{
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret,
		TokenURL:     strings.ReplaceAll(c.config.TokenURL, "{client_id}", c.config.ClientID),
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if c.config.Scope != "" {
		cc.Scopes = []string{c.config.Scope}
	}

	c.log.Debug().Str("client_id", c.config.ClientID).Msg("Exchanging client credentials for a token")

	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := cc.Token(tokenCtx)
	if err != nil {
		return models.CachedCredential{}, &AuthorityError{
			Op:      op,
			Err:     fmt.Errorf("%w: %v", ErrCredential, err),
			Details: "token exchange",
		}
	}
	if token.AccessToken == "" {
		return models.CachedCredential{}, &AuthorityError{
			Op:      op,
			Err:     ErrCredential,
			Details: "token endpoint returned no access_token",
		}
	}

	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = now.Add(defaultTokenLifetime)
	}
	cred := models.CachedCredential{
		Token:     token.AccessToken,
		ExpiresAt: expiry.Add(-c.config.ExpiryMargin),
	}
	c.credentials.entries[c.config.ClientID] = cred

	c.log.Info().
		Time("expires_at", cred.ExpiresAt).
		Msg("Authority credential acquired")

	return cred, nil
}

// InvalidateCredential drops the cached token so the next call exchanges again.
func (c *Client) InvalidateCredential() {
	c.credentials.mu.Lock()
	defer c.credentials.mu.Unlock()
	delete(c.credentials.entries, c.config.ClientID)
}
