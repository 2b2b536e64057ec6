package upstream

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/n0madic/go-llmbridge/internal/config"
)

// Credentials caches one token source per supplier. Tokens are refreshed
// by the source when they expire. The zero value is ready to use.
type Credentials struct {
	// HTTP sends token requests; nil uses http.DefaultClient.
	HTTP *http.Client

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

// Authorization returns the Authorization header value for supplier,
// fetching a client-credentials token on first use.
func (c *Credentials) Authorization(supplier string, o *config.OAuth) (string, error) {
	if o == nil {
		return "", fmt.Errorf("supplier %s has no oauth configuration", supplier)
	}
	tok, err := c.source(supplier, o).Token()
	if err != nil {
		return "", fmt.Errorf("fetch token for supplier %s: %w", supplier, err)
	}
	return tok.Type() + " " + tok.AccessToken, nil
}

func (c *Credentials) source(supplier string, o *config.OAuth) oauth2.TokenSource {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts, ok := c.sources[supplier]; ok {
		return ts
	}
	cfg := clientcredentials.Config{
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		TokenURL:     o.TokenURL,
		Scopes:       o.Scopes,
		AuthStyle:    authStyle(o.AuthStyle),
	}
	ctx := context.Background()
	if c.HTTP != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.HTTP)
	}
	ts := cfg.TokenSource(ctx)
	if c.sources == nil {
		c.sources = make(map[string]oauth2.TokenSource)
	}
	c.sources[supplier] = ts
	return ts
}

func authStyle(s string) oauth2.AuthStyle {
	switch s {
	case "header":
		return oauth2.AuthStyleInHeader
	case "params":
		return oauth2.AuthStyleInParams
	}
	return oauth2.AuthStyleAutoDetect
}
