package auth

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// responseHeaderTimeout bounds the wait for a response, not the body, so
// large artifact transfers are limited only by the caller's context.
const responseHeaderTimeout = 60 * time.Second

// NewHTTPClient returns a client that authenticates every request according
// to cfg. For OIDC the token endpoint is discovered from the issuer and
// tokens are obtained with the client credentials grant.
func NewHTTPClient(ctx context.Context, cfg Config) (*http.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := &http.Client{Transport: newTransport(cfg)}

	switch cfg.Mode {
	case ModeBasic:
		base.Transport = &basicAuthTransport{username: cfg.Username, password: cfg.Password, next: base.Transport}
		return base, nil
	case ModeBearer:
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})
		return oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), src), nil
	case ModeOIDC:
		ctx = oidc.ClientContext(ctx, base)
		provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuerURL)
		if err != nil {
			return nil, fmt.Errorf("oidc provider: %w", err)
		}
		cc := clientcredentials.Config{
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			TokenURL:     provider.Endpoint().TokenURL,
			Scopes:       cfg.OIDCScopes,
		}
		// The token source outlives ctx, so it gets a fresh one carrying
		// only the base client.
		return cc.Client(context.WithValue(context.Background(), oauth2.HTTPClient, base)), nil
	default:
		return base, nil
	}
}

func newTransport(cfg Config) http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = responseHeaderTimeout
	if cfg.InsecureSkipVerify {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return t
}

type basicAuthTransport struct {
	username string
	password string
	next     http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.SetBasicAuth(t.username, t.password)
	return t.next.RoundTrip(clone)
}
