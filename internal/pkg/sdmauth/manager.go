package sdmauth

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/logging"
)

const (
	// DefaultTokenURL is Google's OAuth2 token endpoint
	DefaultTokenURL = "https://www.googleapis.com/oauth2/v4/token"

	defaultRefreshTimeout = time.Second * 30
	refreshFlightKey      = "refresh"
)

// AccessToken is a short-lived bearer token and the time it stops being valid.
// The zero value means no token has been issued yet.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// ValidAt reports whether the token can still be used at time t
func (t AccessToken) ValidAt(at time.Time) bool {
	return t.Value != "" && at.Before(t.ExpiresAt)
}

// Manager exchanges the refresh token for access tokens and caches the
// current access token until it expires.  Concurrent callers share a single
// in-flight refresh.
//
// The exported fields may be adjusted after NewManager, before first use.
type Manager struct {
	TokenURL   string
	HTTPClient *http.Client

	// MinAccessTokenValidity is the remaining lifetime below which a cached
	// token is treated as expired
	MinAccessTokenValidity time.Duration

	// RefreshTimeout bounds a refresh exchange, independently of the callers
	// waiting for it
	RefreshTimeout time.Duration

	creds Credentials
	now   func() time.Time

	mu       sync.RWMutex
	token    AccessToken
	fileName string

	flight singleflight.Group
}

// NewManager returns a token manager for creds with no cached token
func NewManager(creds Credentials) *Manager {
	return &Manager{
		TokenURL:       DefaultTokenURL,
		HTTPClient:     http.DefaultClient,
		RefreshTimeout: defaultRefreshTimeout,
		creds:          creds,
		now:            time.Now,
	}
}

// Credentials returns the credentials the manager was built with
func (m *Manager) Credentials() Credentials {
	return m.creds
}

// Token returns a copy of the cached access token, which may be expired or empty
func (m *Manager) Token() AccessToken {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.token
}

// AccessToken returns a valid access token, refreshing it first if there is
// no cached token or the cached one has expired.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	if token, ok := m.cached(); ok {
		return token, nil
	}

	// The refresh outlives any single caller: one caller giving up must not
	// fail the others waiting on the same flight
	flightCtx := context.WithoutCancel(ctx)
	ch := m.flight.DoChan(refreshFlightKey, func() (interface{}, error) {
		return m.refresh(flightCtx)
	})

	select {
	case <-ctx.Done():
		return "", errors.Wrap(ctx.Err(), "waiting for access token refresh")
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (m *Manager) cached() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.token.ValidAt(m.now().Add(m.MinAccessTokenValidity)) {
		return m.token.Value, true
	}

	return "", false
}

func (m *Manager) oauthConfig(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     m.creds.ClientID,
		ClientSecret: m.creds.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{SDMScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:   partnerConnectionsAuthURL(m.creds.ProjectID),
			TokenURL:  m.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (m *Manager) oauthContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.HTTPClient)
	}

	if m.RefreshTimeout > 0 {
		return context.WithTimeout(ctx, m.RefreshTimeout)
	}

	return ctx, func() {}
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	ctxLogger := logging.Logger(ctx)

	// A flight that started after another finished finds a fresh token here
	if token, ok := m.cached(); ok {
		return token, nil
	}

	if m.creds.RefreshToken == "" {
		refreshFailure.Inc()
		tokenValid.Set(0)
		return "", &AuthError{Message: "no refresh token available"}
	}

	ctx, cancel := m.oauthContext(ctx)
	defer cancel()

	ctxLogger.Debugf("Refreshing access token via %s", m.TokenURL)

	source := m.oauthConfig("").TokenSource(ctx, &oauth2.Token{RefreshToken: m.creds.RefreshToken})
	token, err := source.Token()
	if err != nil {
		refreshFailure.Inc()
		tokenValid.Set(0)

		authErr := newAuthError(err)
		ctxLogger.WithError(authErr).Error("refreshing access token")
		return "", authErr
	}

	accessToken := m.store(token)
	refreshSuccess.Inc()
	tokenValid.Set(1)

	ctxLogger.Debugf("Access token refreshed, expires at %s", accessToken.ExpiresAt.Format(time.RFC3339))

	if err := m.save(); err != nil {
		ctxLogger.WithError(err).Warn("persisting access token state")
	}

	return accessToken.Value, nil
}

// store replaces the cached token with the one returned by the token endpoint
func (m *Manager) store(token *oauth2.Token) AccessToken {
	now := m.now()

	var lifetime time.Duration
	switch {
	case token.ExpiresIn > 0:
		lifetime = time.Duration(token.ExpiresIn) * time.Second
	case !token.Expiry.IsZero():
		lifetime = time.Until(token.Expiry)
	}

	accessToken := AccessToken{
		Value:     token.AccessToken,
		ExpiresAt: now.Add(lifetime),
	}

	m.mu.Lock()
	m.token = accessToken
	m.mu.Unlock()

	return accessToken
}

// Invalidate drops the cached token so the next call refreshes
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.token = AccessToken{}
	m.mu.Unlock()
}
