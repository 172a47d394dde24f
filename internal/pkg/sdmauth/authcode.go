package sdmauth

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/logging"
)

// SDMScope is the OAuth scope required by the Smart Device Management API
const SDMScope = "https://www.googleapis.com/auth/sdm.service"

func partnerConnectionsAuthURL(projectID string) string {
	return "https://nestservices.google.com/partnerconnections/" + projectID + "/auth"
}

/*
 * The refresh token is obtained once, by sending the user through the Nest
 * partner connections consent page and exchanging the returned code.  SDM
 * only issues a refresh token with access_type=offline and prompt=consent.
 */

// AuthCodeURL returns the consent page URL for the manager's project and client
func (m *Manager) AuthCodeURL(redirectURL string, state string) string {
	return m.oauthConfig(redirectURL).AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// ExchangeCode performs the authorization code grant.  The resulting access
// token is cached; the refresh token is returned so the caller can store it
// in the configuration.
func (m *Manager) ExchangeCode(ctx context.Context, redirectURL string, code string) (string, error) {
	if code == "" {
		return "", errors.New("empty authorization code")
	}

	oauthCtx, cancel := m.oauthContext(ctx)
	defer cancel()

	token, err := m.oauthConfig(redirectURL).Exchange(oauthCtx, code)
	if err != nil {
		authErr := newAuthError(err)
		logging.Logger(ctx).WithError(authErr).Error("exchanging authorization code")
		return "", authErr
	}

	if token.RefreshToken == "" {
		return "", &AuthError{Message: "token endpoint did not return a refresh token, re-run with prompt=consent"}
	}

	m.store(token)

	return token.RefreshToken, nil
}
