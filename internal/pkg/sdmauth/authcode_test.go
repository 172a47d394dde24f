package sdmauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthCodeURL(t *testing.T) {
	m := NewManager(testCreds)

	u, err := url.Parse(m.AuthCodeURL("https://localhost/callback", "state-123"))
	require.NoError(t, err)

	assert.Equal(t, "nestservices.google.com", u.Host)
	assert.Equal(t, "/partnerconnections/project-id/auth", u.Path)

	q := u.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "https://localhost/callback", q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, SDMScope, q.Get("scope"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
}

func TestExchangeCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		assert.Equal(t, "https://localhost/callback", r.PostForm.Get("redirect_uri"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))

		writeJSON(w, http.StatusOK, `{"access_token":"first-access","refresh_token":"new-refresh","expires_in":3599}`)
	}))
	defer server.Close()

	m := newTestManager(server)

	refresh, err := m.ExchangeCode(context.Background(), "https://localhost/callback", "the-code")
	require.NoError(t, err)
	assert.Equal(t, "new-refresh", refresh)
	assert.Equal(t, "first-access", m.Token().Value)
}

func TestExchangeCodeFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") == "no-refresh" {
			writeJSON(w, http.StatusOK, `{"access_token":"a","expires_in":3599}`)
			return
		}
		writeJSON(w, http.StatusBadRequest, `{"error":"invalid_grant","error_description":"Malformed auth code."}`)
	}))
	defer server.Close()

	m := newTestManager(server)

	_, err := m.ExchangeCode(context.Background(), "https://localhost/callback", "")
	assert.Error(t, err)

	_, err = m.ExchangeCode(context.Background(), "https://localhost/callback", "bad")
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusBadRequest, authErr.StatusCode)
	assert.Equal(t, "invalid_grant", authErr.Code)
	assert.Equal(t, "Malformed auth code.", authErr.Message)

	_, err = m.ExchangeCode(context.Background(), "https://localhost/callback", "no-refresh")
	require.True(t, errors.As(err, &authErr))
	assert.Contains(t, authErr.Message, "refresh token")
}
