package handlers

import (
	"fmt"
	"net/http"

	oaerrors "github.com/go-openapi/errors"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/logging"
)

/*
 * OauthHandler drives the SDM consent flow from a browser.  A request without
 * a code is redirected to the Nest partner connections page; the redirect back
 * carries the authorization code, which is handed to the waiting caller.
 */

// AuthCodeURLer builds the consent page URL
type AuthCodeURLer interface {
	AuthCodeURL(redirectURL, state string) string
}

type OauthHandler struct {
	auth        AuthCodeURLer
	redirectURL string
	state       string
	codes       chan<- string
}

func NewOauthHandler(auth AuthCodeURLer, redirectURL string, state string, codes chan<- string) *OauthHandler {
	return &OauthHandler{
		auth:        auth,
		redirectURL: redirectURL,
		state:       state,
		codes:       codes,
	}
}

func (h *OauthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logging.Logger(r.Context())
	query := r.URL.Query()

	if errCode := query.Get("error"); errCode != "" {
		ctxLogger.Warnf("Authorization refused: %s", errCode)
		sendError(w, r, oaerrors.New(http.StatusForbidden, "authorization refused: %s", errCode))
		return
	}

	code := query.Get("code")
	if code == "" {
		http.Redirect(w, r, h.auth.AuthCodeURL(h.redirectURL, h.state), http.StatusFound)
		return
	}

	if query.Get("state") != h.state {
		sendError(w, r, oaerrors.New(http.StatusBadRequest, "state mismatch"))
		return
	}

	select {
	case h.codes <- code:
		ctxLogger.Info("Received authorization code")
	default:
		ctxLogger.Warn("Ignoring repeated authorization code")
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "Authorization received, you can close this window.")
}
