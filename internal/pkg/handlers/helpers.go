package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	oaerrors "github.com/go-openapi/errors"
	"github.com/go-openapi/runtime/middleware/header"
	"github.com/pkg/errors"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/logging"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/sdmapi"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/sdmauth"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/thermostat"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/traits"
)

// 100kb max body
const maxBodySize = 100 * 1024

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.Header.Get("Content-Type") != "" {
		value, _ := header.ParseValueAndParams(r.Header, "Content-Type")
		if value != "application/json" {
			return oaerrors.New(http.StatusUnsupportedMediaType, "expected JSON request, got %s", value)
		}
	}

	reader := http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(reader)

	if err := dec.Decode(dst); err != nil {
		return oaerrors.New(http.StatusBadRequest, "unable to parse JSON: %s", err)
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return oaerrors.New(http.StatusBadRequest, "request body must only contain a single JSON object")
	}

	return nil
}

func sendJSONResponse(w http.ResponseWriter, r *http.Request, status int, d interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	if err := enc.Encode(d); err != nil {
		logging.Logger(r.Context()).WithError(err).Error("sending json response")
	}
}

// apiError maps library errors onto HTTP errors for the response body
func apiError(err error) error {
	var (
		oaErr      oaerrors.Error
		validErr   *traits.ValidationError
		typeErr    *thermostat.DeviceTypeError
		httpErr    *sdmapi.HTTPError
		timeoutErr *sdmapi.TimeoutError
		authErr    *sdmauth.AuthError
	)

	switch {
	case errors.As(err, &oaErr):
		return oaErr
	case errors.As(err, &validErr):
		return oaerrors.New(http.StatusUnprocessableEntity, "%s", validErr)
	case errors.As(err, &typeErr):
		return oaerrors.New(http.StatusUnprocessableEntity, "%s", typeErr)
	case errors.As(err, &httpErr):
		return oaerrors.New(http.StatusBadGateway, "SDM API: %s", httpErr.Message)
	case errors.As(err, &timeoutErr):
		return oaerrors.New(http.StatusGatewayTimeout, "%s", timeoutErr)
	case errors.As(err, &authErr):
		return oaerrors.New(http.StatusBadGateway, "%s", authErr)
	}

	return oaerrors.New(http.StatusInternalServerError, "%s", err)
}

func sendError(w http.ResponseWriter, r *http.Request, err error) {
	logging.Logger(r.Context()).WithError(err).Warn("request failed")
	oaerrors.ServeError(w, r, apiError(err))
}
