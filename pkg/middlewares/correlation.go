package middlewares

import (
	"net/http"
	"regexp"

	"github.com/gorilla/mux"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/logging"
)

// CorrelationIDHeader carries a caller's ID for tying status server requests
// to the caller's own logs
const CorrelationIDHeader = "X-Correlation-ID"

var correlationIDRegexp = regexp.MustCompile(`^[\w-]{3,64}$`)

// BadCorrelationID replaces a correlation ID that fails validation
const BadCorrelationID = "<Bad_Correlation_Id>"

// CorrelationMw echoes the caller's correlation ID and tags the request's
// log lines with it.  A caller that sends none gets the request ID instead,
// so must run after the logging middleware.
type CorrelationMw struct {
	headerName string
	next       http.Handler
}

func NewCorrelationMw(headerName string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return NewCorrelation(headerName, next)
	}
}

func NewCorrelation(headerName string, next http.Handler) *CorrelationMw {
	return &CorrelationMw{headerName: headerName, next: next}
}

func (mw *CorrelationMw) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	id, ok := mw.validateID(r)
	if !ok {
		id, ok = logging.RequestID(r.Context())
	}

	if ok {
		rw.Header().Set(mw.headerName, id)
		r = r.WithContext(logging.WithCorrelationID(r.Context(), id))
	}

	mw.next.ServeHTTP(rw, r)
}

func (mw *CorrelationMw) validateID(r *http.Request) (string, bool) {
	hn := http.CanonicalHeaderKey(mw.headerName)
	ids, ok := r.Header[hn]

	// Validate the ID if it was supplied
	if ok {
		id := ids[0]
		if correlationIDRegexp.MatchString(id) {
			return id, true
		}

		logging.Logger(r.Context()).Debugf("rejecting correlation ID %q", id)
		return BadCorrelationID, true
	}

	return "", false
}
