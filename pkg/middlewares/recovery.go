package middlewares

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/go-openapi/errors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/logging"
)

var panicsTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "sdm_status_http_panics_total",
	Help: "Status server handler panics recovered",
})

type RecoveryMw struct {
	next http.Handler
}

func NewRecoveryMw() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return NewRecovery(next)
	}
}

func NewRecovery(next http.Handler) *RecoveryMw {
	return &RecoveryMw{next: next}
}

// ServeHTTP turns a panic in the handler chain into a JSON 500 response that
// quotes the request ID, so the failure can be found in the log.
// http.ErrAbortHandler is passed on to the server.
func (mw *RecoveryMw) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	defer func() {
		err := recover()
		if err == nil {
			return
		}
		if err == http.ErrAbortHandler {
			panic(err)
		}

		panicsTotal.Inc()
		logging.Logger(r.Context()).
			WithField("method", r.Method).
			WithField("path", r.URL.Path).
			Errorf("caught panic: %v : %s", err, debug.Stack())

		msg := http.StatusText(http.StatusInternalServerError)
		if id, ok := logging.RequestID(r.Context()); ok {
			msg = fmt.Sprintf("%s (request %s)", msg, id)
		}
		errors.ServeError(rw, r, errors.New(http.StatusInternalServerError, "%s", msg))
	}()

	mw.next.ServeHTTP(rw, r)
}
