package middlewares

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/logging"
)

// corsMaxAge is how long browsers may cache a preflight result, in seconds
const corsMaxAge = 600

type CorsMw struct {
	h http.Handler
}

// NewCorsMw lets pages from origins read thermostat views and post commands.
// Browsers may send a correlation ID and read back the request and
// correlation IDs.
func NewCorsMw(origins []string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return NewCors(origins, next)
	}
}

// corsLogger sends rs/cors decisions to the debug log
type corsLogger struct{}

func (corsLogger) Printf(format string, args ...interface{}) {
	logging.Logger(nil).Debugf("cors: "+format, args...)
}

func NewCors(origins []string, next http.Handler) *CorsMw {
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", CorrelationIDHeader},
		ExposedHeaders: []string{RequestIDHeader, CorrelationIDHeader},
		MaxAge:         corsMaxAge,
	})
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		c.Log = corsLogger{}
	}

	return &CorsMw{
		h: c.Handler(next),
	}
}

// This should be the first Middleware in the chain
//
func (mw *CorsMw) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	mw.h.ServeHTTP(rw, r)
}
