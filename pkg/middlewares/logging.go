package middlewares

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/logging"
)

// RequestIDHeader carries the ID assigned to each request
const RequestIDHeader = "X-Request-ID"

var requestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "sdm_status_http_request_duration_seconds",
		Help:    "Status server request latency by method and response code",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method", "code"},
)

// MetricsCollectors returns the middleware collectors for registration
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{requestDuration, panicsTotal}
}

type responseWriterEx struct {
	http.ResponseWriter

	statusCode       int
	size             int
	logData          bool
	ctx              context.Context
	hasLoggedHeaders bool
}

func newResponseWriterEx(ctx context.Context, logData bool, rw http.ResponseWriter) responseWriterEx {
	return responseWriterEx{
		ResponseWriter: rw,
		statusCode:     http.StatusOK,
		logData:        logData,
		ctx:            ctx,
	}
}

func (rw *responseWriterEx) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriterEx) Write(b []byte) (int, error) {
	if rw.logData && !rw.hasLoggedHeaders {
		logging.Logger(rw.ctx).Debugf("wrote headers: %+v", rw.ResponseWriter.Header())
		rw.hasLoggedHeaders = true
	}

	size, err := rw.ResponseWriter.Write(b)
	rw.size += size

	if err == nil && rw.logData {
		logging.Logger(rw.ctx).Debugf("wrote %d bytes: %s", size, b[:size])
	}
	return size, err
}

// Wrapper around an io.ReadCloser that logs every read as a string
type loggingReader struct {
	io.ReadCloser
	ctx context.Context
}

func newLoggingReader(ctx context.Context, rc io.ReadCloser) io.ReadCloser {
	return loggingReader{
		ReadCloser: rc,
		ctx:        ctx,
	}
}

func (lr loggingReader) Read(b []byte) (size int, err error) {
	size, err = lr.ReadCloser.Read(b)
	if size > 0 {
		logging.Logger(lr.ctx).Debugf("read %d bytes: --:--%s--:--", size, b[:size])
	}

	return size, err
}

type LoggingMw struct {
	logRequests bool
	next        http.Handler
}

// Called once
func NewLoggingMw(reqLogging bool) mux.MiddlewareFunc {
	// Called each request
	return func(next http.Handler) http.Handler {
		return NewLogging(reqLogging, next)
	}
}

func NewLogging(reqLogging bool, next http.Handler) *LoggingMw {
	return &LoggingMw{next: next, logRequests: reqLogging}
}

func (mw *LoggingMw) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	startTime := time.Now()

	// Set the output header now before something writes any response body
	rw.Header().Set(RequestIDHeader, requestID)

	// Save the request ID to the request context for use in the logger
	r = r.WithContext(logging.WithRequestID(r.Context(), requestID))

	// Replace the Body reader with a logging wrapper if we're logging requests
	if mw.logRequests {
		logging.Logger(r.Context()).Debugf("request headers: %+v", r.Header)
		r.Body = newLoggingReader(r.Context(), r.Body)
	}

	// wrap the request writer so we can capture the status code and size
	rwex := newResponseWriterEx(r.Context(), mw.logRequests, rw)
	mw.next.ServeHTTP(&rwex, r)

	duration := time.Since(startTime)
	requestDuration.WithLabelValues(r.Method, strconv.Itoa(rwex.statusCode)).Observe(duration.Seconds())

	fields := logrus.Fields{
		"entrytype": "audit",
		"status":    rwex.statusCode,
		"method":    r.Method,
		"proto":     r.Proto,
		"host":      r.Host,
		"remote":    r.RemoteAddr,
		"start":     startTime.Format(time.RFC3339Nano),
		"duration":  duration,
		"path":      r.URL.String(),
		"reqid":     requestID,
		"size":      rwex.size,
	}
	// set by the correlation middleware further down the chain
	if corrID := rw.Header().Get(CorrelationIDHeader); corrID != "" {
		fields["corrid"] = corrID
	}

	logrus.WithFields(fields).Info(http.StatusText(rwex.statusCode))
}
