// Package handler provides the service endpoints and middleware surrounding
// the Slack request verifier.
package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/m-lab/slackhook/metrics"
	"github.com/m-lab/slackhook/static"
)

func init() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(log.InfoLevel)
}

// ReadyChecker reports whether a dependency is able to serve requests.
type ReadyChecker interface {
	Ping() error
}

// Client contains state needed for the service endpoints.
type Client struct {
	checks map[string]ReadyChecker
}

// NewClient creates a new client. Ready reports an error when any of the named
// checks fails.
func NewClient(checks map[string]ReadyChecker) *Client {
	return &Client{checks: checks}
}

// Live is a minimal handler to indicate that the server is operating at all.
func (c *Client) Live(rw http.ResponseWriter, req *http.Request) {
	fmt.Fprintf(rw, "ok")
}

// Ready reports whether the server is working as expected and ready to serve requests.
func (c *Client) Ready(rw http.ResponseWriter, req *http.Request) {
	for name, check := range c.checks {
		if err := check.Ping(); err != nil {
			log.WithError(err).WithField("check", name).Warn("readiness check failed")
			rw.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(rw, "not ready")
			return
		}
	}
	fmt.Fprintf(rw, "ok")
}

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Logging is a middleware that assigns a request id, logs the outcome of every
// request and records its latency.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		start := time.Now()
		id := req.Header.Get(static.HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
			req.Header.Set(static.HeaderRequestID, id)
		}
		rw.Header().Set(static.HeaderRequestID, id)

		rec := &statusRecorder{ResponseWriter: rw}
		next.ServeHTTP(rec, req)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		elapsed := time.Since(start)
		metrics.RequestHandlerDuration.WithLabelValues(req.URL.Path, strconv.Itoa(rec.status)).Observe(elapsed.Seconds())
		log.WithFields(log.Fields{
			"request_id": id,
			"method":     req.Method,
			"path":       req.URL.Path,
			"status":     rec.status,
			"duration":   elapsed.String(),
		}).Info("handled request")
	})
}
