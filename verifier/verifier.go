// Package verifier authenticates inbound Slack requests and dispatches them to
// application logic.
//
// A Verifier is an http.Handler. For every request it reads the raw body once,
// checks the request timestamp and the HMAC-SHA256 signature computed with the
// shared signing secret, decodes the form-encoded JSON payload, and hands the
// resulting event to a Dispatcher. The dispatcher's Result becomes the HTTP
// response.
//
// Responses by outcome:
//
//	Condition                          | Status          | Dispatched
//	-----------------------------------------------------------------
//	body read or payload decode error  | 500             | no
//	stale timestamp or bad signature   | 404             | no
//	ssl_check probe                    | 200             | no
//	dispatcher returns an error        | 500             | yes
//	dispatcher returns no final status | 404             | yes
//	dispatcher returns a result        | Result.Status   | yes
//
// Error text is only written to 500 responses in the Development environment.
package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	v1 "github.com/m-lab/slackhook/api/v1"
	"github.com/m-lab/slackhook/metrics"
	"github.com/m-lab/slackhook/rawbody"
	"github.com/m-lab/slackhook/static"
)

var (
	// ErrDecodePayload is returned when a verified body is not a form with a
	// single JSON "payload" field.
	ErrDecodePayload = errors.New("failed to decode payload")

	// ErrEmptyResult describes a dispatch that produced no usable result.
	ErrEmptyResult = errors.New("dispatcher returned no usable result")

	errNoSecret     = errors.New("signing secret is empty")
	errNoDispatcher = errors.New("dispatcher is nil")
)

// Environment controls whether internal error text is exposed in responses.
type Environment string

// Supported environments.
const (
	Production  Environment = "production"
	Development Environment = "development"
)

// ParseEnvironment converts s to an Environment. The empty string is Production.
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(s) {
	case "", Production:
		return Production, nil
	case Development:
		return Development, nil
	}
	return "", fmt.Errorf("unknown environment %q", s)
}

// Dispatcher handles verified events. A nil Result with a nil error means the
// dispatcher declined the event.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev *v1.Event) (*v1.Result, error)
}

// Config contains the settings of a Verifier. It is not modified after New.
type Config struct {
	// Secret is the Slack signing secret.
	Secret []byte

	// Dispatcher receives every verified, non-probe event.
	Dispatcher Dispatcher

	// Environment defaults to Production.
	Environment Environment

	// Reader defaults to rawbody.StreamReader.
	Reader rawbody.Reader

	// Now defaults to time.Now.
	Now func() time.Time
}

// Verifier is an http.Handler implementing request verification and dispatch.
type Verifier struct {
	secret     []byte
	dispatcher Dispatcher
	env        Environment
	reader     rawbody.Reader
	now        func() time.Time
}

// New creates a new Verifier from cfg.
func New(cfg Config) (*Verifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, errNoSecret
	}
	if cfg.Dispatcher == nil {
		return nil, errNoDispatcher
	}
	env, err := ParseEnvironment(string(cfg.Environment))
	if err != nil {
		return nil, err
	}
	v := &Verifier{
		secret:     append([]byte(nil), cfg.Secret...),
		dispatcher: cfg.Dispatcher,
		env:        env,
		reader:     cfg.Reader,
		now:        cfg.Now,
	}
	if v.reader == nil {
		v.reader = rawbody.StreamReader{}
	}
	if v.now == nil {
		v.now = time.Now
	}
	return v, nil
}

// outcome classifies the result of a dispatch.
type outcome int

const (
	dispatchOK outcome = iota
	dispatchErr
	dispatchEmpty
)

func (o outcome) String() string {
	switch o {
	case dispatchOK:
		return "ok"
	case dispatchErr:
		return "error"
	}
	return "empty"
}

// ServeHTTP verifies, decodes and dispatches a Slack request. Exactly one
// response is written on every path.
func (v *Verifier) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	rw.Header().Set(static.HeaderPoweredBy, static.PoweredBy())
	logger := log.WithField("request_id", req.Header.Get(static.HeaderRequestID))

	body, err := v.reader.Read(req)
	if err != nil {
		logger.WithError(err).Warn("failed to read request body")
		v.fail(rw, "read_error", err)
		return
	}

	if err := Check(v.secret, req.Header, body, v.now()); err != nil {
		reason := failureReason(err)
		logger.WithField("reason", reason).Info("rejected request")
		metrics.VerificationFailuresTotal.WithLabelValues(reason).Inc()
		writeEmpty(rw, http.StatusNotFound, "auth_failure")
		return
	}

	payload, err := DecodePayload(body)
	if err != nil {
		logger.WithError(err).Warn("failed to decode verified payload")
		v.fail(rw, "decode_error", err)
		return
	}
	if payload.IsSSLCheck() {
		writeEmpty(rw, http.StatusOK, "ssl_check")
		return
	}

	// Check already parsed the timestamp successfully.
	ts, _ := Timestamp(req.Header)
	ev := &v1.Event{
		ID:        uuid.NewString(),
		Timestamp: ts,
		RawBody:   string(body),
		Payload:   payload,
		Header:    eventHeader(req.Header),
	}
	logger = logger.WithFields(log.Fields{"event_id": ev.ID, "type": payload.Type()})

	result, o, err := v.dispatch(req.Context(), ev)
	switch o {
	case dispatchErr:
		logger.WithError(err).Error("dispatch failed")
		v.fail(rw, "handler_error", err)
		return
	case dispatchEmpty:
		logger.Info("dispatcher declined event")
		writeEmpty(rw, http.StatusNotFound, "handler_empty")
		return
	}

	if err := writeResult(rw, result); err != nil {
		logger.WithError(err).Error("failed to encode dispatch result")
		v.fail(rw, "encode_error", err)
		return
	}
	metrics.RequestsTotal.WithLabelValues("dispatched", strconv.Itoa(result.Status)).Inc()
}

// dispatch invokes the dispatcher and classifies its answer. A panicking
// dispatcher is reported as an error. Informational statuses cannot end a
// response, so only 200-999 count as a result.
func (v *Verifier) dispatch(ctx context.Context, ev *v1.Event) (result *v1.Result, o outcome, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result, o, err = nil, dispatchErr, fmt.Errorf("dispatcher panic: %v", r)
		}
		metrics.DispatchDuration.WithLabelValues(o.String()).Observe(time.Since(start).Seconds())
	}()

	result, err = v.dispatcher.Dispatch(ctx, ev)
	switch {
	case err != nil:
		return nil, dispatchErr, err
	case result == nil:
		return nil, dispatchEmpty, ErrEmptyResult
	case result.Status < 200 || result.Status > 999:
		return nil, dispatchEmpty, fmt.Errorf("%w: status %d", ErrEmptyResult, result.Status)
	}
	return result, dispatchOK, nil
}

// fail writes a 500 response. The error text is included only in Development.
func (v *Verifier) fail(rw http.ResponseWriter, label string, err error) {
	metrics.RequestsTotal.WithLabelValues(label, strconv.Itoa(http.StatusInternalServerError)).Inc()
	rw.WriteHeader(http.StatusInternalServerError)
	if v.env == Development {
		io.WriteString(rw, err.Error())
	}
}

func writeEmpty(rw http.ResponseWriter, status int, label string) {
	metrics.RequestsTotal.WithLabelValues(label, strconv.Itoa(status)).Inc()
	rw.WriteHeader(status)
}

// writeResult writes the dispatcher result. String content is written
// verbatim, other content as JSON. Result headers never replace the
// X-Slack-Powered-By header.
func writeResult(rw http.ResponseWriter, result *v1.Result) error {
	var body []byte
	isJSON := false
	switch c := result.Content.(type) {
	case nil:
	case string:
		body = []byte(c)
	default:
		b, err := json.Marshal(c)
		if err != nil {
			return err
		}
		body = b
		isJSON = true
	}

	h := rw.Header()
	for key, values := range result.Header {
		if http.CanonicalHeaderKey(key) == static.HeaderPoweredBy {
			continue
		}
		h.Del(key)
		for _, value := range values {
			h.Add(key, value)
		}
	}
	if isJSON {
		h.Set("Content-Type", static.ContentTypeJSON)
	}
	rw.WriteHeader(result.Status)
	_, err := rw.Write(body)
	// The status is committed, so a failed write only affects the connection.
	if err != nil {
		log.WithError(err).Debug("failed to write response body")
	}
	return nil
}

// DecodePayload decodes a verified request body. The body is a form with a
// single "payload" field holding JSON. A body carrying only a top-level
// "ssl_check" field decodes to a probe payload.
func DecodePayload(body []byte) (v1.Payload, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodePayload, err)
	}
	values, ok := form[static.PayloadField]
	if !ok {
		if probe := form.Get(static.SSLCheckField); probe != "" {
			return v1.Payload{static.SSLCheckField: probe}, nil
		}
		return nil, fmt.Errorf("%w: missing %q field", ErrDecodePayload, static.PayloadField)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%w: %d %q fields", ErrDecodePayload, len(values), static.PayloadField)
	}
	var p v1.Payload
	if err := json.Unmarshal([]byte(values[0]), &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodePayload, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: payload is null", ErrDecodePayload)
	}
	return p, nil
}

// forwardedHeaders are copied into Event.Header.
var forwardedHeaders = []string{
	static.HeaderTimestamp,
	static.HeaderRequestID,
	"Content-Type",
	"User-Agent",
	"X-Slack-Retry-Num",
	"X-Slack-Retry-Reason",
}

func eventHeader(h http.Header) http.Header {
	out := http.Header{}
	for _, key := range forwardedHeaders {
		if values := h.Values(key); len(values) > 0 {
			out[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
		}
	}
	return out
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingHeader):
		return "missing_header"
	case errors.Is(err, ErrMalformedTimestamp):
		return "malformed_timestamp"
	case errors.Is(err, ErrStaleTimestamp):
		return "stale_timestamp"
	case errors.Is(err, ErrMalformedSignature):
		return "malformed_signature"
	case errors.Is(err, ErrSignatureMismatch):
		return "signature_mismatch"
	}
	return "unknown"
}
