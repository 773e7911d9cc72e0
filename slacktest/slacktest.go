// Package slacktest provides utilities for testing services that receive
// signed Slack requests.
package slacktest

import (
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	v1 "github.com/m-lab/slackhook/api/v1"
	"github.com/m-lab/slackhook/static"
	"github.com/m-lab/slackhook/verifier"
)

// FormBody returns the form-encoded request body carrying payload.
func FormBody(payload string) string {
	return static.PayloadField + "=" + url.QueryEscape(payload)
}

// NewRequest creates a POST request for target with body, signed with secret
// at time ts.
func NewRequest(target, secret string, ts time.Time, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	Sign(req.Header, secret, ts, body)
	return req
}

// Sign sets the timestamp and signature headers for body.
func Sign(h http.Header, secret string, ts time.Time, body string) {
	sec := strconv.FormatInt(ts.Unix(), 10)
	h.Set("Content-Type", static.ContentTypeForm)
	h.Set(static.HeaderTimestamp, sec)
	h.Set(static.HeaderSignature, verifier.Sign([]byte(secret), sec, []byte(body)))
}

// Dispatcher is a fake verifier.Dispatcher that records every event and
// returns the configured Result and Err.
type Dispatcher struct {
	Result *v1.Result
	Err    error

	mu     sync.Mutex
	events []*v1.Event
}

// Dispatch records ev and returns the pre-configured Result or Err.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *v1.Event) (*v1.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Result, nil
}

// Events returns the events dispatched so far.
func (d *Dispatcher) Events() []*v1.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*v1.Event(nil), d.events...)
}

// NewServer creates an httptest.Server verifying requests signed with secret
// at path "/slack/actions" and passing them to d. Useful for unit testing.
func NewServer(secret string, d verifier.Dispatcher) *httptest.Server {
	v, err := verifier.New(verifier.Config{
		Secret:      []byte(secret),
		Dispatcher:  d,
		Environment: verifier.Development,
	})
	if err != nil {
		panic(err)
	}
	mux := http.NewServeMux()
	mux.Handle("/slack/actions", v)

	srv := httptest.NewServer(mux)
	log.Println("Listening for signed Slack requests on " + srv.URL)
	return srv
}
