// Package v1 defines the data exchanged between the slackhook verifier and the
// application logic it dispatches to.
//
// A verified Slack request is delivered as an Event. The dispatcher answers with
// a Result describing the HTTP response Slack should receive.
package v1

import (
	"net/http"

	"github.com/m-lab/slackhook/static"
)

// Payload is the decoded JSON value of the "payload" form field.
type Payload map[string]interface{}

// Type returns the payload "type" field, e.g. "interactive_message" or
// "block_actions". It is empty when absent or not a string.
func (p Payload) Type() string {
	s, _ := p["type"].(string)
	return s
}

// CallbackID returns the payload "callback_id" field, if any.
func (p Payload) CallbackID() string {
	s, _ := p["callback_id"].(string)
	return s
}

// ResponseURL returns the payload "response_url" field, if any.
func (p Payload) ResponseURL() string {
	s, _ := p["response_url"].(string)
	return s
}

// IsSSLCheck reports whether the payload is a Slack ssl_check liveness probe.
// Such payloads are acknowledged without being dispatched. The field marks a
// probe only when set: null, false, 0 and "" do not.
func (p Payload) IsSSLCheck() bool {
	switch v := p[static.SSLCheckField].(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	}
	return true
}

// Event is a verified and decoded Slack request.
type Event struct {
	// ID uniquely identifies this delivery within slackhook. It is not assigned
	// by Slack.
	ID string `json:"id"`

	// Timestamp is the value of the X-Slack-Request-Timestamp header.
	Timestamp int64 `json:"timestamp"`

	// RawBody is the request body exactly as received and signed.
	RawBody string `json:"raw_body"`

	// Payload is the decoded JSON value of the "payload" form field.
	Payload Payload `json:"payload"`

	// Header holds the request headers useful to downstream handlers. The
	// signature header is not included.
	Header http.Header `json:"header,omitempty"`
}

// Result is returned by a dispatcher and translated into the HTTP response.
type Result struct {
	// Status is the HTTP status code of the response.
	Status int `json:"status"`

	// Content is the optional response body. A string is written verbatim;
	// any other non-nil value is written as JSON.
	Content interface{} `json:"content,omitempty"`

	// Header contains additional response headers.
	Header http.Header `json:"header,omitempty"`
}

// NewResult creates a Result with the given status and content.
func NewResult(status int, content interface{}) *Result {
	return &Result{
		Status:  status,
		Content: content,
	}
}
