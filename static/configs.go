// Package static contains static information for the slackhook service.
package static

import (
	"runtime"
	"time"
)

// Version of the slackhook service reported in the X-Slack-Powered-By header.
var Version = "0.3.0"

// Constants describing the Slack request signing protocol and the responses
// produced by the slackhook service.
const (
	// SignatureVersion prefixes both the signing base string and the
	// signature header value, e.g. "v0=<hex>".
	SignatureVersion = "v0"

	HeaderTimestamp = "X-Slack-Request-Timestamp"
	HeaderSignature = "X-Slack-Signature"
	HeaderPoweredBy = "X-Slack-Powered-By"
	HeaderRequestID = "X-Request-Id"

	// FreshnessTolerance bounds the allowed distance between the request
	// timestamp and the local clock, in either direction.
	FreshnessTolerance = 5 * time.Minute

	// PayloadField is the single form field carrying the URL-encoded JSON.
	PayloadField = "payload"

	// SSLCheckField marks a liveness probe sent by Slack.
	SSLCheckField = "ssl_check"

	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"

	ForwardTimeout        = 10 * time.Second
	RedisQueueKey         = "slackhook:events"
	RedisMaxIdle          = 3
	RedisIdleTimeout      = 240 * time.Second
	RedisStartupTimeout   = time.Minute
	SecretVersionsPerPage = 1000
)

// PoweredBy returns the value of the X-Slack-Powered-By header.
func PoweredBy() string {
	return "m-lab:slackhook/" + Version + " go/" + runtime.Version()
}
