package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	v1 "github.com/m-lab/slackhook/api/v1"
	"github.com/m-lab/slackhook/metrics"
	"github.com/m-lab/slackhook/static"
)

// Forwarder posts events as JSON to a backend URL. The backend status code,
// body, and Content-Type become the dispatch Result.
type Forwarder struct {
	target *url.URL
	client *http.Client
}

// NewForwarder creates a Forwarder posting to target with the given client.
// A nil client uses a client with static.ForwardTimeout.
func NewForwarder(target *url.URL, client *http.Client) *Forwarder {
	if client == nil {
		client = &http.Client{Timeout: static.ForwardTimeout}
	}
	return &Forwarder{
		target: target,
		client: client,
	}
}

// Dispatch forwards ev to the backend. A backend answering 404 declines the
// event and Dispatch returns a nil Result.
func (f *Forwarder) Dispatch(ctx context.Context, ev *v1.Event) (*v1.Result, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.target.String(), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", static.ContentTypeJSON)
	if id := ev.Header.Get(static.HeaderRequestID); id != "" {
		req.Header.Set(static.HeaderRequestID, id)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		metrics.ForwardRequestsTotal.WithLabelValues("transport error").Inc()
		return nil, fmt.Errorf("failed to forward event %s: %w", ev.ID, err)
	}
	defer resp.Body.Close()
	metrics.ForwardRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read backend response for event %s: %w", ev.ID, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode == http.StatusNoContent:
		return &v1.Result{Status: http.StatusOK}, nil
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("backend returned %d for event %s", resp.StatusCode, ev.ID)
	}

	result := &v1.Result{Status: resp.StatusCode}
	if len(body) > 0 {
		result.Content = string(body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		result.Header = http.Header{"Content-Type": []string{ct}}
	}
	return result, nil
}
