package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/alicebob/miniredis"
	"github.com/go-test/deep"
	"github.com/m-lab/go/testingx"
	log "github.com/sirupsen/logrus"

	v1 "github.com/m-lab/slackhook/api/v1"
	"github.com/m-lab/slackhook/memorystore"
	"github.com/m-lab/slackhook/static"
)

func init() {
	// Disable most logs for unit tests.
	log.SetLevel(log.FatalLevel)
}

func fakeEvent() *v1.Event {
	return &v1.Event{
		ID:        "6d1c0fd4-2a57-4c1e-9e5c-5f5b0d0c8a11",
		Timestamp: 1531420618,
		RawBody:   "payload=%7B%22type%22%3A%22block_actions%22%7D",
		Payload:   v1.Payload{"type": "block_actions"},
		Header:    http.Header{static.HeaderRequestID: []string{"req-1"}},
	}
}

func TestFunc_Dispatch(t *testing.T) {
	want := v1.NewResult(http.StatusOK, "hello")
	var got *v1.Event
	f := Func(func(ctx context.Context, ev *v1.Event) (*v1.Result, error) {
		got = ev
		return want, nil
	})
	ev := fakeEvent()
	r, err := f.Dispatch(context.Background(), ev)
	if err != nil {
		t.Fatalf("Func.Dispatch() error = %v", err)
	}
	if r != want || got != ev {
		t.Errorf("Func.Dispatch() did not pass through event and result")
	}
}

type fakePusher struct {
	key    string
	values []interface{}
	err    error
}

func (p *fakePusher) Push(key string, value interface{}) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	p.key = key
	p.values = append(p.values, value)
	return len(p.values), nil
}

func TestQueue_Dispatch(t *testing.T) {
	tests := []struct {
		name    string
		pusher  *fakePusher
		want    *v1.Result
		wantErr bool
	}{
		{
			name:   "success",
			pusher: &fakePusher{},
			want:   &v1.Result{Status: http.StatusOK},
		},
		{
			name:    "error-push",
			pusher:  &fakePusher{err: errors.New("fake push error")},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueue(tt.pusher, "events")
			got, err := q.Dispatch(context.Background(), fakeEvent())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Queue.Dispatch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := deep.Equal(got, tt.want); diff != nil {
				t.Errorf("Queue.Dispatch() result differs: %v", diff)
			}
			if !tt.wantErr && (tt.pusher.key != "events" || len(tt.pusher.values) != 1) {
				t.Errorf("Queue.Dispatch() pushed %d values to %q", len(tt.pusher.values), tt.pusher.key)
			}
		})
	}
}

func TestQueue_DispatchMiniredis(t *testing.T) {
	m, err := miniredis.Run()
	testingx.Must(t, err, "failed to start miniredis")
	defer m.Close()

	store := memorystore.NewClient(memorystore.NewPool(m.Addr(), 1, 0))
	q := NewQueue(store, static.RedisQueueKey)
	ev := fakeEvent()
	_, err = q.Dispatch(context.Background(), ev)
	testingx.Must(t, err, "failed to dispatch")

	stored, err := m.List(static.RedisQueueKey)
	testingx.Must(t, err, "failed to read queue")
	if len(stored) != 1 {
		t.Fatalf("queue length = %d, want 1", len(stored))
	}
	got := &v1.Event{}
	testingx.Must(t, json.Unmarshal([]byte(stored[0]), got), "failed to unmarshal event")
	if diff := deep.Equal(got, ev); diff != nil {
		t.Errorf("queued event differs: %v", diff)
	}
}

func TestForwarder_Dispatch(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		want        *v1.Result
		wantErr     bool
	}{
		{
			name:        "success-json",
			status:      http.StatusOK,
			contentType: "application/json",
			body:        `{"text":"thanks"}`,
			want: &v1.Result{
				Status:  http.StatusOK,
				Content: `{"text":"thanks"}`,
				Header:  http.Header{"Content-Type": []string{"application/json"}},
			},
		},
		{
			name:   "success-no-content",
			status: http.StatusNoContent,
			want:   &v1.Result{Status: http.StatusOK},
		},
		{
			name:   "declined",
			status: http.StatusNotFound,
			want:   nil,
		},
		{
			name:    "error-backend",
			status:  http.StatusBadGateway,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var received v1.Event
			var requestID string
			srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
				b, _ := io.ReadAll(req.Body)
				json.Unmarshal(b, &received)
				requestID = req.Header.Get(static.HeaderRequestID)
				if tt.contentType != "" {
					rw.Header().Set("Content-Type", tt.contentType)
				}
				rw.WriteHeader(tt.status)
				io.WriteString(rw, tt.body)
			}))
			defer srv.Close()

			u, err := url.Parse(srv.URL)
			testingx.Must(t, err, "failed to parse url")
			f := NewForwarder(u, nil)
			ev := fakeEvent()
			got, err := f.Dispatch(context.Background(), ev)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Forwarder.Dispatch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := deep.Equal(got, tt.want); diff != nil {
				t.Errorf("Forwarder.Dispatch() result differs: %v", diff)
			}
			if received.ID != ev.ID || received.Payload.Type() != "block_actions" {
				t.Errorf("Forwarder.Dispatch() backend received %#v", received)
			}
			if requestID != "req-1" {
				t.Errorf("Forwarder.Dispatch() request id = %q, want req-1", requestID)
			}
		})
	}
}

func TestForwarder_DispatchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	u, err := url.Parse(srv.URL)
	testingx.Must(t, err, "failed to parse url")
	srv.Close()

	f := NewForwarder(u, nil)
	if _, err := f.Dispatch(context.Background(), fakeEvent()); err == nil {
		t.Error("Forwarder.Dispatch() error = nil, want transport error")
	}
}
