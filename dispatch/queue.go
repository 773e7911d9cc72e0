package dispatch

import (
	"context"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	v1 "github.com/m-lab/slackhook/api/v1"
)

// Pusher appends values to a named list.
type Pusher interface {
	Push(key string, value interface{}) (int, error)
}

// Queue appends every event to a list and acknowledges it with an empty
// 200 response. Workers consuming the list answer Slack through the payload
// response_url.
type Queue struct {
	store Pusher
	key   string
}

// NewQueue creates a Queue writing to the list named key.
func NewQueue(store Pusher, key string) *Queue {
	return &Queue{
		store: store,
		key:   key,
	}
}

// Dispatch pushes ev onto the queue.
func (q *Queue) Dispatch(ctx context.Context, ev *v1.Event) (*v1.Result, error) {
	n, err := q.store.Push(q.key, ev)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue event %s: %w", ev.ID, err)
	}
	log.WithFields(log.Fields{"event_id": ev.ID, "queue": q.key, "length": n}).Debug("enqueued event")
	return &v1.Result{Status: http.StatusOK}, nil
}
