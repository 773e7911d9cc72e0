// Package memorystore appends values to Redis lists. It backs the queue
// dispatcher, which hands verified Slack events to asynchronous workers.
package memorystore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gomodule/redigo/redis"
	log "github.com/sirupsen/logrus"

	"github.com/m-lab/slackhook/metrics"
)

// Client reads and writes JSON values in Redis lists.
type Client struct {
	pool *redis.Pool
}

// NewClient returns a new Client that reads and writes data in Redis.
func NewClient(pool *redis.Pool) *Client {
	return &Client{pool}
}

// NewPool creates a Redis connection pool for the given address.
func NewPool(address string, maxIdle int, idleTimeout time.Duration) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     maxIdle,
		IdleTimeout: idleTimeout,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", address)
		},
	}
}

// Push appends the JSON encoding of value to the list stored at key using the
// `RPUSH key value` command. It returns the length of the list after the push.
func (c *Client) Push(key string, value interface{}) (int, error) {
	t := time.Now()
	conn := c.pool.Get()
	defer conn.Close()

	b, err := json.Marshal(value)
	if err != nil {
		metrics.MemorystoreRequestDuration.WithLabelValues("RPUSH", "marshal error").Observe(time.Since(t).Seconds())
		return 0, err
	}

	n, err := redis.Int(conn.Do("RPUSH", key, b))
	if err != nil {
		metrics.MemorystoreRequestDuration.WithLabelValues("RPUSH", "RPUSH error").Observe(time.Since(t).Seconds())
		return 0, err
	}

	metrics.MemorystoreRequestDuration.WithLabelValues("RPUSH", "OK").Observe(time.Since(t).Seconds())
	return n, nil
}

// Ping checks that Redis is reachable.
func (c *Client) Ping() error {
	conn := c.pool.Get()
	defer conn.Close()

	_, err := conn.Do("PING")
	return err
}

// WaitReady pings Redis until it answers, backing off exponentially between
// attempts. It gives up after maxElapsed or when ctx is done.
func (c *Client) WaitReady(ctx context.Context, maxElapsed time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed
	op := func() error {
		err := c.Ping()
		if err != nil {
			log.WithError(err).Warn("memorystore not ready (will retry)")
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}
