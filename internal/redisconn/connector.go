// Package redisconn dials Redis once per process and shares the in-flight
// attempt between concurrent callers.
package redisconn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Dialer builds a client from options. Replaced in tests.
type Dialer func(opts *redis.Options) redis.UniversalClient

// Connector hands out a single verified client. Failed attempts are not
// cached; the next caller starts a fresh attempt.
type Connector struct {
	opts        *redis.Options
	dial        Dialer
	pingTimeout time.Duration

	group singleflight.Group

	mu     sync.Mutex
	client redis.UniversalClient
}

// New parses a redis:// URL into a Connector.
func New(url string, pingTimeout time.Duration) (*Connector, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redisconn: parse url: %w", err)
	}
	return NewWithOptions(opts, nil, pingTimeout), nil
}

// NewWithOptions creates a Connector from explicit options. A nil dial uses
// redis.NewClient.
func NewWithOptions(opts *redis.Options, dial Dialer, pingTimeout time.Duration) *Connector {
	if dial == nil {
		dial = func(o *redis.Options) redis.UniversalClient { return redis.NewClient(o) }
	}
	if pingTimeout <= 0 {
		pingTimeout = 3 * time.Second
	}
	return &Connector{opts: opts, dial: dial, pingTimeout: pingTimeout}
}

// Client returns the shared client, dialing and pinging on first use.
func (c *Connector) Client(ctx context.Context) (redis.UniversalClient, error) {
	c.mu.Lock()
	if c.client != nil {
		cl := c.client
		c.mu.Unlock()
		return cl, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("connect", func() (any, error) {
		c.mu.Lock()
		if c.client != nil {
			cl := c.client
			c.mu.Unlock()
			return cl, nil
		}
		c.mu.Unlock()

		cl := c.dial(c.opts)
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.pingTimeout)
		defer cancel()
		if err := cl.Ping(pctx).Err(); err != nil {
			_ = cl.Close()
			return nil, fmt.Errorf("redisconn: ping: %w", err)
		}

		c.mu.Lock()
		c.client = cl
		c.mu.Unlock()
		return cl, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(redis.UniversalClient), nil
}

// Close closes the shared client if one was established.
func (c *Connector) Close() error {
	c.mu.Lock()
	cl := c.client
	c.client = nil
	c.mu.Unlock()
	if cl == nil {
		return nil
	}
	return cl.Close()
}
