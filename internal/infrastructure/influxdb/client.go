package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/fieldsim/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize    = 100
	defaultFlushSeconds = 10
)

// ErrorHandler receives asynchronous batch write failures.
type ErrorHandler func(err error)

// Client exports samples to one InfluxDB bucket. Safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	closed      atomic.Bool
	onError     atomic.Pointer[ErrorHandler]
	writeErrors atomic.Uint64
}

// Connect builds a batching client for cfg and pings the server.
//
// Returns ErrDisabled when export is switched off, or an error wrapping
// ErrConnectionFailed when the server cannot be reached within
// connectTimeout or reports itself unhealthy.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize, flush := batchSettings(cfg)
	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(batchSize)). // #nosec G115 -- batchSettings returns positive values
		SetFlushInterval(uint(flush.Milliseconds()))
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := ping(pingCtx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
	}
	go c.forwardWriteErrors(c.writeAPI.Errors())
	return c, nil
}

// batchSettings resolves the configured batch size and flush interval,
// substituting defaults for non-positive values.
func batchSettings(cfg config.InfluxDBConfig) (int, time.Duration) {
	size := cfg.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	seconds := cfg.FlushInterval
	if seconds <= 0 {
		seconds = defaultFlushSeconds
	}
	return size, time.Duration(seconds) * time.Second
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return errors.New("server not healthy")
	}
	return nil
}

// forwardWriteErrors runs until the write API closes its error channel.
func (c *Client) forwardWriteErrors(errs <-chan error) {
	for err := range errs {
		c.writeErrors.Add(1)
		if h := c.onError.Load(); h != nil {
			(*h)(err)
		}
	}
}

// usable reports whether the client has a live write API.
func (c *Client) usable() bool {
	return c.writeAPI != nil && !c.closed.Load()
}

// SetOnError installs h for batch write failures. A nil h clears it.
func (c *Client) SetOnError(h ErrorHandler) {
	if h == nil {
		c.onError.Store(nil)
		return
	}
	c.onError.Store(&h)
}

// WriteErrors returns how many batch writes have failed so far.
func (c *Client) WriteErrors() uint64 {
	return c.writeErrors.Load()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.usable() {
		return ErrNotConnected
	}
	checkCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(checkCtx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Flush blocks until buffered points are written. No-op once closed.
func (c *Client) Flush() {
	if !c.usable() {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes pending points and releases the client. Safe to call
// more than once; always returns nil.
func (c *Client) Close() error {
	if c.client == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
