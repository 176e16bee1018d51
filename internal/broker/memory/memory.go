// Package memory is an in-process resource broker.
//
// A Hub owns one resource tree. Each application connects its own Client,
// which has its own subscriptions and notification channel, the way
// separate network clients of a real broker would. Content pushed by any
// client notifies every client subscribed to that container.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/fieldsim/internal/resource"
)

// DefaultNotificationBuffer bounds each client's notification channel.
const DefaultNotificationBuffer = 256

// Logger defines the logging interface used by the hub.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Hub is the shared in-process broker state.
type Hub struct {
	tree   *resource.Tree
	buffer int

	mu      sync.RWMutex
	clients map[*Client]struct{}

	logger Logger
}

// NewHub creates a hub whose tree has the given CSE bases. A buffer of
// zero or less selects DefaultNotificationBuffer.
func NewHub(buffer int, bases ...string) *Hub {
	if buffer <= 0 {
		buffer = DefaultNotificationBuffer
	}
	return &Hub{
		tree:    resource.NewTree(bases...),
		buffer:  buffer,
		clients: make(map[*Client]struct{}),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the hub and its clients.
func (h *Hub) SetLogger(logger Logger) {
	h.logger = logger
}

// Tree returns the hub's resource tree.
func (h *Hub) Tree() *resource.Tree {
	return h.tree
}

// Connect returns a new client of the hub.
func (h *Hub) Connect(name string) *Client {
	c := &Client{
		hub:           h,
		name:          name,
		subscriptions: make(map[string]struct{}),
		notifications: make(chan resource.Notification, h.buffer),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// notify fans a new content instance out to subscribed clients.
func (h *Hub) notify(path string, ci resource.ContentInstance) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.deliver(resource.Notification{
			ContainerPath: path,
			Payload:       ci.Payload,
			ReceivedAt:    ci.CreatedAt,
		})
	}
}

// Client is one application's connection to a Hub. It implements
// resource.Broker.
type Client struct {
	hub  *Hub
	name string

	// mu guards subscriptions and closed; deliver holds it while sending so
	// Close never closes the channel under a sender.
	mu            sync.Mutex
	subscriptions map[string]struct{}
	closed        bool
	notifications chan resource.Notification

	dropped atomic.Uint64
}

var _ resource.Broker = (*Client)(nil)

func (c *Client) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return resource.ErrClosed
	}
	return nil
}

// CreateResource implements resource.Broker.
func (c *Client) CreateResource(ctx context.Context, spec resource.Spec) (resource.Node, error) {
	if err := c.checkOpen(ctx); err != nil {
		return resource.Node{}, err
	}
	node, created, err := c.hub.tree.Create(spec)
	if err != nil {
		return resource.Node{}, err
	}
	if created {
		c.hub.logger.Debug("resource created", "client", c.name, "path", node.Path, "kind", node.Kind)
	}
	return node, nil
}

// PushContent implements resource.Broker.
func (c *Client) PushContent(ctx context.Context, containerPath string, payload []byte) error {
	if err := c.checkOpen(ctx); err != nil {
		return err
	}
	ci, err := c.hub.tree.Append(containerPath, payload)
	if err != nil {
		return fmt.Errorf("%w: %w", resource.ErrPush, err)
	}
	c.hub.notify(resource.Clean(containerPath), ci)
	return nil
}

// Discover implements resource.Broker.
func (c *Client) Discover(ctx context.Context, root string, labels []string) ([]resource.Node, error) {
	if err := c.checkOpen(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", resource.ErrDiscovery, err)
	}
	return c.hub.tree.Find(root, labels), nil
}

// Subscribe implements resource.Broker. Only existing containers can be
// subscribed.
func (c *Client) Subscribe(ctx context.Context, containerPath string) error {
	if err := c.checkOpen(ctx); err != nil {
		return fmt.Errorf("%w: %w", resource.ErrSubscription, err)
	}
	path := resource.Clean(containerPath)
	node, ok := c.hub.tree.Get(path)
	if !ok || node.Kind != resource.KindContainer {
		return fmt.Errorf("%w: %w: container %q", resource.ErrSubscription, resource.ErrNotFound, path)
	}

	c.mu.Lock()
	c.subscriptions[path] = struct{}{}
	c.mu.Unlock()
	return nil
}

// Unsubscribe implements resource.Broker.
func (c *Client) Unsubscribe(_ context.Context, containerPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, resource.Clean(containerPath))
	return nil
}

// Notifications implements resource.Broker.
func (c *Client) Notifications() <-chan resource.Notification {
	return c.notifications
}

// Dropped returns how many notifications were dropped on a full channel.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

func (c *Client) deliver(n resource.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if _, ok := c.subscriptions[n.ContainerPath]; !ok {
		return
	}
	select {
	case c.notifications <- n:
	default:
		c.dropped.Add(1)
		c.hub.logger.Warn("notification channel full, dropping", "client", c.name, "path", n.ContainerPath)
	}
}

// Close implements resource.Broker. It disconnects the client from the hub
// and closes its notification channel.
func (c *Client) Close() error {
	c.hub.mu.Lock()
	delete(c.hub.clients, c)
	c.hub.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.notifications)
	return nil
}
