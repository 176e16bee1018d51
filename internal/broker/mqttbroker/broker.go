package mqttbroker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/fieldsim/internal/infrastructure/mqtt"
	"github.com/nerrad567/fieldsim/internal/resource"
)

// DefaultNotificationBuffer bounds the notification channel.
const DefaultNotificationBuffer = 256

// Transport is the part of *mqtt.Client the broker needs.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Topics() mqtt.Topics
	QoS() byte
}

// Logger defines the logging interface used by the broker.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Options configure a Broker.
type Options struct {
	// Bases are the CSE base paths known without an announcement.
	Bases []string

	// NotificationBuffer bounds the notification channel.
	NotificationBuffer int
}

// Broker is a resource.Broker backed by an MQTT transport.
type Broker struct {
	transport Transport
	topics    mqtt.Topics
	mirror    *resource.Tree

	mu            sync.Mutex
	subscriptions map[string]struct{}
	closed        bool
	notifications chan resource.Notification

	dropped atomic.Uint64

	logger atomic.Pointer[Logger]
}

var _ resource.Broker = (*Broker)(nil)

// New creates a broker and subscribes to resource announcements.
//
// Returns an error if the announcement subscription fails.
func New(transport Transport, opts Options) (*Broker, error) {
	buffer := opts.NotificationBuffer
	if buffer <= 0 {
		buffer = DefaultNotificationBuffer
	}
	b := &Broker{
		transport:     transport,
		topics:        transport.Topics(),
		mirror:        resource.NewTree(opts.Bases...),
		subscriptions: make(map[string]struct{}),
		notifications: make(chan resource.Notification, buffer),
	}
	b.SetLogger(noopLogger{})

	if err := transport.Subscribe(b.topics.AllResources(), transport.QoS(), b.handleAnnouncement); err != nil {
		return nil, fmt.Errorf("subscribing to resource announcements: %w", err)
	}
	return b, nil
}

// SetLogger sets the logger for the broker. Safe to call while messages
// are being delivered.
func (b *Broker) SetLogger(logger Logger) {
	b.logger.Store(&logger)
}

func (b *Broker) log() Logger {
	return *b.logger.Load()
}

// Mirror returns the local view of the resource tree.
func (b *Broker) Mirror() *resource.Tree {
	return b.mirror
}

func (b *Broker) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return resource.ErrClosed
	}
	return nil
}

// handleAnnouncement replays a retained node announcement into the mirror.
func (b *Broker) handleAnnouncement(topic string, payload []byte) error {
	path, ok := b.topics.ResourcePath(topic)
	if !ok || len(payload) == 0 {
		return nil
	}
	var node resource.Node
	if err := json.Unmarshal(payload, &node); err != nil {
		return fmt.Errorf("%w: announcement on %q: %w", resource.ErrInvalidPayload, topic, err)
	}
	if resource.Clean(node.Path) != path {
		return fmt.Errorf("%w: announcement path %q does not match topic %q", resource.ErrInvalidPayload, node.Path, topic)
	}
	b.mirror.Put(node)
	return nil
}

// CreateResource implements resource.Broker. New nodes are announced
// retained; a failed announcement removes the node from the mirror.
func (b *Broker) CreateResource(ctx context.Context, spec resource.Spec) (resource.Node, error) {
	if err := b.checkOpen(ctx); err != nil {
		return resource.Node{}, err
	}
	node, created, err := b.mirror.Create(spec)
	if err != nil || !created {
		return node, err
	}

	payload, err := json.Marshal(node)
	if err != nil {
		b.mirror.Remove(node.Path)
		return resource.Node{}, err
	}
	if err := b.transport.Publish(b.topics.Resource(node.Path), payload, b.transport.QoS(), true); err != nil {
		b.mirror.Remove(node.Path)
		return resource.Node{}, fmt.Errorf("announcing %q: %w", node.Path, err)
	}
	b.log().Debug("resource announced", "path", node.Path, "kind", node.Kind)
	return node, nil
}

// PushContent implements resource.Broker.
func (b *Broker) PushContent(ctx context.Context, containerPath string, payload []byte) error {
	if err := b.checkOpen(ctx); err != nil {
		return err
	}
	path := resource.Clean(containerPath)
	if _, err := b.mirror.Append(path, payload); err != nil {
		return fmt.Errorf("%w: %w", resource.ErrPush, err)
	}
	if err := b.transport.Publish(b.topics.Content(path), payload, b.transport.QoS(), false); err != nil {
		return fmt.Errorf("%w: %w", resource.ErrPush, err)
	}
	return nil
}

// Discover implements resource.Broker against the local mirror.
func (b *Broker) Discover(ctx context.Context, root string, labels []string) ([]resource.Node, error) {
	if err := b.checkOpen(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", resource.ErrDiscovery, err)
	}
	return b.mirror.Find(root, labels), nil
}

// Subscribe implements resource.Broker.
func (b *Broker) Subscribe(ctx context.Context, containerPath string) error {
	if err := b.checkOpen(ctx); err != nil {
		return fmt.Errorf("%w: %w", resource.ErrSubscription, err)
	}
	path := resource.Clean(containerPath)
	node, ok := b.mirror.Get(path)
	if !ok || node.Kind != resource.KindContainer {
		return fmt.Errorf("%w: %w: container %q", resource.ErrSubscription, resource.ErrNotFound, path)
	}

	handler := func(_ string, payload []byte) error {
		b.deliver(resource.Notification{ContainerPath: path, Payload: payload, ReceivedAt: time.Now().UTC()})
		return nil
	}
	if err := b.transport.Subscribe(b.topics.Content(path), b.transport.QoS(), handler); err != nil {
		return fmt.Errorf("%w: %w", resource.ErrSubscription, err)
	}

	b.mu.Lock()
	b.subscriptions[path] = struct{}{}
	b.mu.Unlock()
	return nil
}

// Unsubscribe implements resource.Broker.
func (b *Broker) Unsubscribe(_ context.Context, containerPath string) error {
	path := resource.Clean(containerPath)
	b.mu.Lock()
	_, ok := b.subscriptions[path]
	delete(b.subscriptions, path)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return b.transport.Unsubscribe(b.topics.Content(path))
}

// Notifications implements resource.Broker.
func (b *Broker) Notifications() <-chan resource.Notification {
	return b.notifications
}

// Dropped returns how many notifications were dropped on a full channel.
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Broker) deliver(n resource.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if _, ok := b.subscriptions[n.ContainerPath]; !ok {
		return
	}
	select {
	case b.notifications <- n:
	default:
		b.dropped.Add(1)
		b.log().Warn("notification channel full, dropping", "path", n.ContainerPath)
	}
}

// Close implements resource.Broker. It drops every subscription and closes
// the notification channel; the transport stays open for its owner to
// close.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	paths := make([]string, 0, len(b.subscriptions))
	for p := range b.subscriptions {
		paths = append(paths, p)
	}
	clear(b.subscriptions)
	close(b.notifications)
	b.mu.Unlock()

	var errs []error
	for _, p := range paths {
		if err := b.transport.Unsubscribe(b.topics.Content(p)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := b.transport.Unsubscribe(b.topics.AllResources()); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
