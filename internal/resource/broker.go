package resource

import "context"

// Broker is the resource-oriented broker collaborator consumed by the core.
//
// Implementations live under internal/broker. All methods must be safe for
// concurrent use.
type Broker interface {
	// CreateResource creates a node, or returns the existing node when one
	// with the same name and kind already exists at the parent.
	//
	// Returns a *CreationError (ErrCreation) when the parent is missing or a
	// node of a different kind holds the name.
	CreateResource(ctx context.Context, spec Spec) (Node, error)

	// PushContent appends a content instance to a container, evicting the
	// oldest instance when the container is at its retention limit.
	//
	// Returns ErrPush on failure.
	PushContent(ctx context.Context, containerPath string, payload []byte) error

	// Discover returns a snapshot of nodes under root carrying all labels.
	//
	// Returns ErrDiscovery on transport failure.
	Discover(ctx context.Context, root string, labels []string) ([]Node, error)

	// Subscribe requests notifications for new content in a container.
	// Notifications arrive on the Notifications channel.
	//
	// Returns ErrSubscription on an invalid path or broker rejection.
	Subscribe(ctx context.Context, containerPath string) error

	// Unsubscribe stops notifications for a container.
	Unsubscribe(ctx context.Context, containerPath string) error

	// Notifications returns the bounded inbound notification channel.
	// The channel is closed by Close.
	Notifications() <-chan Notification

	// Close releases broker resources.
	Close() error
}
