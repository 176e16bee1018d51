package resource

import (
	"errors"
	"fmt"
)

// Domain-specific errors for resource operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrCreation is returned when a resource cannot be created.
	ErrCreation = errors.New("resource: creation failed")

	// ErrPush is returned when content cannot be pushed to a container.
	ErrPush = errors.New("resource: push failed")

	// ErrDiscovery is returned when a discovery query fails.
	ErrDiscovery = errors.New("resource: discovery failed")

	// ErrSubscription is returned when a subscription is rejected.
	ErrSubscription = errors.New("resource: subscription failed")

	// ErrNotFound is returned when a path does not resolve to a node.
	ErrNotFound = errors.New("resource: not found")

	// ErrKindConflict is returned when a name already exists at a parent
	// with a different resource kind.
	ErrKindConflict = errors.New("resource: conflicting resource kind")

	// ErrInvalidPayload is returned when a payload fails boundary validation.
	ErrInvalidPayload = errors.New("resource: invalid payload")

	// ErrInvalidPath is returned for empty or malformed paths and names.
	ErrInvalidPath = errors.New("resource: invalid path")

	// ErrClosed is returned when operating on a closed broker.
	ErrClosed = errors.New("resource: broker closed")
)

// CreationError describes a failed CreateResource call.
// It unwraps to both ErrCreation and the underlying cause.
type CreationError struct {
	Parent string
	Name   string
	Err    error
}

// Error implements error.
func (e *CreationError) Error() string {
	return fmt.Sprintf("resource: creating %q under %q: %v", e.Name, e.Parent, e.Err)
}

// Unwrap allows errors.Is to match ErrCreation and the cause.
func (e *CreationError) Unwrap() []error {
	return []error{ErrCreation, e.Err}
}
