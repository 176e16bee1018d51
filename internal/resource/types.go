package resource

import (
	"slices"
	"time"
)

// Kind classifies a node in the resource tree.
type Kind string

// Supported resource kinds.
const (
	// KindApplication is a registered application entity under the CSE base.
	KindApplication Kind = "application"

	// KindContainer holds content instances and child containers.
	KindContainer Kind = "container"
)

// Unbounded is the MaxInstances value meaning "retain everything".
const Unbounded = 0

// Node is a created resource in the broker tree.
//
// Nodes are created once per distinct (ParentPath, Name); their lifetime is
// bounded by the parent.
type Node struct {
	ID           string    `json:"id"`
	Path         string    `json:"path"`
	Name         string    `json:"name"`
	Kind         Kind      `json:"kind"`
	Labels       []string  `json:"labels,omitempty"`
	ParentPath   string    `json:"parent_path"`
	MaxInstances int       `json:"max_instances"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasLabel reports whether the node carries the given label.
func (n Node) HasLabel(label string) bool {
	return slices.Contains(n.Labels, label)
}

// Clone returns a copy of the node that shares no slices with the receiver.
func (n Node) Clone() Node {
	n.Labels = slices.Clone(n.Labels)
	return n
}

// Spec is a request to create a node.
type Spec struct {
	// ParentPath is the path of the existing parent. Empty creates a base node.
	ParentPath string

	// Name is the resource name, unique among the parent's children.
	Name string

	// Kind defaults to KindContainer when empty.
	Kind Kind

	// Labels are attached to the node and used by discovery.
	Labels []string

	// MaxInstances bounds content retention; Unbounded (0) keeps all.
	MaxInstances int
}

// Path returns the path the spec would create.
func (s Spec) Path() string {
	return Join(s.ParentPath, s.Name)
}

// ContentInstance is a single entry held by a container.
type ContentInstance struct {
	ID        string    `json:"id"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification is delivered to subscribers when content is created in a
// subscribed container.
type Notification struct {
	ContainerPath string
	Payload       []byte
	ReceivedAt    time.Time
}
