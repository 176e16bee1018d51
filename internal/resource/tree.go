package resource

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// KindBase marks a CSE base node. Base nodes are added with AddBase and are
// never created through a Spec.
const KindBase Kind = "cse_base"

// idPrefix returns the short resource-type prefix used in generated IDs.
func idPrefix(k Kind) string {
	switch k {
	case KindApplication:
		return "ae-"
	case KindBase:
		return "cb-"
	default:
		return "cnt-"
	}
}

// Tree is a thread-safe, path-keyed store of nodes and their retained
// content. It enforces the structural rules every broker binding shares:
// parents must exist, names are unique per parent, and containers never hold
// more than MaxInstances instances.
type Tree struct {
	mu    sync.RWMutex
	nodes map[string]*treeEntry
	now   func() time.Time
}

type treeEntry struct {
	node Node
	ring *Ring
}

// NewTree creates an empty tree with the given base paths pre-registered.
func NewTree(bases ...string) *Tree {
	t := &Tree{
		nodes: make(map[string]*treeEntry),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, b := range bases {
		t.AddBase(b)
	}
	return t
}

// AddBase registers a CSE base path. Adding an existing base is a no-op.
func (t *Tree) AddBase(path string) {
	path = Clean(path)
	if path == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.nodes[path]; ok {
		return
	}
	t.nodes[path] = &treeEntry{node: Node{
		ID:         idPrefix(KindBase) + uuid.NewString()[:16],
		Path:       path,
		Name:       Base(path),
		Kind:       KindBase,
		ParentPath: Parent(path),
		CreatedAt:  t.now(),
	}}
}

// Create adds a node described by spec.
//
// Returns:
//   - Node: the created node, or the existing node for a repeated spec
//   - bool: true only when a new node was created
//   - error: *CreationError when the parent is missing or the kind conflicts
func (t *Tree) Create(spec Spec) (Node, bool, error) {
	if spec.Kind == "" {
		spec.Kind = KindContainer
	}
	fail := func(err error) (Node, bool, error) {
		return Node{}, false, &CreationError{Parent: spec.ParentPath, Name: spec.Name, Err: err}
	}

	if err := ValidateName(spec.Name); err != nil {
		return fail(err)
	}
	if spec.MaxInstances < 0 {
		return fail(fmt.Errorf("%w: max instances %d must not be negative", ErrInvalidPath, spec.MaxInstances))
	}

	parent := Clean(spec.ParentPath)
	path := Join(parent, spec.Name)

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.nodes[parent]; !ok || parent == "" {
		return fail(fmt.Errorf("%w: parent %q", ErrNotFound, parent))
	}

	if existing, ok := t.nodes[path]; ok {
		if existing.node.Kind != spec.Kind {
			return fail(fmt.Errorf("%w: %q is a %s", ErrKindConflict, path, existing.node.Kind))
		}
		return existing.node.Clone(), false, nil
	}

	node := Node{
		ID:           idPrefix(spec.Kind) + uuid.NewString()[:16],
		Path:         path,
		Name:         spec.Name,
		Kind:         spec.Kind,
		Labels:       NormaliseLabels(spec.Labels),
		ParentPath:   parent,
		MaxInstances: spec.MaxInstances,
		CreatedAt:    t.now(),
	}
	entry := &treeEntry{node: node}
	if node.Kind == KindContainer {
		entry.ring = NewRing(node.MaxInstances)
	}
	t.nodes[path] = entry

	return node.Clone(), true, nil
}

// Put inserts or replaces a node without structural checks.
// Broker mirrors use it to replay nodes announced by other clients.
// Retained content of an existing container is kept.
func (t *Tree) Put(node Node) {
	node = node.Clone()
	node.Path = Clean(node.Path)

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.nodes[node.Path]
	if !ok {
		entry = &treeEntry{}
		t.nodes[node.Path] = entry
	}
	entry.node = node
	if node.Kind == KindContainer && (entry.ring == nil || entry.ring.Capacity() != node.MaxInstances) {
		fresh := NewRing(node.MaxInstances)
		if entry.ring != nil {
			for _, ci := range entry.ring.Snapshot() {
				fresh.Append(ci)
			}
		}
		entry.ring = fresh
	}
}

// Remove deletes the node at path. Children are left in place; callers
// remove leaves first. It reports whether a node was removed.
func (t *Tree) Remove(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	path = Clean(path)
	if _, ok := t.nodes[path]; !ok {
		return false
	}
	delete(t.nodes, path)
	return true
}

// Get returns the node at path.
func (t *Tree) Get(path string) (Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.nodes[Clean(path)]
	if !ok {
		return Node{}, false
	}
	return entry.node.Clone(), true
}

// Append stores a content instance in the container at path, evicting the
// oldest instance when the container is full.
//
// Returns ErrNotFound if path is not a container.
func (t *Tree) Append(path string, payload []byte) (ContentInstance, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.nodes[Clean(path)]
	if !ok || entry.ring == nil {
		return ContentInstance{}, fmt.Errorf("%w: container %q", ErrNotFound, path)
	}

	ci := ContentInstance{
		ID:        "cin-" + uuid.NewString()[:16],
		Payload:   slices.Clone(payload),
		CreatedAt: t.now(),
	}
	entry.ring.Append(ci)
	return ci, nil
}

// Contents returns the retained instances of a container, oldest first.
func (t *Tree) Contents(path string) ([]ContentInstance, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, ok := t.nodes[Clean(path)]
	if !ok || entry.ring == nil {
		return nil, fmt.Errorf("%w: container %q", ErrNotFound, path)
	}
	return entry.ring.Snapshot(), nil
}

// Latest returns the newest instance of a container.
func (t *Tree) Latest(path string) (ContentInstance, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, ok := t.nodes[Clean(path)]
	if !ok || entry.ring == nil {
		return ContentInstance{}, false
	}
	return entry.ring.Latest()
}

// Find returns nodes under root (inclusive) carrying every label in filter,
// sorted by path.
func (t *Tree) Find(root string, filter []string) []Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Node
	for path, entry := range t.nodes {
		if !IsUnder(root, path) {
			continue
		}
		if !MatchesLabels(entry.node.Labels, filter) {
			continue
		}
		out = append(out, entry.node.Clone())
	}
	slices.SortFunc(out, func(a, b Node) int { return strings.Compare(a.Path, b.Path) })
	return out
}

// Len returns the number of nodes, including bases.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}
