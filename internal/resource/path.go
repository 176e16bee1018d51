package resource

import (
	"fmt"
	"strings"
)

// PathSeparator separates segments of a resource path.
const PathSeparator = "/"

// Join builds a child path from a parent path and a resource name.
// An empty parent yields the name itself.
func Join(parent, name string) string {
	parent = strings.Trim(parent, PathSeparator)
	name = strings.Trim(name, PathSeparator)
	if parent == "" {
		return name
	}
	return parent + PathSeparator + name
}

// Parent returns the parent path, or "" for a base node.
func Parent(path string) string {
	path = strings.Trim(path, PathSeparator)
	i := strings.LastIndex(path, PathSeparator)
	if i < 0 {
		return ""
	}
	return path[:i]
}

// Base returns the last segment of a path.
func Base(path string) string {
	path = strings.Trim(path, PathSeparator)
	return path[strings.LastIndex(path, PathSeparator)+1:]
}

// Clean trims surrounding separators so paths compare consistently.
func Clean(path string) string {
	return strings.Trim(path, PathSeparator)
}

// IsUnder reports whether path is root itself or a descendant of root.
// An empty root contains every path.
func IsUnder(root, path string) bool {
	root, path = Clean(root), Clean(path)
	if root == "" || root == path {
		return true
	}
	return strings.HasPrefix(path, root+PathSeparator)
}

// ValidateName checks a resource name is usable as a single path segment.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidPath)
	case strings.Contains(name, PathSeparator):
		return fmt.Errorf("%w: name %q contains %q", ErrInvalidPath, name, PathSeparator)
	case strings.ContainsAny(name, "#+"):
		return fmt.Errorf("%w: name %q contains a wildcard character", ErrInvalidPath, name)
	}
	return nil
}
