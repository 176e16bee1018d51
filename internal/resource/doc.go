// Package resource defines the hierarchical resource model shared by the
// simulator, the monitor and every broker binding.
//
// A broker holds a tree of path-addressable nodes. Application nodes sit
// directly under the CSE base; containers nest below them and hold an
// ordered, bounded list of content instances (measurements or commands).
//
//	onem2m                                  CSE base
//	└── fieldsim-ipe                        application
//	    └── devices                         container (unbounded)
//	        ├── Temp                        container, label "sensor"
//	        │   └── measurements            container, max 3 instances
//	        └── Fan-01                      container, label "actuator"
//	            └── commands                container, max 3 instances
//
// # Key Types
//
//   - Node: a created resource (path, labels, retention)
//   - Spec: the request to create a node under a parent
//   - Ring: bounded FIFO retention of content instances
//   - Tree: thread-safe path-keyed node store used by broker bindings
//   - Measurement / Command: typed payloads validated at the boundary
//   - Broker: the collaborator interface consumed by the core
//
// # Errors
//
// All failures wrap one of the sentinel errors in errors.go so callers can
// branch with errors.Is:
//
//	if errors.Is(err, resource.ErrCreation) {
//	    // skip this sensor
//	}
package resource
