// Package catalog is the discovery boundary of the runtime. It holds the
// collection of test node descriptors a plan is built from. How the
// descriptors come to exist is not the core's concern; the Registry in
// this package implements the boundary with explicit registration calls,
// typically made from init functions of the test binary.
package catalog

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/planrun/planrun/types"
)

// Catalog is an externally-populated, order-unspecified collection of test
// node descriptors. Each descriptor must carry a globally unique identity;
// a violation surfaces as a plan-build-time issue, not a crash.
type Catalog interface {
	Nodes() []types.Node
}

// Registry collects registered test nodes. It is safe for concurrent
// registration, though registration normally happens during init.
type Registry struct {
	mu    sync.RWMutex
	nodes []types.Node
	log   log.Logger
}

// Config contains registry configuration.
type Config struct {
	Log log.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	return &Registry{log: cfg.Log}
}

// Register adds a node descriptor. Malformed identities are rejected here;
// duplicate identities are deliberately retained so the plan builder can
// report them as issues instead of silently dropping a declaration.
func (r *Registry) Register(node types.Node) error {
	if err := node.ID.Validate(); err != nil {
		return fmt.Errorf("invalid node identity: %w", err)
	}
	if node.Kind != types.KindSuite && node.Kind != types.KindFunction {
		return fmt.Errorf("node %q has unknown kind %q", node.ID, node.Kind)
	}
	if node.Kind == types.KindSuite && node.Body != nil {
		return fmt.Errorf("suite node %q cannot carry a body", node.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	node.Order = len(r.nodes)
	r.nodes = append(r.nodes, node)
	r.log.Debug("Registered test node", "id", node.ID, "kind", node.Kind, "parent", node.Parent)
	return nil
}

// MustRegister registers a node and panics on a malformed descriptor.
// Intended for init-time registration where the descriptor is static.
func (r *Registry) MustRegister(node types.Node) {
	if err := r.Register(node); err != nil {
		panic(err)
	}
}

// Nodes returns a snapshot of all registered descriptors.
func (r *Registry) Nodes() []types.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	nodes := make([]types.Node, len(r.nodes))
	copy(nodes, r.nodes)
	return nodes
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// defaultRegistry serves package-level registration from init functions.
var defaultRegistry = NewRegistry(Config{Log: log.Root()})

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

// Register adds a node to the process-wide registry.
func Register(node types.Node) error { return defaultRegistry.Register(node) }

// MustRegister adds a node to the process-wide registry, panicking on a
// malformed descriptor.
func MustRegister(node types.Node) { defaultRegistry.MustRegister(node) }
