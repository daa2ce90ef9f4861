// Package registry tracks known storage nodes and their liveness.
//
// Grounded on the teacher's auth.Sessions (auth/session.go): a package-level
// map of opaque tokens to records. That map is read and written from gin
// handlers with no lock at all, which is only safe there because Gin's
// default server is effectively single-writer-at-a-time for that repo's
// traffic shape; the node registry has a real background healing goroutine
// racing request handlers, so this package makes the same map/record shape
// explicit and protects it with sync.RWMutex.
package registry

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

// ErrUnknownNode is returned by Heartbeat when node_id has never registered
// (or has been swept as dead).
var ErrUnknownNode = errors.New("registry: unknown node")

// Node is one live storage node as known to the coordinator.
type Node struct {
	NodeID           string
	Host             string
	Port             int
	StorageAvailable int64
	LastSeen         time.Time
}

// Endpoint returns the node's base URL for outbound chunk requests.
func (n Node) Endpoint() string {
	return "http://" + n.Host + ":" + strconv.Itoa(n.Port)
}

// DeathHandler is invoked, outside the registry's own lock, once per node
// evicted by a Sweep.
type DeathHandler func(nodeID string)

// Registry is the coordinator's in-memory node table.
type Registry struct {
	mu               sync.RWMutex
	nodes            map[string]Node
	heartbeatTimeout time.Duration
	onDeath          DeathHandler
	onSweepEvictions func(count int)
}

// New creates an empty Registry. onDeath, if non-nil, is called for every
// node a Sweep evicts.
func New(heartbeatTimeout time.Duration, onDeath DeathHandler) *Registry {
	return &Registry{
		nodes:            make(map[string]Node),
		heartbeatTimeout: heartbeatTimeout,
		onDeath:          onDeath,
	}
}

// SetSweepEvictionsHook installs fn to be called with the number of nodes a
// Sweep evicts, each time it evicts at least one. Used to feed an external
// metrics counter without this package depending on a metrics library.
func (r *Registry) SetSweepEvictionsHook(fn func(count int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSweepEvictions = fn
}

// Register upserts a node record, refreshing its endpoint and last_seen.
func (r *Registry) Register(nodeID, host string, port int, storageAvailable int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[nodeID] = Node{
		NodeID:           nodeID,
		Host:             host,
		Port:             port,
		StorageAvailable: storageAvailable,
		LastSeen:         time.Now(),
	}
}

// Heartbeat refreshes the caller's last_seen, then sweeps dead nodes. The
// refresh happens first so a heartbeating node can never evict itself.
func (r *Registry) Heartbeat(nodeID string, now time.Time) error {
	r.mu.Lock()
	n, ok := r.nodes[nodeID]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownNode
	}
	n.LastSeen = now
	r.nodes[nodeID] = n
	r.mu.Unlock()

	r.Sweep(now)
	return nil
}

// Sweep evicts every node whose last_seen predates now by more than the
// configured heartbeat timeout, invoking onDeath for each (outside the
// lock, since onDeath may itself touch the registry or do file I/O).
func (r *Registry) Sweep(now time.Time) {
	r.mu.Lock()
	var dead []string
	for id, n := range r.nodes {
		if now.Sub(n.LastSeen) > r.heartbeatTimeout {
			dead = append(dead, id)
		}
	}
	for _, id := range dead {
		delete(r.nodes, id)
	}
	onSweepEvictions := r.onSweepEvictions
	r.mu.Unlock()

	if len(dead) > 0 && onSweepEvictions != nil {
		onSweepEvictions(len(dead))
	}

	if r.onDeath != nil {
		for _, id := range dead {
			r.onDeath(id)
		}
	}
}

// Snapshot returns a consistent, lock-free-to-use copy of currently live
// nodes.
func (r *Registry) Snapshot() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	return out
}

// Get returns a single node's record, if live.
func (r *Registry) Get(nodeID string) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[nodeID]
	return n, ok
}

// Count returns the number of currently live nodes.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}
