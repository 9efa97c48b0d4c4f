// Package loadbalance chooses which server endpoint a client node dials.
//
// Three strategies are implemented:
//   - RoundRobin:      spread new sessions evenly over equal servers
//   - WeightedRandom:  servers of different capacity
//   - ConsistentHash:  keep every caller of one service id on the same server,
//     where its auto-created instance lives
package loadbalance

import "github.com/pkg/errors"

// Endpoint is one server a node can connect to.
type Endpoint struct {
	Addr   string
	Weight int // relative capacity, used by WeightedRandom; <= 0 counts as 1
}

var ErrNoEndpoints = errors.New("loadbalance: no endpoints available")

// Balancer picks one endpoint out of a list. Pick must be goroutine-safe.
type Balancer interface {
	Pick(endpoints []Endpoint) (*Endpoint, error)

	// Name returns the strategy name (for logging).
	Name() string
}

// New returns the balancer registered under name: "round_robin" (also ""),
// "weighted_random" or "consistent_hash". The consistent hash balancer keys on key.
func New(name, key string) (Balancer, error) {
	switch name {
	case "", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash":
		return &KeyedBalancer{Key: key}, nil
	default:
		return nil, errors.Errorf("loadbalance: unknown strategy %q", name)
	}
}
