package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"

	"github.com/pkg/errors"
	"github.com/sasha-s/go-deadlock"
)

const defaultReplicas = 100

// ConsistentHashBalancer maps keys to endpoints on a hash ring, so one key keeps
// landing on one endpoint while the ring is unchanged. Each endpoint is placed on
// the ring as replicas virtual nodes hashed from "{addr}#{i}".
//
//	          0
//	        ╱   ╲
//	   B ●         ● A
//	     │  key ◆──►   (clockwise to the nearest node → A)
//	   C ●         ● A'
//	        ╲   ╱
type ConsistentHashBalancer struct {
	replicas int

	mu    deadlock.RWMutex
	ring  []uint32 // sorted
	nodes map[uint32]*Endpoint
}

func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: defaultReplicas,
		nodes:    make(map[uint32]*Endpoint),
	}
}

// Add places e on the ring.
func (b *ConsistentHashBalancer) Add(e *Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", e.Addr, i)))
		if _, ok := b.nodes[hash]; !ok {
			b.ring = append(b.ring, hash)
		}
		b.nodes[hash] = e
	}
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
}

// Remove takes the endpoint with addr off the ring.
func (b *ConsistentHashBalancer) Remove(addr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ring := b.ring[:0]
	for _, h := range b.ring {
		if b.nodes[h].Addr == addr {
			delete(b.nodes, h)
			continue
		}
		ring = append(ring, h)
	}
	b.ring = ring
}

// Pick returns the endpoint owning key: the first ring node at or after the key's
// hash, wrapping around to the first node.
func (b *ConsistentHashBalancer) Pick(key string) (*Endpoint, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.ring) == 0 {
		return nil, errors.WithStack(ErrNoEndpoints)
	}
	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool { return b.ring[i] >= hash })
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}

// KeyedBalancer adapts consistent hashing to the Balancer interface for one key.
// The ring is rebuilt from the list given to Pick.
type KeyedBalancer struct {
	Key string
}

func (b *KeyedBalancer) Pick(endpoints []Endpoint) (*Endpoint, error) {
	ring := NewConsistentHashBalancer()
	for i := range endpoints {
		ring.Add(&endpoints[i])
	}
	return ring.Pick(b.Key)
}

func (b *KeyedBalancer) Name() string {
	return "ConsistentHash(" + b.Key + ")"
}
