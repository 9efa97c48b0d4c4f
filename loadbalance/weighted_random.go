package loadbalance

import (
	"math/rand/v2"

	"github.com/pkg/errors"
)

// WeightedRandomBalancer picks an endpoint with probability proportional to its weight.
type WeightedRandomBalancer struct{}

func weight(e Endpoint) int {
	if e.Weight <= 0 {
		return 1
	}
	return e.Weight
}

func (b *WeightedRandomBalancer) Pick(endpoints []Endpoint) (*Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, errors.WithStack(ErrNoEndpoints)
	}

	total := 0
	for _, e := range endpoints {
		total += weight(e)
	}

	r := rand.IntN(total)
	for i := range endpoints {
		r -= weight(endpoints[i])
		if r < 0 {
			return &endpoints[i], nil
		}
	}
	return &endpoints[len(endpoints)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
