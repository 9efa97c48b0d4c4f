package loadbalance

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
)

var testEndpoints = []Endpoint{
	{Addr: ":8001", Weight: 10},
	{Addr: ":8002", Weight: 5},
	{Addr: ":8003", Weight: 10},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	results := make([]string, 3)
	for i := 0; i < 3; i++ {
		e, err := b.Pick(testEndpoints)
		if err != nil {
			t.Fatal(err)
		}
		results[i] = e.Addr
	}
	if results[0] != ":8001" || results[1] != ":8002" || results[2] != ":8003" {
		t.Fatalf("expect endpoints in order, got %v", results)
	}

	e, _ := b.Pick(testEndpoints)
	if e.Addr != results[0] {
		t.Fatalf("expect wrap around to %s, got %s", results[0], e.Addr)
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	b := &RoundRobinBalancer{}
	_, err := b.Pick(nil)
	if !errors.Is(err, ErrNoEndpoints) {
		t.Fatalf("expect ErrNoEndpoints, got %v", err)
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		e, err := b.Pick(testEndpoints)
		if err != nil {
			t.Fatal(err)
		}
		counts[e.Addr]++
	}

	// Weights are 10:5:10, so :8001 should be picked about twice as often as :8002
	ratio := float64(counts[":8001"]) / float64(counts[":8002"])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio :8001/:8002 = %.2f, expect ~2.0", ratio)
	}
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	e, err := b.Pick([]Endpoint{{Addr: ":9000"}})
	if err != nil || e.Addr != ":9000" {
		t.Fatalf("expect :9000, got %v, %v", e, err)
	}
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer()
	for i := range testEndpoints {
		b.Add(&testEndpoints[i])
	}

	e1, _ := b.Pick("service-123")
	e2, _ := b.Pick("service-123")
	if e1.Addr != e2.Addr {
		t.Fatalf("same key mapped to different endpoints: %s vs %s", e1.Addr, e2.Addr)
	}

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		e, _ := b.Pick(fmt.Sprintf("key-%d", i))
		seen[e.Addr] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expect at least 2 different endpoints, got %d", len(seen))
	}
}

func TestConsistentHashRemove(t *testing.T) {
	b := NewConsistentHashBalancer()
	for i := range testEndpoints {
		b.Add(&testEndpoints[i])
	}
	for i := 0; i < 50; i++ {
		b.Remove(":8002")
		e, err := b.Pick(fmt.Sprintf("key-%d", i))
		if err != nil {
			t.Fatal(err)
		}
		if e.Addr == ":8002" {
			t.Fatalf("removed endpoint still picked for key-%d", i)
		}
	}

	b.Remove(":8001")
	b.Remove(":8003")
	if _, err := b.Pick("any"); !errors.Is(err, ErrNoEndpoints) {
		t.Fatalf("expect ErrNoEndpoints on empty ring, got %v", err)
	}
}

func TestKeyedBalancerIsStable(t *testing.T) {
	b, err := New("consistent_hash", "42")
	if err != nil {
		t.Fatal(err)
	}
	first, _ := b.Pick(testEndpoints)
	for i := 0; i < 10; i++ {
		e, _ := b.Pick(testEndpoints)
		if e.Addr != first.Addr {
			t.Fatalf("keyed pick moved from %s to %s", first.Addr, e.Addr)
		}
	}
	if _, err := New("nope", ""); err == nil {
		t.Fatal("expect error for unknown strategy")
	}
}
