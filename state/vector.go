package state

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// DistanceVector is a node's best known distance to every destination it knows about.
// The entry for the owning node is always 0.
type DistanceVector struct {
	self NodeId
	dist map[NodeId]Metric
}

func NewDistanceVector(self NodeId) *DistanceVector {
	return &DistanceVector{
		self: self,
		dist: map[NodeId]Metric{self: 0},
	}
}

func (v *DistanceVector) Self() NodeId {
	return v.self
}

// Get returns the current estimate to dest, or INF if dest is unknown
func (v *DistanceVector) Get(dest NodeId) Metric {
	if m, ok := v.dist[dest]; ok {
		return m
	}
	return INF
}

// Has reports whether dest has an entry, reachable or not
func (v *DistanceVector) Has(dest NodeId) bool {
	_, ok := v.dist[dest]
	return ok
}

// Set overwrites the estimate to dest. It refuses to store a non-zero distance to self
// or a metric that is negative or NaN.
func (v *DistanceVector) Set(dest NodeId, m Metric) error {
	if !m.Valid() {
		return fmt.Errorf("%w: distance to %s must be non-negative, got %v", ErrInvariantViolation, dest, float64(m))
	}
	if dest == v.self && m != 0 {
		return fmt.Errorf("%w: distance to self (%s) must be 0, got %s", ErrInvariantViolation, dest, m)
	}
	v.dist[dest] = m
	return nil
}

// Destinations returns every known destination in id order
func (v *DistanceVector) Destinations() []NodeId {
	return slices.Sorted(maps.Keys(v.dist))
}

func (v *DistanceVector) Len() int {
	return len(v.dist)
}

func (v *DistanceVector) Clone() *DistanceVector {
	return &DistanceVector{
		self: v.self,
		dist: maps.Clone(v.dist),
	}
}

// Equal compares owner and entries exactly
func (v *DistanceVector) Equal(o *DistanceVector) bool {
	if v == nil || o == nil {
		return v == o
	}
	return v.self == o.self && maps.Equal(v.dist, o.dist)
}

func (v *DistanceVector) String() string {
	sb := strings.Builder{}
	for i, dest := range v.Destinations() {
		if i != 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%s: %s", dest, v.dist[dest]))
	}
	return sb.String()
}
