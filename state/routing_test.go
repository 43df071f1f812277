package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetNeighbour(t *testing.T) {
	n1 := &Neighbour{Id: "node1"}
	n2 := &Neighbour{Id: "node2"}
	rs := &RouterState{
		Neighbours: []*Neighbour{n1, n2},
	}

	if got := rs.GetNeighbour("node1"); got != n1 {
		t.Errorf("Expected neighbour node1 to be %+v, got %+v", n1, got)
	}
	if got := rs.GetNeighbour("node2"); got != n2 {
		t.Errorf("Expected neighbour node2 to be %+v, got %+v", n2, got)
	}
	if got := rs.GetNeighbour("node3"); got != nil {
		t.Errorf("Expected nil for missing neighbour node3, got %+v", got)
	}
}

func TestNewRouterStateSeedsNeighbours(t *testing.T) {
	rs, err := NewRouterState("a", []NeighbourCfg{
		{Id: "b", Cost: 1},
		{Id: "c", Cost: 2.5},
	})
	require.NoError(t, err)

	assert.Equal(t, RouteEntry{Dest: "a", Nh: None[NodeId](), Metric: 0}, rs.Routes["a"])
	assert.Equal(t, RouteEntry{Dest: "b", Nh: Some[NodeId]("b"), Metric: 1}, rs.Routes["b"])
	assert.Equal(t, RouteEntry{Dest: "c", Nh: Some[NodeId]("c"), Metric: 2.5}, rs.Routes["c"])
	assert.Equal(t, Metric(0), rs.Vector.Get("a"))
	assert.Equal(t, Metric(2.5), rs.Vector.Get("c"))
	assert.True(t, rs.Vector.Get("d").IsInf())
}

func TestNewRouterStateRejectsBadNeighbours(t *testing.T) {
	cases := map[string][]NeighbourCfg{
		"self":      {{Id: "a", Cost: 1}},
		"duplicate": {{Id: "b", Cost: 1}, {Id: "b", Cost: 2}},
		"negative":  {{Id: "b", Cost: -1}},
	}
	for name, neighs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRouterState("a", neighs)
			assert.True(t, errors.Is(err, ErrInvariantViolation), "got %v", err)
		})
	}
}

func TestZeroCostLinkIsNotSelf(t *testing.T) {
	rs, err := NewRouterState("a", []NeighbourCfg{{Id: "b", Cost: 0}})
	require.NoError(t, err)
	assert.Greater(t, float64(rs.Routes["b"].Metric), 0.0)
}

func TestAdvertisementForPoisonReverse(t *testing.T) {
	rs, err := NewRouterState("a", []NeighbourCfg{{Id: "b", Cost: 1}, {Id: "c", Cost: 1}})
	require.NoError(t, err)
	rs.Routes["d"] = RouteEntry{Dest: "d", Nh: Some[NodeId]("b"), Metric: 2}
	require.NoError(t, rs.Vector.Set("d", 2))

	// without poison reverse every neighbour sees the same vector
	assert.Equal(t, Metric(2), rs.AdvertisementFor("b").Get("d"))

	rs.PoisonReverse = true
	assert.True(t, rs.AdvertisementFor("b").Get("d").IsInf())
	assert.Equal(t, Metric(2), rs.AdvertisementFor("c").Get("d"))
	// the node's own vector is left untouched
	assert.Equal(t, Metric(2), rs.Vector.Get("d"))
}

func TestRoutingTableString(t *testing.T) {
	table := RoutingTable{
		"b": {Dest: "b", Nh: Some[NodeId]("b"), Metric: 1},
		"a": {Dest: "a", Metric: 0},
		"c": {Dest: "c", Nh: Some[NodeId]("b"), Metric: 2},
	}
	assert.Equal(t, `- (0) -> a
- (1) -> b via b
- (2) -> c via b`, table.String())
}
