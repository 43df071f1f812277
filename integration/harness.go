//go:build integration

package integration

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/encodeous/dvnode/core"
	"github.com/encodeous/dvnode/state"
	"github.com/encodeous/tint"
)

type VirtualLink struct {
	A, B       state.NodeId
	Cost       float64
	Latency    time.Duration
	PacketLoss float64
}

func (v *VirtualLink) WithLatency(lat time.Duration) *VirtualLink {
	v.Latency = lat
	return v
}

func (v *VirtualLink) WithPacketLoss(loss float64) *VirtualLink {
	v.PacketLoss = loss
	return v
}

// VirtualHarness builds a topology node by node and runs it on an in-memory network
type VirtualHarness struct {
	Nodes          []state.NodeId
	Links          []*VirtualLink
	PoisonReverse  bool
	UpdateInterval time.Duration
	Timeout        time.Duration
}

func (v *VirtualHarness) NewNode(ids ...state.NodeId) {
	v.Nodes = append(v.Nodes, ids...)
}

// AddLink adds an undirected link
func (v *VirtualHarness) AddLink(a, b state.NodeId, cost float64) *VirtualLink {
	link := &VirtualLink{A: a, B: b, Cost: cost}
	v.Links = append(v.Links, link)
	return link
}

func (v *VirtualHarness) Topology() *state.TopologyCfg {
	topo := &state.TopologyCfg{
		Nodes:          v.Nodes,
		PoisonReverse:  v.PoisonReverse,
		UpdateInterval: v.UpdateInterval,
		Timeout:        v.Timeout,
	}
	for _, link := range v.Links {
		topo.Edges = append(topo.Edges, state.EdgeCfg{
			A:       link.A,
			B:       link.B,
			Cost:    link.Cost,
			Loss:    link.PacketLoss,
			Latency: link.Latency,
		})
	}
	return topo
}

// Run simulates the network until it stops changing and returns every node's table
func (v *VirtualHarness) Run(t *testing.T) map[state.NodeId]state.RoutingTable {
	t.Helper()
	level := slog.LevelWarn
	if os.Getenv("DVNODE_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))
	tables, err := core.Simulate(context.Background(), v.Topology(), logger)
	if err != nil {
		t.Fatal(err)
	}
	return tables
}

// AssertShortestPaths checks every reachable route against Dijkstra's algorithm
func (v *VirtualHarness) AssertShortestPaths(t *testing.T, tables map[state.NodeId]state.RoutingTable) {
	t.Helper()
	topo := v.Topology()
	for _, id := range v.Nodes {
		for dest, expected := range topo.ShortestPaths(id) {
			route, ok := tables[id][dest]
			if expected.IsInf() {
				if ok && !route.Metric.IsInf() {
					t.Errorf("%s should not reach %s, got %s", id, dest, route)
				}
				continue
			}
			if !ok {
				t.Errorf("%s has no route to %s, expected cost %s", id, dest, expected)
				continue
			}
			if diff := float64(route.Metric - expected); diff > 1e-9 || diff < -1e-9 {
				t.Errorf("%s routes to %s at %s, expected %s", id, dest, route, expected)
			}
		}
	}
}
