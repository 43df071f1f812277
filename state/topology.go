package state

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/goccy/go-yaml"
)

// EdgeCfg is an undirected link between two nodes of a simulated network
type EdgeCfg struct {
	A       NodeId
	B       NodeId
	Cost    float64
	Loss    float64       `yaml:",omitempty"`
	Latency time.Duration `yaml:",omitempty"`
}

// TopologyCfg describes a whole network, used for simulation and as a reference
type TopologyCfg struct {
	Nodes          []NodeId
	Edges          []EdgeCfg
	PoisonReverse  bool          `yaml:"poison_reverse,omitempty"`
	UpdateInterval time.Duration `yaml:"update_interval,omitempty"` // periodic advertisement, recovers from lost datagrams
	Timeout        time.Duration `yaml:",omitempty"`                // how long a simulation may run before giving up
}

func ReadTopology(path string) (*TopologyCfg, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg TopologyCfg
	err = yaml.Unmarshal(file, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse topology: %w", err)
	}
	return &cfg, nil
}

func TopologyValidator(cfg *TopologyCfg) error {
	if cfg.UpdateInterval < 0 || cfg.Timeout < 0 {
		return fmt.Errorf("update_interval and timeout must not be negative")
	}
	for _, node := range cfg.Nodes {
		err := NameValidator(string(node))
		if err != nil {
			return err
		}
	}
	nodeRel := make([]Pair[NodeId, NodeId], 0)
	for _, edge := range cfg.Edges {
		rel := Pair[NodeId, NodeId]{edge.A, edge.B}
		if slices.Contains(nodeRel, rel) {
			return fmt.Errorf("duplicate edge found: %s, %s", edge.A, edge.B)
		}
		if edge.A == edge.B {
			return fmt.Errorf("edge %s, %s is a self loop", edge.A, edge.B)
		}
		if !slices.Contains(cfg.Nodes, edge.A) {
			return fmt.Errorf("node %s not defined", edge.A)
		}
		if !slices.Contains(cfg.Nodes, edge.B) {
			return fmt.Errorf("node %s not defined", edge.B)
		}
		if err := CostValidator(edge.Cost); err != nil {
			return fmt.Errorf("edge %s, %s: %w", edge.A, edge.B, err)
		}
		if err := LossValidator(edge.Loss); err != nil {
			return fmt.Errorf("edge %s, %s: %w", edge.A, edge.B, err)
		}
		nodeRel = append(nodeRel, rel)
		nodeRel = append(nodeRel, Pair[NodeId, NodeId]{edge.B, edge.A})
	}
	return nil
}

// NodeConfigs derives the configuration of every node in the topology. As in a
// hand-started network, only the last node initiates the exchange.
func (cfg *TopologyCfg) NodeConfigs() []NodeCfg {
	out := make([]NodeCfg, 0, len(cfg.Nodes))
	for i, node := range cfg.Nodes {
		ncfg := NodeCfg{
			Id:             node,
			Initiator:      i == len(cfg.Nodes)-1,
			PoisonReverse:  cfg.PoisonReverse,
			UpdateInterval: cfg.UpdateInterval,
		}
		for _, edge := range cfg.Edges {
			if edge.A == node {
				ncfg.Neighbours = append(ncfg.Neighbours, NeighbourCfg{Id: edge.B, Cost: edge.Cost, Loss: edge.Loss})
			} else if edge.B == node {
				ncfg.Neighbours = append(ncfg.Neighbours, NeighbourCfg{Id: edge.A, Cost: edge.Cost, Loss: edge.Loss})
			}
		}
		ncfg.ApplyDefaults()
		out = append(out, ncfg)
	}
	return out
}

// ShortestPaths computes the cost from src to every node with Dijkstra's algorithm.
// Unreachable nodes are reported as INF. Link metrics follow the same floor as the router.
func (cfg *TopologyCfg) ShortestPaths(src NodeId) map[NodeId]Metric {
	dist := make(map[NodeId]Metric, len(cfg.Nodes))
	for _, node := range cfg.Nodes {
		dist[node] = INF
	}
	dist[src] = 0
	done := make(map[NodeId]bool, len(cfg.Nodes))

	for range cfg.Nodes {
		var cur NodeId
		found := false
		for _, node := range cfg.Nodes {
			if done[node] || dist[node].IsInf() {
				continue
			}
			if !found || dist[node] < dist[cur] {
				cur = node
				found = true
			}
		}
		if !found {
			break
		}
		done[cur] = true
		for _, edge := range cfg.Edges {
			var other NodeId
			switch cur {
			case edge.A:
				other = edge.B
			case edge.B:
				other = edge.A
			default:
				continue
			}
			alt := AddMetric(dist[cur], max(Metric(edge.Cost), MinLinkMetric))
			if alt < dist[other] {
				dist[other] = alt
			}
		}
	}
	return dist
}
