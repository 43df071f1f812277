package state

import (
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// NeighbourCfg describes a directly connected node
type NeighbourCfg struct {
	Id   NodeId
	Addr netip.AddrPort `yaml:",omitempty"` // where the neighbour's datagrams are sent
	Cost float64        // static link cost
	Loss float64        `yaml:",omitempty"` // probability that a datagram sent on this link is dropped
}

// NodeCfg represents local node-level configuration
type NodeCfg struct {
	Id             NodeId         // unique id for this node
	Bind           netip.AddrPort `yaml:",omitempty"`                // address the node receives datagrams on
	Initiator      bool           `yaml:",omitempty"`                // advertise as soon as the node starts
	UpdateInterval time.Duration  `yaml:"update_interval,omitempty"` // periodic full advertisement, 0 disables it
	ReceiveTimeout time.Duration  `yaml:"receive_timeout,omitempty"` // bounded wait for a single datagram
	Neighbours     []NeighbourCfg
	Prefixes       map[NodeId][]netip.Prefix `yaml:",omitempty"`               // addresses owned by nodes, used for forwarding lookups
	PoisonReverse  bool                      `yaml:"poison_reverse,omitempty"` // advertise INF back to the next hop of a route
	LogPath        string                    `yaml:"log_path,omitempty"`       // if not empty, logs are also written to this file
	DebugAddr      string                    `yaml:"debug_addr,omitempty"`     // if not empty, serve expvar and metrics on this address
}

// ApplyDefaults fills in unset timings
func (c *NodeCfg) ApplyDefaults() {
	if c.ReceiveTimeout == 0 {
		c.ReceiveTimeout = DefaultReceiveTimeout
	}
}

func (c *NodeCfg) GetNeighbour(id NodeId) *NeighbourCfg {
	for i := range c.Neighbours {
		if c.Neighbours[i].Id == id {
			return &c.Neighbours[i]
		}
	}
	return nil
}

func ReadNodeConfig(path string) (*NodeCfg, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseNodeConfig(file)
}

func ParseNodeConfig(data []byte) (*NodeCfg, error) {
	var cfg NodeCfg
	err := yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse node config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}
