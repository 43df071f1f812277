//go:build e2e

package e2e

import (
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"github.com/encodeous/dvnode/state"
	"github.com/goccy/go-yaml"
)

// SetupTestDir creates a directory for the current test run
func (h *Harness) SetupTestDir() string {
	dir := filepath.Join(h.RootDir, "e2e", "runs", h.t.Name())
	// Clean up previous run
	os.RemoveAll(dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		h.t.Fatal(err)
	}
	return dir
}

// WriteConfig marshals the config to YAML and writes it to the specified directory with the given filename
func (h *Harness) WriteConfig(dir, filename string, cfg any) string {
	path := filepath.Join(dir, filename)
	data, err := yaml.Marshal(cfg)
	if err != nil {
		h.t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		h.t.Fatal(err)
	}
	return path
}

func endpoint(ip string) netip.AddrPort {
	return netip.AddrPortFrom(netip.MustParseAddr(ip), AppPort)
}

// SimpleNode creates a node listening on every address that advertises every second
func SimpleNode(id string) state.NodeCfg {
	return state.NodeCfg{
		Id:             state.NodeId(id),
		Bind:           netip.AddrPortFrom(netip.IPv4Unspecified(), AppPort),
		UpdateInterval: time.Second,
		ReceiveTimeout: 5 * time.Second,
	}
}

// Connect adds an undirected link of the given cost between two nodes
func Connect(a *state.NodeCfg, aIP string, b *state.NodeCfg, bIP string, cost float64) {
	a.Neighbours = append(a.Neighbours, state.NeighbourCfg{Id: b.Id, Addr: endpoint(bIP), Cost: cost})
	b.Neighbours = append(b.Neighbours, state.NeighbourCfg{Id: a.Id, Addr: endpoint(aIP), Cost: cost})
}
