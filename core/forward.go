package core

import (
	"net/netip"

	"github.com/encodeous/dvnode/state"
	"github.com/gaissmai/bart"
)

// buildForwardTable maps every configured prefix of a reachable node to the route toward it
func buildForwardTable(routes state.RoutingTable, prefixes map[state.NodeId][]netip.Prefix) *bart.Table[state.RouteEntry] {
	table := new(bart.Table[state.RouteEntry])
	for node, nodePrefixes := range prefixes {
		route, ok := routes[node]
		if !ok || route.Metric.IsInf() {
			continue
		}
		for _, prefix := range nodePrefixes {
			table.Insert(prefix.Masked(), route)
		}
	}
	return table
}
