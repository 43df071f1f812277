package cmd

import (
	"testing"

	"github.com/encodeous/dvnode/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePortArgs(t *testing.T) {
	cfg, err := parsePortArgs([]string{"5001", "5000", "1", "5002", "2.5", "last"})
	require.NoError(t, err)
	assert.Equal(t, state.NodeId("5001"), cfg.Id)
	assert.Equal(t, "127.0.0.1:5001", cfg.Bind.String())
	assert.True(t, cfg.Initiator)
	require.Len(t, cfg.Neighbours, 2)
	assert.Equal(t, state.NodeId("5002"), cfg.Neighbours[1].Id)
	assert.Equal(t, "127.0.0.1:5002", cfg.Neighbours[1].Addr.String())
	assert.Equal(t, 2.5, cfg.Neighbours[1].Cost)
	assert.Equal(t, state.DefaultReceiveTimeout, cfg.ReceiveTimeout)
	assert.NoError(t, state.NodeConfigValidator(cfg, true))

	cfg, err = parsePortArgs([]string{"5000"})
	require.NoError(t, err)
	assert.False(t, cfg.Initiator)
	assert.Empty(t, cfg.Neighbours)
}

func TestParsePortArgsErrors(t *testing.T) {
	tests := [][]string{
		{"last"},
		{"5000", "5001"},
		{"abc"},
		{"0"},
		{"70000"},
		{"5000", "5001", "cheap"},
	}
	for _, args := range tests {
		_, err := parsePortArgs(args)
		assert.Error(t, err, "%v", args)
	}
}

func TestFormatSimulation(t *testing.T) {
	topo := &state.TopologyCfg{
		Nodes: []state.NodeId{"a", "b", "c"},
		Edges: []state.EdgeCfg{{A: "a", B: "b", Cost: 1}},
	}
	tables := map[state.NodeId]state.RoutingTable{
		"a": {
			"a": {Dest: "a", Metric: 0},
			"b": {Dest: "b", Nh: state.Some[state.NodeId]("b"), Metric: 1},
		},
		"b": {
			"b": {Dest: "b", Metric: 0},
			"a": {Dest: "a", Nh: state.Some[state.NodeId]("a"), Metric: 3},
		},
		"c": {
			"c": {Dest: "c", Metric: 0},
		},
	}
	out, mismatches := formatSimulation(topo, tables)
	assert.Equal(t, 1, mismatches)
	assert.Contains(t, out, "- (1) -> b via b [shortest 1]\n")
	assert.Contains(t, out, "- (3) -> a via a [shortest 1] MISMATCH\n")
	assert.Contains(t, out, "- (inf) -> a [shortest inf]\n")
}
