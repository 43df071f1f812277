package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/encodeous/dvnode/core"
	"github.com/encodeous/dvnode/state"
	"github.com/spf13/cobra"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Runs a whole network in memory and compares every table with the shortest paths",
	Run: func(cmd *cobra.Command, args []string) {
		topo, err := state.ReadTopology(cmd.Flag("topology").Value.String())
		if err != nil {
			panic(err)
		}
		level := slog.LevelWarn
		if ok, _ := cmd.Flags().GetBool("verbose"); ok {
			level = slog.LevelDebug
		}
		logger, closeLog, err := core.NewLogger(&state.NodeCfg{Id: "sim"}, level)
		if err != nil {
			panic(err)
		}
		defer closeLog()

		tables, err := core.Simulate(context.Background(), topo, logger)
		if err != nil {
			fmt.Println("Error:", err.Error())
			if tables == nil {
				os.Exit(1)
			}
		}
		out, mismatches := formatSimulation(topo, tables)
		fmt.Print(out)
		if mismatches > 0 {
			fmt.Printf("%d routes differ from the shortest paths\n", mismatches)
			os.Exit(1)
		}
	},
	GroupID: "cfg",
}

// formatSimulation prints each node's table beside the cost Dijkstra's algorithm finds
func formatSimulation(topo *state.TopologyCfg, tables map[state.NodeId]state.RoutingTable) (string, int) {
	sb := strings.Builder{}
	mismatches := 0
	for _, id := range topo.Nodes {
		sb.WriteString(fmt.Sprintf("%s:\n", id))
		expected := topo.ShortestPaths(id)
		table := tables[id]
		for _, dest := range topo.Nodes {
			route, ok := table[dest]
			actual := state.INF
			desc := fmt.Sprintf("(inf) -> %s", dest)
			if ok {
				actual = route.Metric
				desc = route.String()
			}
			mark := ""
			if !sameMetric(actual, expected[dest]) {
				mark = " MISMATCH"
				mismatches++
			}
			sb.WriteString(fmt.Sprintf("- %s [shortest %s]%s\n", desc, expected[dest], mark))
		}
	}
	return sb.String(), mismatches
}

func sameMetric(a, b state.Metric) bool {
	if a.IsInf() || b.IsInf() {
		return a.IsInf() == b.IsInf()
	}
	return math.Abs(float64(a-b)) <= 1e-9
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringP("topology", "t", "topology.yaml", "Path to the topology")
	simulateCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
}
