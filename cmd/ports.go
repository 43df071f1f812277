package cmd

import (
	"fmt"
	"net/netip"
	"strconv"

	"github.com/encodeous/dvnode/state"
	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports <local-port> [<port> <cost>]... [last]",
	Short: "Run a node on localhost, identified by its port",
	Long: `Runs a node on 127.0.0.1 without a config file. Every node is named after its port.
Each <port> <cost> pair adds a neighbour listening on that port. The trailing "last" marks the node that starts the exchange, and should be given to the last node started.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := parsePortArgs(args)
		if err != nil {
			fmt.Println("Error:", err.Error())
			fmt.Println(cmd.UsageString())
			return
		}
		cfg.UpdateInterval, _ = cmd.Flags().GetDuration("interval")
		cfg.ReceiveTimeout, _ = cmd.Flags().GetDuration("timeout")
		cfg.PoisonReverse, _ = cmd.Flags().GetBool("poison-reverse")
		if err := state.NodeConfigValidator(cfg, true); err != nil {
			panic(err)
		}
		serve, _ := cmd.Flags().GetBool("serve")

		err = runNode(*cfg, !serve, logLevel(cmd))
		if err != nil {
			panic(err)
		}
	},
	GroupID: "node",
}

func parsePort(arg string) (uint16, error) {
	port, err := strconv.ParseUint(arg, 10, 16)
	if err != nil || port == 0 {
		return 0, fmt.Errorf("invalid port %q", arg)
	}
	return uint16(port), nil
}

func localhost(port uint16) netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), port)
}

func parsePortArgs(args []string) (*state.NodeCfg, error) {
	cfg := &state.NodeCfg{}
	if args[len(args)-1] == "last" {
		cfg.Initiator = true
		args = args[:len(args)-1]
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("missing local port")
	}
	if len(args)%2 != 1 {
		return nil, fmt.Errorf("every neighbour port needs a cost")
	}
	port, err := parsePort(args[0])
	if err != nil {
		return nil, err
	}
	cfg.Id = state.NodeId(args[0])
	cfg.Bind = localhost(port)

	for i := 1; i < len(args); i += 2 {
		port, err := parsePort(args[i])
		if err != nil {
			return nil, err
		}
		cost, err := strconv.ParseFloat(args[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid cost %q for port %s", args[i+1], args[i])
		}
		cfg.Neighbours = append(cfg.Neighbours, state.NeighbourCfg{
			Id:   state.NodeId(args[i]),
			Addr: localhost(port),
			Cost: cost,
		})
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func init() {
	rootCmd.AddCommand(portsCmd)

	portsCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	portsCmd.Flags().Bool("serve", false, "Keep running instead of stopping after one exchange round")
	portsCmd.Flags().Duration("interval", 0, "Periodic advertisement interval when serving, 0 disables it")
	portsCmd.Flags().Duration("timeout", state.DefaultReceiveTimeout, "How long to wait for each neighbour")
	portsCmd.Flags().Bool("poison-reverse", false, "Advertise routes as unreachable to their next hop")
}
