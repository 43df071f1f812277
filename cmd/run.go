package cmd

import (
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a node",
	Long: `This will run a node from its configuration file. The node exchanges distance vectors with its neighbours until it is interrupted.
With --once, it performs a single exchange round, prints its routing table and exits.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadNodeConfig(cmd.Flag("config").Value.String())
		if err != nil {
			panic(err)
		}
		if logPath := cmd.Flag("log-path").Value.String(); logPath != "" {
			cfg.LogPath = logPath
		}
		once, _ := cmd.Flags().GetBool("once")

		err = runNode(*cfg, once, logLevel(cmd))
		if err != nil {
			panic(err)
		}
	},
	GroupID: "node",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("config", "c", DefaultConfigPath, "Path to the node config")
	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().Bool("once", false, "Run a single exchange round and print the routing table")
	runCmd.Flags().String("log-path", "", "Also write logs to this file")
}
