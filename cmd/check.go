package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validates a node config",
	Run: func(cmd *cobra.Command, args []string) {
		path := cmd.Flag("config").Value.String()
		cfg, err := loadNodeConfig(path)
		if err != nil {
			fmt.Println("Error:", err.Error())
			os.Exit(1)
		}
		fmt.Printf("configuration is valid: node %s with %d neighbours\n", cfg.Id, len(cfg.Neighbours))
	},
	GroupID: "cfg",
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringP("config", "c", DefaultConfigPath, "Path to the node config")
}
