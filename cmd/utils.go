package cmd

import (
	"fmt"
	"log/slog"

	"github.com/encodeous/dvnode/core"
	"github.com/encodeous/dvnode/impl"
	"github.com/encodeous/dvnode/state"
	"github.com/spf13/cobra"
)

const DefaultConfigPath = "node.yaml"

func loadNodeConfig(path string) (*state.NodeCfg, error) {
	cfg, err := state.ReadNodeConfig(path)
	if err != nil {
		return nil, err
	}
	err = state.NodeConfigValidator(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func logLevel(cmd *cobra.Command) slog.Level {
	if ok, _ := cmd.Flags().GetBool("verbose"); ok {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// runNode runs cfg until interrupted, or for a single exchange round if once is set
func runNode(cfg state.NodeCfg, once bool, level slog.Level) error {
	if !once {
		return core.Start(cfg, level)
	}
	logger, closeLog, err := core.NewLogger(&cfg, level)
	if err != nil {
		return err
	}
	defer closeLog()
	transport, err := impl.ListenUdp(cfg.Bind, cfg.Neighbours)
	if err != nil {
		return err
	}
	table, err := core.RunSequential(cfg, transport, logger)
	if err != nil {
		return err
	}
	fmt.Printf("Routing table of %s:\n%s\n", cfg.Id, table)
	return nil
}
