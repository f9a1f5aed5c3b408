package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tollwatch/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "tollwatch",
	Short: "Daily toll plaza and rate snapshot diff",
	Long:  "Fetches toll plazas and rate tables, stores a dated snapshot, and reports what changed since the previous snapshot.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if root, _ := cmd.Flags().GetString("root"); root != "" {
			c.Store.Root = root
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	// Invoked without a subcommand, tollwatch runs today's snapshot.
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSnapshot(cmd, runOpts)
	},
}

func init() {
	rootCmd.PersistentFlags().String("root", "", "snapshot store directory (overrides store.root)")
	rootCmd.SilenceUsage = true
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
