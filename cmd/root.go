package cmd

import (
	"context"

	"github.com/michaelpento.lv/flasharb/utils"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "flasharb",
	Short: "An atomic flash-loan arbitrage bot",
	Long: `A CLI bot that borrows working capital from a flash-loan pool,
routes it through a sequence of AMM venues and keeps the surplus.
Every operation settles atomically: if any step fails, nothing happened.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.json)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initConfig() {
	utils.InitLogger(debug)
}
