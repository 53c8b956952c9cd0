package cmd

import (
	"context"
	"errors"

	"github.com/michaelpento.lv/flasharb/bot"
	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the arbitrage scan loop",
	Run: func(cmd *cobra.Command, args []string) {
		log := utils.GetLogger()

		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			log.Fatal("Failed to load configuration", zap.Error(err))
		}
		if debug {
			cfg.Debug = true
		}

		b, err := bot.New(cfg, log)
		if err != nil {
			log.Fatal("Failed to create bot", zap.Error(err))
		}

		if err := b.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal("Bot stopped", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
