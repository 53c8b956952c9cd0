package cmd

import (
	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the config and universe files without trading",
	Run: func(cmd *cobra.Command, args []string) {
		log := utils.GetLogger()

		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			log.Fatal("Failed to load configuration", zap.Error(err))
		}

		u, err := config.LoadUniverse(cfg.UniverseFile)
		if err != nil {
			log.Fatal("Failed to load universe", zap.Error(err))
		}

		log.Info("Configuration is valid",
			zap.String("universe", cfg.UniverseFile),
			zap.Int("tokens", len(u.Tokens)),
			zap.Int("venues", len(u.Venues)),
			zap.Int("routes", len(u.Routes)),
			zap.Uint16("lender_premium_bps", u.Lender.PremiumBps),
		)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
