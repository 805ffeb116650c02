// Package app provides the authserver command line.
package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dlddu/registry-oauth/internal/config"
	"github.com/dlddu/registry-oauth/internal/logger"
)

// cli is shared by every subcommand
type cli struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCmd creates the authserver root command
func NewRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	config.SetDefaults(c.v)

	var configFile string
	root := &cobra.Command{
		Use:           "authserver",
		Short:         "OAuth 2.0 authorization server for the package registry",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configFile != "" {
				c.v.SetConfigFile(configFile)
				if err := c.v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config: %w", err)
				}
			}
			cfg, err := config.Load(c.v)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			log, err := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
			if err != nil {
				return err
			}
			slog.SetDefault(log)
			c.cfg, c.logger = cfg, log
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a config file (yaml, json or toml)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("store", config.DriverPostgres, "store driver (postgres or memory)")
	mustBind(c.v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level")))
	mustBind(c.v.BindPFlag("store.driver", root.PersistentFlags().Lookup("store")))

	root.AddCommand(
		newServeCmd(c),
		newMigrateCmd(c),
		newClientCmd(c),
		newUserCmd(c),
		newSweepCmd(c),
	)

	return root
}

// mustBind panics on a flag name typo; BindPFlag fails for nothing else.
func mustBind(err error) {
	if err != nil {
		panic(err)
	}
}
