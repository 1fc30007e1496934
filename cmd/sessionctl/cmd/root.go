package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.pilab.hu/recovery/config"
	"go.pilab.hu/recovery/log"
)

const appName = "sessionctl"

var (
	cfgFile   string
	appConfig *config.SessionConfig
	appLogger log.Logger = log.Nop()
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "sessionctl drives the on-device session manager",
	Long: `A command-line front end for the session manager: inspect the restored session,
sign in with Google or Apple, create an email account, sign out, or serve the
local inspector endpoint.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		appConfig = cfg
		appLogger = log.NewZerologAdapterTo(cmd.ErrOrStderr(), log.ParseLevel(cfg.LogLevel), cfg.LogPretty)
		appLogger.Debug(cmd.Context(), "Configuration loaded", log.Fields{
			"cache_backend": cfg.CacheBackend,
			"mongo_db_name": cfg.MongoDBName,
			"log_level":     cfg.LogLevel,
		})
		return nil
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		appLogger.Error(context.Background(), "CLI execution failed", err)
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.recovery-session/config.yaml)")

	rootCmd.AddCommand(statusCmd, signInCmd, signUpCmd, signOutCmd, serveCmd)
}
