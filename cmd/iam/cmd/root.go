package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ivanovaleksey/iam-sub000/internal/config"
)

var (
	cfg    *config.Config
	logger *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "iam",
	Short: "Identity and access management service",
	Long: `iam stores accounts, provider identities, namespaces, attribute graphs
and policies, and answers authorization queries over JSON-RPC.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		logger = log.Default()
		if cfg.Debug {
			logger.SetLevel(log.DebugLevel)
		}
		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().String("db-url", "", "Database connection URL (env: IAM_DATABASE_URL)")
	rootCmd.PersistentFlags().String("listen-addr", "", "Server bind address (env: IAM_LISTEN_ADDR)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (env: IAM_DEBUG)")

	_ = viper.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("db-url"))
	_ = viper.BindPFlag("listen_addr", rootCmd.PersistentFlags().Lookup("listen-addr"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
