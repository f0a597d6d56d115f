package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ivanovaleksey/iam-sub000/internal/db/bunx"
	"github.com/ivanovaleksey/iam-sub000/internal/services/iam"
)

var (
	adminLabel string
	adminUID   string
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Seed the governing namespace and admin account",
	Long: `Seeds the rows the authorization engine needs before the first request:
the governing namespace, the built-in attribute vocabulary, an admin account
with its identity, and the admin policies.

The command writes directly through the repositories, bypassing the guard,
because it creates the very policies the guard checks against. Running it
again over a seeded database changes nothing.

Example:
  iam bootstrap --admin-label admin --admin-uid root-1
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := bunx.NewDB(cfg.DatabaseURL, cfg.MaxDBConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		result, err := iam.Bootstrap(cmd.Context(), db, cfg, adminLabel, adminUID)
		if err != nil {
			return fmt.Errorf("bootstrap failed: %w", err)
		}

		fmt.Println("✓ Bootstrap complete")
		fmt.Printf("  Governing namespace: %s (created=%t)\n", cfg.IAMNamespaceID, result.NamespaceCreated)
		fmt.Printf("  Admin account:       %s (created=%t)\n", result.AccountID, result.AccountCreated)
		fmt.Printf("  Vocabulary edges:    %d created\n", result.EdgesCreated)
		fmt.Printf("  Admin policies:      %d created\n", result.PoliciesCreated)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(bootstrapCmd)
	bootstrapCmd.Flags().StringVar(&adminLabel, "admin-label", "", "Label of the admin identity in the governing namespace")
	bootstrapCmd.Flags().StringVar(&adminUID, "admin-uid", "", "Provider-side UID of the admin identity")
	_ = bootstrapCmd.MarkFlagRequired("admin-label")
	_ = bootstrapCmd.MarkFlagRequired("admin-uid")
}
