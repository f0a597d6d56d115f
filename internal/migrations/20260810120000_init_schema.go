package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/ivanovaleksey/iam-sub000/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20260810120000, down_20260810120000)
}

// up_20260810120000 creates the account, namespace, token and authorization
// graph tables.
func up_20260810120000(ctx context.Context, db *bun.DB) error {
	// 1. accounts
	fmt.Print(" [up] creating accounts table...")
	_, err := db.NewCreateTable().
		Model((*models.Account)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create accounts table: %w", err)
	}
	fmt.Println(" OK")

	// 2. namespaces
	fmt.Print(" [up] creating namespaces table...")
	_, err = db.NewCreateTable().
		Model((*models.Namespace)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create namespaces table: %w", err)
	}

	// Labels are unique among live namespaces only; tombstoned rows may keep
	// theirs so the label can be reused.
	_, err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_namespaces_label_live ON namespaces(label) WHERE deleted_at IS NULL`)
	if err != nil {
		return fmt.Errorf("failed to create namespaces label index: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_namespaces_account_id ON namespaces(account_id)`)
	if err != nil {
		return fmt.Errorf("failed to create namespaces account index: %w", err)
	}
	fmt.Println(" OK")

	// 3. identities
	fmt.Print(" [up] creating identities table...")
	_, err = db.NewCreateTable().
		Model((*models.Identity)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create identities table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_identities_account_id ON identities(account_id)`)
	if err != nil {
		return fmt.Errorf("failed to create identities account index: %w", err)
	}

	if IsPostgreSQL(db) {
		_, err = db.Exec(`
			ALTER TABLE identities
			ADD CONSTRAINT fk_identities_account_id
			FOREIGN KEY (account_id) REFERENCES accounts(id)
		`)
		if err != nil {
			return fmt.Errorf("failed to add identities account FK: %w", err)
		}
	}
	fmt.Println(" OK")

	// 4. refresh_tokens
	fmt.Print(" [up] creating refresh_tokens table...")
	_, err = db.NewCreateTable().
		Model((*models.RefreshToken)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create refresh_tokens table: %w", err)
	}

	if IsPostgreSQL(db) {
		_, err = db.Exec(`
			ALTER TABLE refresh_tokens
			ADD CONSTRAINT fk_refresh_tokens_account_id
			FOREIGN KEY (account_id) REFERENCES accounts(id)
		`)
		if err != nil {
			return fmt.Errorf("failed to add refresh_tokens account FK: %w", err)
		}
	}
	fmt.Println(" OK")

	// 5. relation edge tables, one per relation, same shape
	for _, rel := range models.Relations {
		table := rel.Table()
		fmt.Printf(" [up] creating %s table...", table)
		_, err = db.NewCreateTable().
			Model((*models.Edge)(nil)).
			ModelTableExpr("?", bun.Ident(table)).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create %s table: %w", table, err)
		}

		// The composite PK covers inbound-prefix scans; reverse walks need
		// their own index.
		_, err = db.Exec(fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS idx_%s_outbound ON %s(outbound_namespace_id, outbound_key, outbound_value)`,
			table, table,
		))
		if err != nil {
			return fmt.Errorf("failed to create %s outbound index: %w", table, err)
		}
		fmt.Println(" OK")
	}

	// 6. abac_policy
	fmt.Print(" [up] creating abac_policy table...")
	_, err = db.NewCreateTable().
		Model((*models.Policy)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create abac_policy table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_abac_policy_namespace_id ON abac_policy(namespace_id)`)
	if err != nil {
		return fmt.Errorf("failed to create abac_policy namespace index: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_abac_policy_subject ON abac_policy(subject)`)
	if err != nil {
		return fmt.Errorf("failed to create abac_policy subject index: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20260810120000 drops everything in reverse order.
func down_20260810120000(ctx context.Context, db *bun.DB) error {
	tables := []string{"abac_policy"}
	for _, rel := range models.Relations {
		tables = append(tables, rel.Table())
	}
	tables = append(tables, "refresh_tokens", "identities", "namespaces", "accounts")

	for _, table := range tables {
		fmt.Printf(" [down] dropping %s table...", table)
		_, err := db.NewDropTable().
			TableExpr("?", bun.Ident(table)).
			IfExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop %s table: %w", table, err)
		}
		fmt.Println(" OK")
	}
	return nil
}
