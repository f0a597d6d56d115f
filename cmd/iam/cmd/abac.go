package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ivanovaleksey/iam-sub000/internal/db/bunx"
	"github.com/ivanovaleksey/iam-sub000/internal/db/models"
	"github.com/ivanovaleksey/iam-sub000/internal/graph"
	"github.com/ivanovaleksey/iam-sub000/internal/repository"
)

var abacCmd = &cobra.Command{
	Use:   "abac",
	Short: "Attribute graph diagnostics",
}

var (
	auditRelation string
	auditJSON     bool
)

const auditPageSize = 1000

var abacAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect a relation graph",
	Long: `Loads every edge of a relation and reports cycles and attributes with no
path into the governing namespace. Cycles do not break authorization, but
they make expansions run into the depth cap; unanchored attributes cannot
satisfy any vocabulary-based policy. Read-only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rel := models.Relation(auditRelation)
		if !rel.Valid() {
			return fmt.Errorf("invalid relation %q, want subject, object or action", auditRelation)
		}

		db, err := bunx.NewDB(cfg.DatabaseURL, cfg.MaxDBConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		edges, err := loadEdges(cmd.Context(), repository.NewBunEdgeRepository(db), rel)
		if err != nil {
			return err
		}

		report := graph.Audit(rel, edges, cfg.IAMNamespaceID)

		if auditJSON {
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		fmt.Printf("Relation %s: %d attributes, %d edges\n", report.Relation, report.Nodes, report.Edges)

		if len(report.Cycles) == 0 {
			fmt.Println("No cycles.")
		} else {
			fmt.Printf("%d cycle(s):\n", len(report.Cycles))
			for _, cycle := range report.Cycles {
				members := make([]string, 0, len(cycle.Members))
				for _, member := range cycle.Members {
					members = append(members, member.String())
				}
				fmt.Printf("  %s\n", strings.Join(members, " <-> "))
			}
		}

		if len(report.Unanchored) == 0 {
			fmt.Println("Every attribute reaches the governing namespace.")
		} else {
			fmt.Printf("%d unanchored attribute(s):\n", len(report.Unanchored))
			for _, attr := range report.Unanchored {
				fmt.Printf("  %s\n", attr)
			}
		}
		return nil
	},
}

func loadEdges(ctx context.Context, repo repository.EdgeRepository, rel models.Relation) ([]models.Edge, error) {
	var edges []models.Edge
	for offset := 0; ; offset += auditPageSize {
		page, err := repo.ListAll(ctx, rel, auditPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list %s edges: %w", rel, err)
		}
		edges = append(edges, page...)
		if len(page) < auditPageSize {
			return edges, nil
		}
	}
}

func init() {
	rootCmd.AddCommand(abacCmd)
	abacCmd.AddCommand(abacAuditCmd)

	abacAuditCmd.Flags().StringVar(&auditRelation, "relation", "", "Relation to audit: subject, object or action")
	abacAuditCmd.Flags().BoolVar(&auditJSON, "json", false, "Emit the report as JSON")
	_ = abacAuditCmd.MarkFlagRequired("relation")
}
