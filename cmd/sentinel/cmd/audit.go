package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/atmx/sentinel/internal/store"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Print the audit trail from a SQLite file",
	Long: `List audit entries newest first.

Example:
  sentinel audit --db sentinel.db --limit 50 --since 2026-10-17T00:00:00Z`,
	RunE: runAudit,
}

var (
	auditDB    string
	auditLimit int
	auditSince string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().StringVar(&auditDB, "db", "sentinel.db", "SQLite file")
	auditCmd.Flags().IntVar(&auditLimit, "limit", store.DefaultAuditLimit, "maximum entries")
	auditCmd.Flags().StringVar(&auditSince, "since", "", "only entries at or after this RFC 3339 time")
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	q := store.AuditQuery{Limit: auditLimit}
	if auditSince != "" {
		ts, err := time.Parse(time.RFC3339Nano, auditSince)
		if err != nil {
			return fmt.Errorf("--since: %w", err)
		}
		q.Since = &ts
	}

	sq, err := store.NewSQLiteStore(auditDB)
	if err != nil {
		return err
	}
	defer sq.Close()

	entries, err := sq.ListAudit(ctx, q)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, e := range entries {
		fmt.Fprintf(out, "%s %-5s %-10s %s\n", e.TS.Format(time.RFC3339Nano), e.Level, e.Component, e.Message)
	}
	return nil
}
