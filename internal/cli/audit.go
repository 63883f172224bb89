package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/atikulmunna/sagrag/internal/store"
	"github.com/spf13/cobra"
)

var (
	auditLimit  int
	auditUser   string
	auditCursor string
	auditJSON   bool
)

// auditCmd represents the audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the query audit log",
	Long: `Every answered query is recorded in the audit database with its
answer, provenance, confidence and explain trace.

Example:
  sagrag audit list --limit 20
  sagrag audit list --user u1 --cursor <next-token>
  sagrag audit export audit.jsonl --limit 1000`,
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit records, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, s *store.Store) error {
			records, err := s.ListAudit(ctx, store.AuditFilter{Limit: auditLimit, UserID: auditUser, Cursor: auditCursor})
			if err != nil {
				return err
			}

			next := ""
			if len(records) > 0 && len(records) == store.ClampLimit(auditLimit) {
				next = records[len(records)-1].Cursor
			}

			if auditJSON {
				return printJSON(map[string]any{"items": records, "next_token": next})
			}
			for _, r := range records {
				fmt.Printf("%s  %-10s %-12s conf=%.2f risk=%.2f %-28s %s\n",
					r.CreatedAt.Format(time.RFC3339), r.UserID, r.Domain,
					r.Confidence, r.HallucinationRisk, r.ExplainTrace, r.Query)
			}
			if next != "" {
				fmt.Fprintf(os.Stderr, "\nMore records: --cursor %s\n", next)
			}
			return nil
		})
	},
}

var auditExportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Export audit records as JSONL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, s *store.Store) error {
			n, err := s.ExportAuditJSONL(ctx, args[0], auditLimit, auditUser)
			if err != nil {
				return err
			}
			fmt.Printf("✓ Exported %d audit records to %s\n", n, args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditExportCmd)

	auditCmd.PersistentFlags().IntVar(&auditLimit, "limit", 50, "maximum records (1-1000)")
	auditCmd.PersistentFlags().StringVar(&auditUser, "user", "", "only records of this user")
	auditListCmd.Flags().StringVar(&auditCursor, "cursor", "", "resume after this record")
	auditListCmd.Flags().BoolVar(&auditJSON, "json", false, "print JSON")
}

// withStore opens the audit database for one command
func withStore(fn func(ctx context.Context, s *store.Store) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	s, err := store.Open(a.cfg.Audit.DBPath, a.logger)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	return fn(context.Background(), s)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
