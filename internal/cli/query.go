package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/atikulmunna/sagrag/internal/model"
	"github.com/spf13/cobra"
)

var (
	queryUser      string
	queryTenant    string
	queryDomain    string
	queryFreshness float64
	queryJSON      string
	queryMD        string
	queryTimeout   time.Duration
	noFooter       bool
)

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Answer a single question from the indexed corpus",
	Long: `Query runs the full answer pipeline for one question:
- Plan sub-queries and constraints
- Route to a domain and retrieve from every backend in parallel
- Fuse, filter and re-rank the evidence
- Check the claim graph and judge confidence
- Synthesize an answer with provenance and risk signals

Example:
  sagrag query "What does Seneca say about fear?" --user u1
  sagrag query "Latest release notes" --user u1 --domain docs --freshness-days 30
  sagrag query "What does Seneca say about fear?" --user u1 --json answer.json --md answer.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringVar(&queryUser, "user", "cli", "user id recorded with the query")
	queryCmd.Flags().StringVar(&queryTenant, "tenant", "", "tenant namespace (defaults to the user id under tenant isolation)")
	queryCmd.Flags().StringVar(&queryDomain, "domain", "", "preferred domain")
	queryCmd.Flags().Float64Var(&queryFreshness, "freshness-days", 0, "only use evidence newer than this many days")

	// Output flags
	queryCmd.Flags().StringVar(&queryJSON, "json", "", "output JSON path (optional)")
	queryCmd.Flags().StringVar(&queryMD, "md", "", "output Markdown path (optional)")
	queryCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", 2*time.Minute, "overall query timeout")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close(context.Background())
	if noFooter {
		a.cfg.Output.IncludeFooter = false
	}

	p, err := a.pipeline()
	if err != nil {
		return err
	}
	defer func() { _ = p.Close(context.Background()) }()

	req := model.QueryRequest{
		UserID: queryUser,
		Query:  strings.Join(args, " "),
		Tenant: queryTenant,
		Preferences: model.Constraints{
			Domain: queryDomain,
		},
	}
	if cmd.Flags().Changed("freshness-days") {
		req.Preferences.FreshnessDays = &queryFreshness
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Query: %s\n", req.Query)
		fmt.Fprintf(os.Stderr, "LLM: %s\n", orNone(a.cfg.LLM.Provider))
		fmt.Fprintln(os.Stderr)
	}

	resp, err := p.Answer(ctx, req)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if err := p.RenderResponse(resp, queryJSON, queryMD, verbose); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "none (fallbacks only)"
	}
	return s
}
