package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/atikulmunna/sagrag/internal/graph"
	"github.com/atikulmunna/sagrag/internal/pipeline"
	"github.com/spf13/cobra"
)

var graphTimeout time.Duration

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect the claim graph",
}

var graphSummaryCmd = &cobra.Command{
	Use:   "summary <chunk-id>...",
	Short: "Summarise claims, relations and contradictions for chunks",
	Long: `Summary prints the graph reasoning the judge would see for the given
chunk ids: supported claims with contradiction counts, entity density,
relation strength and conflicts, evidence scores and paths.

Example:
  sagrag graph summary chunk-12 chunk-40`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), graphTimeout)
		defer cancel()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close(context.Background())

		gs, err := pipeline.OpenGraphStore(a.cfg.Graph)
		if err != nil {
			return err
		}
		defer func() { _ = gs.Close(context.Background()) }()

		r := graph.NewReasoner(gs, graph.Options{
			MaxClaims:           a.cfg.Graph.MaxClaims,
			MaxEntities:         a.cfg.Graph.MaxEntities,
			MaxSubgraphEntities: a.cfg.Graph.MaxSubgraphEntities,
			Timeout:             a.cfg.Graph.Timeout,
		}, a.logger)

		reasoning := r.Reason(ctx, args)
		if reasoning == nil {
			return fmt.Errorf("no graph data for %d chunk(s)", len(args))
		}
		return printJSON(map[string]any{"graph_reasoning": reasoning})
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.AddCommand(graphSummaryCmd)
	graphSummaryCmd.Flags().DurationVar(&graphTimeout, "timeout", 30*time.Second, "graph query timeout")
}
