package cli

import (
	"context"
	"fmt"

	"github.com/atikulmunna/sagrag/internal/store"
	"github.com/atikulmunna/sagrag/internal/validate"
	"github.com/spf13/cobra"
)

var (
	feedbackUser      string
	feedbackQuery     string
	feedbackRating    int
	feedbackComment   string
	feedbackLimit     int
	feedbackMinRating int
	learningPath      string
	learningLimit     int
)

// feedbackCmd represents the feedback command
var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record and review answer ratings",
	Long: `Ratings (1-5) are keyed by user and query and joined with the audit
log when exporting training data.

Example:
  sagrag feedback add --user u1 --query "What does Seneca say about fear?" --rating 5
  sagrag feedback list --min-rating 4`,
}

var feedbackAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Rate an answer",
	RunE: func(cmd *cobra.Command, args []string) error {
		fb := store.Feedback{
			UserID:  feedbackUser,
			Query:   feedbackQuery,
			Rating:  feedbackRating,
			Comment: feedbackComment,
		}
		if err := validate.Struct(fb); err != nil {
			return err
		}
		return withStore(func(ctx context.Context, s *store.Store) error {
			if err := s.LogFeedback(ctx, fb); err != nil {
				return err
			}
			fmt.Println("✓ Feedback recorded")
			return nil
		})
	},
}

var feedbackListCmd = &cobra.Command{
	Use:   "list",
	Short: "List feedback, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		var minRating *int
		if cmd.Flags().Changed("min-rating") {
			minRating = &feedbackMinRating
		}
		return withStore(func(ctx context.Context, s *store.Store) error {
			rows, err := s.ListFeedback(ctx, feedbackLimit, minRating)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"items": rows})
		})
	},
}

// learningCmd represents the learning command
var learningCmd = &cobra.Command{
	Use:   "learning",
	Short: "Build training data from audits and feedback",
}

var learningExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit records joined with feedback as JSONL",
	Long: `Export writes one example per audited answer with the rating and
comment of the newest matching feedback. The path and minimum rating
default to audit.learning_export_path and audit.learning_min_rating.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close(context.Background())

		path := learningPath
		if path == "" {
			path = a.cfg.Audit.LearningExportPath
		}
		minRating := a.cfg.Audit.LearningMinRating
		if cmd.Flags().Changed("min-rating") {
			minRating = feedbackMinRating
		}

		s, err := store.Open(a.cfg.Audit.DBPath, a.logger)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		n, err := s.ExportTrainingData(context.Background(), path, learningLimit, &minRating)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Exported %d training examples to %s\n", n, path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(feedbackCmd)
	feedbackCmd.AddCommand(feedbackAddCmd)
	feedbackCmd.AddCommand(feedbackListCmd)
	rootCmd.AddCommand(learningCmd)
	learningCmd.AddCommand(learningExportCmd)

	feedbackAddCmd.Flags().StringVar(&feedbackUser, "user", "", "user id")
	feedbackAddCmd.Flags().StringVar(&feedbackQuery, "query", "", "the rated query")
	feedbackAddCmd.Flags().IntVar(&feedbackRating, "rating", 0, "rating from 1 to 5")
	feedbackAddCmd.Flags().StringVar(&feedbackComment, "comment", "", "optional comment")

	feedbackListCmd.Flags().IntVar(&feedbackLimit, "limit", 50, "maximum records (1-1000)")
	feedbackListCmd.Flags().IntVar(&feedbackMinRating, "min-rating", 0, "only ratings of at least this value")

	learningExportCmd.Flags().StringVar(&learningPath, "path", "", "output JSONL path")
	learningExportCmd.Flags().IntVar(&learningLimit, "limit", 1000, "maximum audit records (1-1000)")
	learningExportCmd.Flags().IntVar(&feedbackMinRating, "min-rating", 0, "only feedback of at least this rating")
}
