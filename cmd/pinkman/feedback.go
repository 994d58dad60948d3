package pinkman

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pinkman-dev/pinkman/internal/feedback"
	"github.com/pinkman-dev/pinkman/pkg/models"
)

var feedbackComment string

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Review and resolve suggestions from past runs",
	Long:  `Manages the feedback log the learning engine aggregates. Requires DATABASE_URL.`,
}

var feedbackListCmd = &cobra.Command{
	Use:   "list",
	Short: "List suggestions awaiting a verdict",
	RunE:  runFeedbackList,
}

var feedbackResolveCmd = &cobra.Command{
	Use:   "resolve <id> <accepted|rejected|modified>",
	Short: "Record a verdict on a pending suggestion",
	Args:  cobra.ExactArgs(2),
	RunE:  runFeedbackResolve,
}

var feedbackInsightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Show what the learning engine has derived from past verdicts",
	RunE:  runFeedbackInsights,
}

var feedbackMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply feedback store schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		url := os.Getenv("DATABASE_URL")
		if url == "" {
			return fmt.Errorf("DATABASE_URL is not set")
		}
		return feedback.Migrate(url)
	},
}

func init() {
	feedbackResolveCmd.Flags().StringVar(&feedbackComment, "comment", "", "Optional reviewer comment")
	feedbackCmd.AddCommand(feedbackListCmd)
	feedbackCmd.AddCommand(feedbackResolveCmd)
	feedbackCmd.AddCommand(feedbackInsightsCmd)
	feedbackCmd.AddCommand(feedbackMigrateCmd)
}

func openStore(ctx context.Context) (*feedback.Store, *zap.Logger, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is not set")
	}
	store, err := feedback.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, logger, nil
}

func runFeedbackList(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.ListPending(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(entries)
	}
	if len(entries) == 0 {
		fmt.Println("No pending suggestions.")
		return nil
	}

	dim := color.New(color.FgHiBlack)
	for _, e := range entries {
		fmt.Printf("%s  [%s]  %s\n", e.ID, e.Category, e.Subject)
		_, _ = dim.Printf("    run %s, %s\n", e.RunID, e.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runFeedbackResolve(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid feedback id: %w", err)
	}
	verdict := models.Verdict(args[1])
	switch verdict {
	case models.VerdictAccepted, models.VerdictRejected, models.VerdictModified:
	default:
		return fmt.Errorf("verdict must be accepted, rejected, or modified, got %q", args[1])
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Resolve(ctx, id, verdict, feedbackComment); err != nil {
		return err
	}
	fmt.Printf("Recorded %s for %s\n", verdict, id)
	return nil
}

func runFeedbackInsights(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, logger, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	insights, err := feedback.NewEngine(store, logger).Insights(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(insights)
	}
	renderInsights(os.Stdout, insights)
	return nil
}
