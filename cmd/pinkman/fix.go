package pinkman

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pinkman-dev/pinkman/internal/cifixer"
	"github.com/pinkman-dev/pinkman/internal/config"
	"github.com/pinkman-dev/pinkman/internal/executor"
	"github.com/pinkman-dev/pinkman/internal/feedback"
	"github.com/pinkman-dev/pinkman/internal/gateway"
	gh "github.com/pinkman-dev/pinkman/internal/github"
	"github.com/pinkman-dev/pinkman/internal/validator"
	"github.com/pinkman-dev/pinkman/pkg/models"
)

var (
	fixRunID  int64
	fixJobID  int64
	fixApply  bool
	fixDryRun bool
)

var fixCmd = &cobra.Command{
	Use:   "fix <owner/repo>",
	Short: "Diagnose a CI failure and attempt an automatic fix",
	Long: `Fetches the logs of a failed CI job, classifies the failure, and
applies a remediation when it is safely auto-fixable.

Without --apply the proposed edits are logged but not written. Success is
provisional either way: re-run CI to confirm.

Examples:
  pinkman fix acme/shop
  pinkman fix acme/shop --run-id 123456 --apply
  pinkman fix acme/shop --job 7890 --apply --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runFix,
}

func init() {
	fixCmd.Flags().Int64Var(&fixRunID, "run-id", 0, "Workflow run to inspect (default: latest failed)")
	fixCmd.Flags().Int64Var(&fixJobID, "job", 0, "Specific failed job ID")
	fixCmd.Flags().BoolVar(&fixApply, "apply", false, "Write fix actions into the work tree")
	fixCmd.Flags().BoolVar(&fixDryRun, "dry-run", false, "Log fix actions without writing")
}

func runFix(cmd *cobra.Command, args []string) error {
	if !githubRepoPattern.MatchString(args[0]) {
		return fmt.Errorf("invalid repo format %q, use: owner/repo", args[0])
	}
	parts := strings.SplitN(args[0], "/", 2)
	owner, repo := parts[0], parts[1]

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := gh.NewClient(cfg.GitHubToken)
	failure, err := resolveFailure(ctx, client, owner, repo)
	if err != nil {
		return err
	}

	gw, err := gateway.New(cfg.Gateway, logger)
	if err != nil {
		return err
	}
	execCfg := cfg.Executor
	execCfg.DryRun = execCfg.DryRun || fixDryRun || !fixApply
	fixer := cifixer.New(gw, executor.New(execCfg, logger), validator.New(logger), logger, cfg.Pipeline.MaxFixAttempts)

	session := &models.AutoFixResult{Failure: *failure}

	spin := startSpinner(fmt.Sprintf(" Diagnosing job %q...", failure.JobName))
	fixErr := fixer.Fix(ctx, session)
	stopSpinner(spin)

	if len(session.Attempts) > 0 {
		recordFixFeedback(ctx, cfg, logger, session)
	}

	if jsonOutput {
		if err := json.NewEncoder(os.Stdout).Encode(session); err != nil {
			return err
		}
	} else {
		renderFixSession(os.Stdout, session, execCfg.DryRun)
	}
	return fixErr
}

// recordFixFeedback logs the attempt as a pending suggestion so its verdict
// can feed the learning engine once the follow-up CI run settles.
func recordFixFeedback(ctx context.Context, cfg config.Config, logger *zap.Logger, session *models.AutoFixResult) {
	if cfg.DatabaseURL == "" {
		return
	}
	store, err := feedback.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Warn("feedback store unavailable", zap.Error(err))
		return
	}
	defer store.Close()

	subject := session.Failure.JobName
	if session.Diagnosis != nil && session.Diagnosis.FilePath != "" {
		subject = session.Diagnosis.FilePath
	}
	if _, err := store.Record(ctx, models.FeedbackEntry{
		Subject:  subject,
		Category: models.CategoryAutoFix,
	}); err != nil {
		logger.Warn("failed to record fix feedback", zap.Error(err))
	}
}

// resolveFailure finds the failed job to diagnose, defaulting to the first
// failed job of the latest failed workflow run
func resolveFailure(ctx context.Context, client *gh.Client, owner, repo string) (*models.CIFailureInfo, error) {
	runID := fixRunID
	if fixJobID == 0 && runID == 0 {
		runs, err := client.ListWorkflowRuns(ctx, owner, repo)
		if err != nil {
			return nil, fmt.Errorf("list workflow runs: %w", err)
		}
		for _, r := range runs {
			if r.Conclusion == "failure" {
				runID = r.ID
				break
			}
		}
		if runID == 0 {
			return nil, fmt.Errorf("no failed workflow runs found for %s/%s", owner, repo)
		}
	}

	jobID := fixJobID
	jobName := fmt.Sprintf("job %d", jobID)
	if jobID == 0 {
		jobs, err := client.ListJobs(ctx, owner, repo, runID)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		for _, j := range jobs {
			if j.Conclusion == "failure" {
				jobID = j.ID
				jobName = j.Name
				break
			}
		}
		if jobID == 0 {
			return nil, fmt.Errorf("run %d has no failed jobs", runID)
		}
	}

	logs, err := client.GetJobLogs(ctx, owner, repo, jobID)
	if err != nil {
		return nil, fmt.Errorf("fetch job logs: %w", err)
	}
	return &models.CIFailureInfo{
		JobID:      jobID,
		JobName:    jobName,
		WorkflowID: runID,
		LogExcerpt: logs,
	}, nil
}
