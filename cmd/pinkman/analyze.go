package pinkman

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pinkman-dev/pinkman/internal/analyzer"
	"github.com/pinkman-dev/pinkman/internal/config"
	"github.com/pinkman-dev/pinkman/internal/coverage"
	"github.com/pinkman-dev/pinkman/internal/depscan"
	"github.com/pinkman-dev/pinkman/internal/executor"
	"github.com/pinkman-dev/pinkman/internal/feedback"
	"github.com/pinkman-dev/pinkman/internal/gateway"
	"github.com/pinkman-dev/pinkman/internal/generator"
	gh "github.com/pinkman-dev/pinkman/internal/github"
	"github.com/pinkman-dev/pinkman/internal/loop"
	"github.com/pinkman-dev/pinkman/internal/orchestrator"
	"github.com/pinkman-dev/pinkman/internal/requirements"
	"github.com/pinkman-dev/pinkman/internal/validator"
	"github.com/pinkman-dev/pinkman/pkg/models"
)

var githubRepoPattern = regexp.MustCompile(`^[\w-]+/[\w.-]+$`)

var (
	analyzePR           int
	analyzeDiffPath     string
	analyzeReqsPath     string
	analyzeCoveragePath string
	analyzeCoverageArt  string
	analyzeStages       []string
	analyzeSilent       bool
	analyzeApply        bool
	analyzeDryRun       bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <owner/repo>",
	Short: "Run the quality pipeline against a pull request",
	Long: `Fetches a pull request's diff, analyzes it, and generates validated
Playwright tests.

Examples:
  pinkman analyze acme/shop --pr 12
  pinkman analyze acme/shop --pr 12 --coverage lcov.info --json
  pinkman analyze acme/shop --pr 12 --stages analyzer,coverage
  pinkman analyze acme/shop --pr 12 --apply --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().IntVar(&analyzePR, "pr", 0, "Pull request number (required)")
	analyzeCmd.Flags().StringVar(&analyzeDiffPath, "diff", "", "Read the diff from a local file instead of GitHub")
	analyzeCmd.Flags().StringVar(&analyzeReqsPath, "requirements", "", "Local file with acceptance criteria")
	analyzeCmd.Flags().StringVar(&analyzeCoveragePath, "coverage", "", "Local coverage artifact (lcov, cobertura, istanbul, gocover)")
	analyzeCmd.Flags().StringVar(&analyzeCoverageArt, "coverage-artifact", "", "Name of a CI artifact to fetch the coverage report from")
	analyzeCmd.Flags().StringSliceVar(&analyzeStages, "stages", nil, "Explicit stage selection (analyzer is always included)")
	analyzeCmd.Flags().BoolVar(&analyzeSilent, "silent", false, "Run without posting anything externally")
	analyzeCmd.Flags().BoolVar(&analyzeApply, "apply", false, "Write generated tests into the work tree and commit")
	analyzeCmd.Flags().BoolVar(&analyzeDryRun, "dry-run", false, "With --apply, log actions without writing")
	_ = analyzeCmd.MarkFlagRequired("pr")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
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

	req, err := buildRequest(ctx, cfg, owner, repo)
	if err != nil {
		return err
	}

	gw, err := gateway.New(cfg.Gateway, logger)
	if err != nil {
		return err
	}
	deps, cleanup := buildDeps(ctx, cfg, gw, logger)
	defer cleanup()

	spin := startSpinner(fmt.Sprintf(" Analyzing %s#%d...", args[0], analyzePR))
	report, runErr := orchestrator.New(deps, logger).Run(ctx, req)
	stopSpinner(spin)

	if jsonOutput {
		if err := json.NewEncoder(os.Stdout).Encode(report); err != nil {
			return err
		}
	} else {
		renderReport(os.Stdout, report)
	}
	return runErr
}

func buildRequest(ctx context.Context, cfg config.Config, owner, repo string) (models.AnalysisRequest, error) {
	trigger := models.Trigger{Kind: models.TriggerPullRequest}
	if analyzeSilent {
		trigger.Kind = models.TriggerSilent
	} else if len(analyzeStages) > 0 {
		trigger = models.Trigger{Kind: models.TriggerComment, Command: "/qa " + strings.Join(analyzeStages, ",")}
	}

	pr := models.PullRequest{Owner: owner, Repo: repo, Number: analyzePR}
	var diffText string

	if analyzeDiffPath != "" {
		data, err := os.ReadFile(analyzeDiffPath)
		if err != nil {
			return models.AnalysisRequest{}, fmt.Errorf("read diff: %w", err)
		}
		diffText = string(data)
	} else {
		client := gh.NewClient(cfg.GitHubToken)
		remote, err := client.GetPullRequest(ctx, owner, repo, analyzePR)
		if err != nil {
			return models.AnalysisRequest{}, fmt.Errorf("fetch pull request: %w", err)
		}
		pr.Title = remote.Title
		pr.Description = remote.Body
		pr.BaseBranch = remote.Base.Ref
		pr.HeadBranch = remote.Head.Ref
		pr.HeadSHA = remote.Head.SHA
		pr.Author = remote.User.Login

		diffText, err = client.GetPullRequestDiff(ctx, owner, repo, analyzePR)
		if err != nil {
			return models.AnalysisRequest{}, fmt.Errorf("fetch diff: %w", err)
		}
	}

	req := models.NewAnalysisRequest(trigger, pr, diffText)
	for _, s := range analyzeStages {
		req.Stages = append(req.Stages, models.Stage(strings.TrimSpace(s)))
	}
	if analyzeApply {
		req.Stages = appendStageOnce(req.Stages, models.StageExecution)
	}

	if analyzeReqsPath != "" {
		data, err := os.ReadFile(analyzeReqsPath)
		if err != nil {
			return req, fmt.Errorf("read requirements: %w", err)
		}
		req.Requirements = string(data)
	}
	if analyzeCoveragePath != "" {
		data, err := os.ReadFile(analyzeCoveragePath)
		if err != nil {
			return req, fmt.Errorf("read coverage: %w", err)
		}
		req.CoverageData = data
	} else if analyzeCoverageArt != "" {
		data, err := fetchCoverageArtifact(ctx, gh.NewClient(cfg.GitHubToken), pr)
		if err != nil {
			return req, fmt.Errorf("fetch coverage artifact: %w", err)
		}
		req.CoverageData = data
	}
	return req, nil
}

var coverageFilePatterns = []string{"lcov.info", "coverage.out", "coverage-final.json", "coverage.xml", "cobertura.xml"}

// fetchCoverageArtifact pulls the named artifact from the newest completed
// workflow run for the PR head and returns the first coverage file inside it.
func fetchCoverageArtifact(ctx context.Context, client *gh.Client, pr models.PullRequest) ([]byte, error) {
	runs, err := client.ListWorkflowRuns(ctx, pr.Owner, pr.Repo)
	if err != nil {
		return nil, err
	}
	for _, run := range runs {
		if pr.HeadSHA != "" && run.HeadSHA != pr.HeadSHA {
			continue
		}
		artifacts, err := client.ListArtifacts(ctx, pr.Owner, pr.Repo, run.ID)
		if err != nil {
			return nil, err
		}
		for _, art := range artifacts {
			if art.Name != analyzeCoverageArt || art.Expired {
				continue
			}
			files, err := client.ExtractArtifact(ctx, pr.Owner, pr.Repo, art.ID, coverageFilePatterns)
			if err != nil {
				return nil, err
			}
			if len(files) == 0 {
				return nil, fmt.Errorf("artifact %q contains no recognizable coverage file", art.Name)
			}
			return files[0].Content, nil
		}
	}
	return nil, fmt.Errorf("artifact %q not found on a completed run for %s", analyzeCoverageArt, pr.HeadSHA)
}

// buildDeps assembles the stage implementations. The feedback store is
// optional: without DATABASE_URL runs simply skip learning.
func buildDeps(ctx context.Context, cfg config.Config, gw *gateway.Gateway, logger *zap.Logger) (orchestrator.Deps, func()) {
	deps := orchestrator.Deps{
		Gateway:      gw,
		Analyzer:     analyzer.New(gw, logger),
		Requirements: requirements.New(gw, logger),
		Dependencies: depscan.New(gw, logger),
		Loop: loop.New(
			generator.New(gw, logger, cfg.Pipeline.MaxCandidates),
			validator.New(logger),
			logger,
			cfg.Pipeline.MaxCorrectionRounds,
		),
		Coverage: coverage.New(logger),
	}
	cleanup := func() {}

	if analyzeApply {
		execCfg := cfg.Executor
		execCfg.DryRun = execCfg.DryRun || analyzeDryRun
		deps.Executor = executor.New(execCfg, logger)
	}
	if cfg.DatabaseURL != "" {
		store, err := feedback.Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Warn("feedback store unavailable, learning disabled", zap.Error(err))
		} else {
			deps.Learning = feedback.NewEngine(store, logger)
			cleanup = store.Close
		}
	}
	return deps, cleanup
}

func appendStageOnce(stages []models.Stage, stage models.Stage) []models.Stage {
	for _, s := range stages {
		if s == stage {
			return stages
		}
	}
	return append(stages, stage)
}

func startSpinner(message string) *spinner.Spinner {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		fmt.Fprintln(os.Stderr, strings.TrimSpace(message))
		return nil
	}
	spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	spin.Suffix = message
	spin.Start()
	return spin
}

func stopSpinner(spin *spinner.Spinner) {
	if spin != nil {
		spin.Stop()
	}
}
