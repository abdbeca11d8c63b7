// Command ci-migrate batch-migrates a list of repositories' CI/CD
// configuration to GitHub Actions: detect, translate, validate, optionally
// verify at runtime and repair, then open a pull request per repository.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ci-migrate/cipilot/internal/config"
	"github.com/ci-migrate/cipilot/internal/input"
	"github.com/ci-migrate/cipilot/internal/llmclient"
	"github.com/ci-migrate/cipilot/internal/orchestrator"
	"github.com/ci-migrate/cipilot/internal/report"
	"github.com/ci-migrate/cipilot/internal/tokenpool"
	"github.com/ci-migrate/cipilot/pkg/console"
	"github.com/ci-migrate/cipilot/pkg/logger"
)

var log = logger.New("cmd:ci-migrate")

// Build-time variable set by GoReleaser.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Default()
	var strictnessFlag string
	var includeYAML bool

	rootCmd := &cobra.Command{
		Use:     "ci-migrate",
		Short:   "Batch-migrate CI/CD configurations to GitHub Actions",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			strictness, err := config.ParseStrictness(strictnessFlag)
			if err != nil {
				return err
			}
			cfg.Strictness = strictness
			cfg.ApplyEnv()
			return executeMigration(cmd.Context(), cfg, includeYAML)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&cfg.InputFile, "input", cfg.InputFile, "path to the repository list (CSV or JSON)")
	flags.StringVar(&cfg.OutputFile, "output", cfg.OutputFile, "path to the results CSV")
	flags.StringVar(&strictnessFlag, "strictness", string(cfg.Strictness), "strict|lint_only|permissive|dry_run")
	flags.BoolVar(&cfg.PROnLintFail, "pr-on-lint-fail", cfg.PROnLintFail, "open a PR even when actionlint fails")
	flags.BoolVar(&cfg.PROnDoubleCheckFail, "pr-on-double-check-fail", cfg.PROnDoubleCheckFail, "open a PR even when semantic verification fails")
	flags.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "run every stage but never write to GitHub")
	flags.IntVar(&cfg.MaxConcurrent, "concurrent", cfg.MaxConcurrent, "number of repositories processed concurrently")
	flags.IntVar(&cfg.MaxRetries, "retries", cfg.MaxRetries, "max retries for a transient stage failure")
	flags.BoolVar(&cfg.Resume, "resume", cfg.Resume, "skip repositories already terminal in --output")
	flags.BoolVar(&cfg.CloudGHAVerify, "cloud-gha-verify", cfg.CloudGHAVerify, "push to a fork and verify the workflow on GitHub Actions")
	flags.DurationVar(&cfg.CloudGHATimeout, "cloud-gha-timeout", cfg.CloudGHATimeout, "how long to poll a verification run before giving up")
	flags.IntVar(&cfg.CloudGHARetries, "cloud-gha-retries", cfg.CloudGHARetries, "max repair attempts per runtime failure")
	flags.StringVar(&cfg.LLMProvider, "llm-provider", cfg.LLMProvider, "LLM provider name")
	flags.StringVar(&cfg.LLMModel, "llm-model", cfg.LLMModel, "LLM model override")
	flags.StringVar(&cfg.LLMAPIKey, "llm-api-key", cfg.LLMAPIKey, "LLM API key (falls back to LLM_API_KEY)")
	flags.StringVar(&cfg.LLMBaseURL, "llm-base-url", cfg.LLMBaseURL, "LLM API base URL override")
	flags.StringSliceVar(&cfg.GitHubPATs, "github-pats", cfg.GitHubPATs, "comma-separated GitHub PATs (falls back to GITHUB_PATS/GITHUB_PAT)")
	flags.StringVar(&cfg.BranchPrefix, "branch-prefix", cfg.BranchPrefix, "prefix for migration branch names")
	flags.BoolVar(&includeYAML, "include-yaml", true, "include source_yaml/migrated_yaml columns in the output CSV")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	rootCmd.SetContext(ctx)
	rootCmd.SetOut(os.Stderr)

	err := rootCmd.Execute()
	if ctx.Err() != nil {
		fmt.Fprintln(os.Stderr, console.FormatInfoMessage("interrupted, shutting down"))
		return 130
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, console.FormatErrorMessage(err.Error()))
		return 1
	}
	return 0
}

func executeMigration(ctx context.Context, cfg *config.Config, includeYAML bool) error {
	if cfg.InputFile == "" {
		return fmt.Errorf("--input is required")
	}
	if len(cfg.GitHubPATs) == 0 {
		return fmt.Errorf("no GitHub PAT configured: pass --github-pats or set GITHUB_PATS/GITHUB_PAT")
	}
	if cfg.LLMAPIKey == "" {
		return fmt.Errorf("no LLM API key configured: pass --llm-api-key or set LLM_API_KEY")
	}

	repos, err := input.Load(cfg.InputFile)
	if err != nil {
		return fmt.Errorf("loading input: %w", err)
	}
	if len(repos) == 0 {
		return fmt.Errorf("input file %s contains no repositories", cfg.InputFile)
	}
	fmt.Fprintln(os.Stderr, console.FormatInfoMessage(fmt.Sprintf("loaded %d repositories from %s", len(repos), cfg.InputFile)))

	pats, err := tokenpool.New(cfg.GitHubPATs)
	if err != nil {
		return fmt.Errorf("building token pool: %w", err)
	}

	llm := llmclient.New(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel)

	reporter := report.New(cfg.OutputFile, includeYAML)
	if err := reporter.Initialize(); err != nil {
		return fmt.Errorf("initializing report: %w", err)
	}

	resume := report.ResumeState{}
	if cfg.Resume {
		resume, err = reporter.LoadForResume()
		if err != nil {
			return fmt.Errorf("loading resume state: %w", err)
		}
		fmt.Fprintln(os.Stderr, console.FormatInfoMessage(fmt.Sprintf("resuming: %d repositories already terminal", len(resume.TerminalRepoURLs))))
	}

	orch := orchestrator.New(cfg, pats, llm, reporter)
	if err := orch.Run(ctx, repos, resume); err != nil {
		log.Printf("run ended: %v", err)
	}

	summary, err := reporter.GetSummary()
	if err != nil {
		return fmt.Errorf("reading summary: %w", err)
	}
	fmt.Fprintln(os.Stderr, console.FormatSuccessMessage(fmt.Sprintf(
		"done: %d total, %d success, %d partial, %d failed, %d PRs opened",
		summary.Total, summary.Success, summary.Partial, summary.Failed, summary.PRsCreated,
	)))

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}
