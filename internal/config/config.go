// Package config holds the pipeline's run-time configuration: strictness
// policy, concurrency limits, and the credentials needed to talk to the
// host API and the LLM provider.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// StrictnessLevel governs whether a PR is opened given the lint and
// semantic-verification outcomes. Grounded exactly on the four levels of
// the original pipeline's PipelineConfig.
type StrictnessLevel string

const (
	// StrictnessStrict requires lint and semantic verification to both
	// pass before a PR is opened.
	StrictnessStrict StrictnessLevel = "strict"
	// StrictnessLintOnly only requires lint to pass; semantic
	// verification still runs (unless lint failed) but does not gate PR
	// creation.
	StrictnessLintOnly StrictnessLevel = "lint_only"
	// StrictnessPermissive always opens a PR, used to collect feedback on
	// every translation attempt regardless of validation outcome.
	StrictnessPermissive StrictnessLevel = "permissive"
	// StrictnessDryRun never opens a PR; every stage still runs so the
	// report reflects what would have happened.
	StrictnessDryRun StrictnessLevel = "dry_run"
)

// ParseStrictness validates a strictness flag value.
func ParseStrictness(s string) (StrictnessLevel, error) {
	switch StrictnessLevel(s) {
	case StrictnessStrict, StrictnessLintOnly, StrictnessPermissive, StrictnessDryRun:
		return StrictnessLevel(s), nil
	default:
		return "", fmt.Errorf("invalid strictness %q: must be one of strict, lint_only, permissive, dry_run", s)
	}
}

// Config is the fully resolved pipeline configuration, assembled from CLI
// flags with environment-variable fallbacks the way the original
// PipelineConfig.from_env did.
type Config struct {
	InputFile  string
	OutputFile string

	Strictness               StrictnessLevel
	PROnLintFail              bool
	PROnDoubleCheckFail       bool
	SkipDoubleCheckOnLintFail bool

	MaxConcurrent int
	MaxRetries    int
	RetryDelay    time.Duration

	DryRun bool
	Resume bool

	CloudGHAVerify   bool
	CloudGHATimeout  time.Duration
	CloudGHARetries  int

	LLMProvider string
	LLMModel    string
	LLMAPIKey   string
	LLMBaseURL  string

	GitHubPATs []string

	BranchPrefix string
}

// Default returns a Config with the same defaults as the original pipeline:
// strict strictness, two concurrent workers, three retries, a five second
// retry delay, and the "cipilot/migrated" branch prefix.
func Default() *Config {
	return &Config{
		OutputFile:                "results.csv",
		Strictness:                StrictnessStrict,
		SkipDoubleCheckOnLintFail: true,
		MaxConcurrent:             2,
		MaxRetries:                3,
		RetryDelay:                5 * time.Second,
		CloudGHATimeout:           10 * time.Minute,
		CloudGHARetries:           3,
		LLMProvider:               "anthropic",
		BranchPrefix:              "cipilot/migrated",
	}
}

// ApplyEnv fills in LLM and GitHub credentials from the environment when
// the corresponding CLI flag was left unset, mirroring
// PipelineConfig.from_env's precedence (explicit GITHUB_PATS wins, a single
// GITHUB_PAT is appended if not already present).
func (c *Config) ApplyEnv() {
	if c.LLMAPIKey == "" {
		c.LLMAPIKey = os.Getenv("LLM_API_KEY")
	}
	if c.LLMBaseURL == "" {
		c.LLMBaseURL = os.Getenv("LLM_BASE_URL")
	}

	if len(c.GitHubPATs) == 0 {
		if pats := os.Getenv("GITHUB_PATS"); pats != "" {
			for _, p := range strings.Split(pats, ",") {
				p = strings.TrimSpace(p)
				if p != "" {
					c.GitHubPATs = append(c.GitHubPATs, p)
				}
			}
		}
	}
	if single := strings.TrimSpace(os.Getenv("GITHUB_PAT")); single != "" {
		found := false
		for _, p := range c.GitHubPATs {
			if p == single {
				found = true
				break
			}
		}
		if !found {
			c.GitHubPATs = append(c.GitHubPATs, single)
		}
	}
}

// ShouldCreatePR determines whether a PR should be opened given the lint
// and semantic-verification outcomes, per strictness level. Grounded
// exactly on PipelineConfig.should_create_pr.
func (c *Config) ShouldCreatePR(lintPassed, doubleCheckPassed bool) bool {
	switch c.Strictness {
	case StrictnessDryRun:
		return false
	case StrictnessPermissive:
		return true
	case StrictnessLintOnly:
		return lintPassed || c.PROnLintFail
	default: // strict
		if !lintPassed {
			return c.PROnLintFail
		}
		if !doubleCheckPassed {
			return c.PROnDoubleCheckFail
		}
		return true
	}
}

// ShouldRunDoubleCheck determines whether the Semantic Verifier should run
// at all, given the lint outcome. Grounded exactly on
// PipelineConfig.should_run_double_check.
func (c *Config) ShouldRunDoubleCheck(lintPassed bool) bool {
	if c.Strictness == StrictnessDryRun {
		return true
	}
	if !lintPassed && c.SkipDoubleCheckOnLintFail {
		return false
	}
	return true
}
