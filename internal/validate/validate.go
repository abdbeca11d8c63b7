// Package validate parses a translated workflow's YAML and runs actionlint
// against it, classifying the combined output as blocking or non-blocking.
package validate

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/ci-migrate/cipilot/pkg/logger"
)

var log = logger.New("validate:validate")

var errActionlintNotInstalled = errors.New("actionlint is not installed")

// actionlintTimeout bounds a single actionlint subprocess invocation.
const actionlintTimeout = 30 * time.Second

// Result is the outcome of validating one workflow.
type Result struct {
	YAMLValid  bool
	LintValid  bool
	LintErrors []string // non-empty only when LintValid is false
	LintNote   string   // set when LintValid is true despite non-empty lint output
}

// Validate parses workflowYAML and, if it parses, runs actionlint against
// it. A YAML parse failure short-circuits with LintValid left false.
func Validate(ctx context.Context, workflowYAML string) (Result, error) {
	if err := parseYAML(workflowYAML); err != nil {
		log.Printf("yaml parse failed: %v", err)
		return Result{YAMLValid: false, LintValid: false, LintErrors: []string{err.Error()}}, nil
	}

	output, err := runActionlint(ctx, workflowYAML)
	if err != nil {
		return Result{YAMLValid: true, LintValid: false, LintErrors: []string{err.Error()}}, nil
	}

	return Result{YAMLValid: true}.classify(output), nil
}

func parseYAML(content string) error {
	var out any
	return yaml.Unmarshal([]byte(content), &out)
}

func runActionlint(ctx context.Context, workflowYAML string) (string, error) {
	f, err := os.CreateTemp("", "validate-*.yml")
	if err != nil {
		return "", err
	}
	defer os.Remove(f.Name())

	if _, err := f.WriteString(workflowYAML); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, actionlintTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "actionlint", f.Name())
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err = cmd.Run()
	if err != nil {
		if _, ok := err.(*exec.Error); ok {
			return "", errActionlintNotInstalled
		}
		// A non-zero exit with no *exec.Error is actionlint reporting
		// findings; its exit code is non-zero whenever it reports anything,
		// so the output (not the exit code) is what gets classified.
	}

	return stdout.String() + stderr.String(), nil
}

// classify applies the blocking/non-blocking taxonomy: syntax, expression,
// type-check and runner-label errors always block, as does any [action]
// error that isn't solely an "is too old" warning. Output consisting only of
// "action is too old" warnings and/or shellcheck :info: lines, with no
// blocking errors present, passes with a note instead of failing.
func (r Result) classify(output string) Result {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		r.LintValid = true
		return r
	}

	lower := strings.ToLower(output)

	hasSyntaxError := strings.Contains(output, "[syntax-check]")
	hasExpressionError := strings.Contains(output, "[expression]")
	hasTypeError := strings.Contains(output, "[type-check]")
	hasRunnerLabelError := strings.Contains(output, "[runner-label]")
	hasActionError := strings.Contains(output, "[action]")

	isActionTooOld := strings.Contains(lower, "action is too old") || strings.Contains(lower, "is too old to run")
	isOnlyShellcheckInfo := strings.Contains(lower, ":info:") && strings.Contains(output, "[shellcheck]")

	hasBlockingErrors := hasSyntaxError || hasExpressionError || hasTypeError || hasRunnerLabelError ||
		(hasActionError && !isActionTooOld)

	isNonBlocking := (isOnlyShellcheckInfo || isActionTooOld) && !hasBlockingErrors

	if isNonBlocking {
		r.LintValid = true
		r.LintNote = trimmed + "\n\n[Note: Non-blocking warnings. Consider updating action versions to @v4.]"
		return r
	}

	if hasBlockingErrors {
		r.LintValid = false
		r.LintErrors = splitLines(trimmed)
		return r
	}

	r.LintValid = true
	r.LintNote = trimmed
	return r
}

func splitLines(s string) []string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
