// Package repair asks the LLM to fix a migrated workflow given the logs
// from the failed GitHub Actions run it produced, then pushes the fix back
// to the same branch.
package repair

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ci-migrate/cipilot/internal/ghclient"
	"github.com/ci-migrate/cipilot/pkg/logger"
)

var log = logger.New("repair:repair")

// maxErrorLogChars bounds how much of the failure log is sent to the model,
// matching the token-budget truncation the fix agent has always applied.
const maxErrorLogChars = 3000

const systemPrompt = `You are an expert at fixing GitHub Actions workflow files.

Given a YAML workflow file and error logs from a failed GitHub Actions run, analyze the error and provide a fixed version of the workflow.

Rules:
1. Only fix the specific error indicated in the logs
2. Preserve all other functionality
3. Do not add unnecessary changes
4. Ensure the output is valid YAML
5. Keep the same overall structure and intent

Output ONLY the corrected YAML content, nothing else. No explanations, no markdown code blocks, just the raw YAML.`

const userPromptTemplate = "The following GitHub Actions workflow failed with this error:\n\n" +
	"### Error Logs:\n```\n%s\n```\n\n" +
	"### Original Workflow YAML:\n```yaml\n%s\n```\n\n" +
	"Please provide the corrected workflow YAML that fixes this error."

// Completer is the LLM call this package drives; internal/llmclient.Client
// satisfies it.
type Completer interface {
	Fix(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

var keyValueLine = regexp.MustCompile(`(?m)^\s*[\w-]+:`)
var workflowTopLevelKey = regexp.MustCompile(`(?m)^\s*(on|name|jobs):`)

// looksLikeWorkflowYAML is a cheap sanity check, not a parse: it rejects
// prose responses before they ever reach the syntactic validator.
func looksLikeWorkflowYAML(content string) bool {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < 10 {
		return false
	}
	return keyValueLine.MatchString(content) && workflowTopLevelKey.MatchString(content)
}

func cleanYAMLResponse(response string) string {
	response = strings.TrimSpace(response)
	if !strings.HasPrefix(response, "```") {
		return response
	}
	lines := strings.Split(response, "\n")
	start, end := 0, len(lines)
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "```") && i == 0:
			start = 1
		case strings.HasPrefix(line, "```") && i > 0:
			end = i
		}
		if end != len(lines) {
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines[start:end], "\n"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Fix asks the LLM to repair workflowYAML given errorLogs and returns the
// cleaned, sanity-checked result. It never pushes anywhere; call Write
// afterwards to commit the result.
func Fix(ctx context.Context, completer Completer, workflowYAML, errorLogs string) (string, error) {
	prompt := fmt.Sprintf(userPromptTemplate, truncate(errorLogs, maxErrorLogChars), workflowYAML)

	raw, err := completer.Fix(ctx, systemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("repair: %w", err)
	}
	if raw == "" {
		return "", fmt.Errorf("repair: LLM returned empty response")
	}

	fixed := cleanYAMLResponse(raw)
	if !looksLikeWorkflowYAML(fixed) {
		return "", fmt.Errorf("repair: LLM response is not valid YAML")
	}
	if strings.TrimSpace(fixed) == strings.TrimSpace(workflowYAML) {
		return "", fmt.Errorf("repair: LLM fix resulted in no changes")
	}

	log.Printf("produced a %d-byte fix", len(fixed))
	return fixed, nil
}

// Write pushes the fixed workflow to the existing branch on the fork, using
// the standard auto-fix commit message.
func Write(ctx context.Context, client *ghclient.Client, forkOwner, repoName, branchName, workflowPath, fixedYAML string) error {
	const commitMessage = "fix: Auto-fix workflow based on GHA error"
	if err := client.CreateOrUpdateFile(ctx, forkOwner, repoName, workflowPath, branchName, []byte(fixedYAML), commitMessage); err != nil {
		return fmt.Errorf("repair: pushing fix: %w", err)
	}
	return nil
}
