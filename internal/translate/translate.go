// Package translate invokes the LLM to convert a source CI configuration
// into a GitHub Actions workflow, retrying transient failures with an
// exponential delay and rejecting responses that echo the source format
// back instead of producing the target one.
package translate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ci-migrate/cipilot/internal/model"
	"github.com/ci-migrate/cipilot/pkg/logger"
	"github.com/ci-migrate/cipilot/pkg/ratelimit"
)

var log = logger.New("translate:translate")

// sourceKeywords lists the format-specific keywords that indicate the model
// echoed the source configuration back instead of translating it.
var sourceKeywords = map[model.CIKind][]string{
	model.CITravis: {"language:", "dist:", "before_script:", "after_failure:", "skip_cleanup:"},
}

// requiredTargetKeywords must all appear in a valid GitHub Actions workflow.
var requiredTargetKeywords = []string{"name:", "on:", "jobs:"}

// Completer is the LLM call this package drives; internal/llmclient.Client
// satisfies it.
type Completer interface {
	Translate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const systemPrompt = "You are a CI/CD migration expert. You MUST output only the target CI/CD format requested."

// Translate converts sourceYAML from sourceKind to a GitHub Actions
// workflow, retrying up to maxRetries times with delays drawn from bucket's
// backoff schedule. feedback, when non-empty, is appended to the prompt as
// validation feedback from a previous failed attempt.
func Translate(ctx context.Context, completer Completer, bucket *ratelimit.TokenBucket, sourceYAML string, sourceKind model.CIKind, feedback string, maxRetries int) (string, int, error) {
	prompt := buildPrompt(sourceYAML, sourceKind, feedback)

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		out, err := completer.Translate(ctx, systemPrompt, prompt)
		if err == nil {
			if strings.TrimSpace(out) == "" {
				lastErr = fmt.Errorf("translate: LLM returned empty response")
			} else if echoedSource(out, sourceKind) {
				lastErr = fmt.Errorf("translate: LLM echoed %s format back instead of producing GitHub Actions YAML", sourceKind)
			} else {
				return stripCodeFence(out), attempt + 1, nil
			}
		} else {
			lastErr = err
		}

		if attempt < maxRetries-1 {
			delay := bucket.Backoff(attempt)
			log.Printf("translate attempt %d failed (%v), retrying in %v", attempt+1, lastErr, delay)
			select {
			case <-ctx.Done():
				return "", attempt + 1, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return "", maxRetries, fmt.Errorf("translate: exhausted %d attempts: %w", maxRetries, lastErr)
}

func buildPrompt(content string, sourceKind model.CIKind, feedback string) string {
	var b strings.Builder
	b.WriteString("You are a CI/CD migration expert.\n\n")
	b.WriteString("TASK: Convert the configuration below into a GitHub Actions workflow.\n\n")
	b.WriteString("CRITICAL REQUIREMENTS:\n")
	b.WriteString("1. You MUST output ONLY valid GitHub Actions workflow YAML syntax\n")
	b.WriteString("2. DO NOT include any explanations, comments, or markdown\n")
	b.WriteString("3. DO NOT wrap output in code blocks\n")
	b.WriteString("4. Preserve all build, test, and deploy logic from the source config\n")
	b.WriteString("5. Use proper GitHub Actions syntax with name, on, and jobs\n\n")

	if strings.TrimSpace(feedback) != "" {
		b.WriteString("=== VALIDATION FEEDBACK ===\n")
		b.WriteString("The previous GitHub Actions YAML you generated had the following issues:\n\n")
		b.WriteString(strings.TrimSpace(feedback))
		b.WriteString("\n\nPlease generate a NEW GitHub Actions YAML that fixes these issues. ")
		b.WriteString(fmt.Sprintf("DO NOT return the %s source - you must return VALID GitHub Actions YAML.\n", sourceKind))
		b.WriteString("=== END FEEDBACK ===\n\n")
	}

	b.WriteString(fmt.Sprintf("SOURCE %s CONFIGURATION TO CONVERT:\n---\n%s\n---\n\n", strings.ToUpper(string(sourceKind)), content))
	b.WriteString("Now generate the GitHub Actions workflow YAML (and NOTHING else):")
	return b.String()
}

// echoedSource detects the model returning the source format instead of a
// GitHub Actions workflow.
func echoedSource(output string, sourceKind model.CIKind) bool {
	lower := strings.ToLower(output)

	for _, kw := range sourceKeywords[sourceKind] {
		if strings.Contains(lower, kw) {
			return true
		}
	}

	for _, kw := range requiredTargetKeywords {
		if !strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// stripCodeFence removes a leading/trailing markdown YAML code fence, which
// some models wrap their output in despite being told not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "```yaml"):
		s = s[len("```yaml"):]
	case strings.HasPrefix(s, "```"):
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
