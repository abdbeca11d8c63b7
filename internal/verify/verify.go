// Package verify asks the LLM to judge whether a translated workflow
// preserves the source configuration's behavior, validates the verdict
// against a compiled JSON Schema, and applies the same allowed-addition and
// significant-missing-feature filtering rules the pipeline has always used.
package verify

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ci-migrate/cipilot/internal/model"
	"github.com/ci-migrate/cipilot/pkg/logger"
)

var log = logger.New("verify:verify")

//go:embed schemas/verdict_schema.json
var verdictSchemaFS embed.FS

var (
	compiledSchemaOnce sync.Once
	compiledSchema     *jsonschema.Schema
	schemaCompileError error
)

func getCompiledVerdictSchema() (*jsonschema.Schema, error) {
	compiledSchemaOnce.Do(func() {
		data, err := verdictSchemaFS.ReadFile("schemas/verdict_schema.json")
		if err != nil {
			schemaCompileError = fmt.Errorf("verify: loading verdict schema: %w", err)
			return
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			schemaCompileError = fmt.Errorf("verify: parsing verdict schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		const schemaURL = "verdict_schema.json"
		if err := compiler.AddResource(schemaURL, doc); err != nil {
			schemaCompileError = fmt.Errorf("verify: adding verdict schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile(schemaURL)
		if err != nil {
			schemaCompileError = fmt.Errorf("verify: compiling verdict schema: %w", err)
			return
		}
		compiledSchema = schema
	})
	return compiledSchema, schemaCompileError
}

// allowedAdditions lists hallucinated-step substrings that are in fact
// benign, commonly-inserted setup steps rather than fabricated behavior.
var allowedAdditions = []string{
	"actions/checkout", "checkout", "actions/checkout@v4", "actions/checkout@v3",
	"actions/setup-", "setup-node", "setup-python", "setup-java", "setup-go",
}

// significantMissingKeywords flags a reported missing feature as critical
// enough to force failure regardless of the model's own verdict.
var significantMissingKeywords = []string{
	"docker", "container", "image", "service",
	"environment", "env",
	"command", "script", "step",
}

// rawVerdict is the JSON shape the LLM is asked to produce.
type rawVerdict struct {
	Passed            bool     `json:"passed"`
	Reasons           []string `json:"reasons"`
	MissingFeatures   []string `json:"missing_features"`
	HallucinatedSteps []string `json:"hallucinated_steps"`
	Confidence        float64  `json:"confidence"`
}

// Verdict is the post-processed result handed to the pipeline.
type Verdict struct {
	Passed            bool
	Reasons           []string
	MissingFeatures   []string
	HallucinatedSteps []string
	Confidence        float64
}

// Completer is the LLM call this package drives; internal/llmclient.Client
// satisfies it.
type Completer interface {
	SemanticVerify(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const systemPrompt = `You are a CI/CD migration auditor. Compare the source configuration to the translated GitHub Actions workflow and judge whether the translation preserves its behavior.
Respond with ONLY a JSON object of the form:
{"passed": bool, "reasons": [string], "missing_features": [string], "hallucinated_steps": [string], "confidence": number between 0 and 1}`

// Verify asks the LLM to compare sourceYAML against migratedYAML and
// post-processes the verdict.
func Verify(ctx context.Context, completer Completer, sourceYAML, migratedYAML string, sourceKind model.CIKind) (Verdict, error) {
	prompt := fmt.Sprintf(
		"SOURCE %s CONFIGURATION:\n---\n%s\n---\n\nTRANSLATED GITHUB ACTIONS WORKFLOW:\n---\n%s\n---\n",
		strings.ToUpper(string(sourceKind)), sourceYAML, migratedYAML,
	)

	raw, err := completer.SemanticVerify(ctx, systemPrompt, prompt)
	if err != nil {
		return Verdict{}, fmt.Errorf("verify: %w", err)
	}

	parsed, err := parseVerdict(raw)
	if err != nil {
		// A malformed verdict is treated as low-confidence pass rather than
		// a hard failure, matching the defensive default the checker has
		// always used for missing/unexpected keys.
		log.Printf("malformed verdict, defaulting to passed=true confidence=0: %v", err)
		return Verdict{Passed: true, Confidence: 0}, nil
	}

	return postProcess(parsed), nil
}

func parseVerdict(raw string) (rawVerdict, error) {
	schema, err := getCompiledVerdictSchema()
	if err != nil {
		return rawVerdict{}, err
	}

	var doc any
	if err := json.Unmarshal([]byte(strings.TrimSpace(stripCodeFence(raw))), &doc); err != nil {
		return rawVerdict{}, fmt.Errorf("parsing verdict JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return rawVerdict{}, fmt.Errorf("validating verdict against schema: %w", err)
	}

	var v rawVerdict
	data, _ := json.Marshal(doc)
	if err := json.Unmarshal(data, &v); err != nil {
		return rawVerdict{}, fmt.Errorf("decoding verdict: %w", err)
	}
	return v, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = s[len("```json"):]
	case strings.HasPrefix(s, "```"):
		s = s[len("```"):]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}

// postProcess applies the allowed-addition filter and significant-missing
// override, then builds the human-readable reasons list.
func postProcess(raw rawVerdict) Verdict {
	passed := raw.Passed

	filteredHallucinated := filterAllowedAdditions(raw.HallucinatedSteps)
	if len(raw.HallucinatedSteps) > 0 && len(filteredHallucinated) == 0 {
		log.Printf("filtered out allowed additions: %v", raw.HallucinatedSteps)
		passed = true
	}

	significantMissing := filterSignificant(raw.MissingFeatures)
	if len(significantMissing) > 0 {
		log.Printf("significant features missing: %v", significantMissing)
		passed = false
	}

	reasons := append([]string{}, raw.Reasons...)
	if len(filteredHallucinated) > 0 {
		reasons = append(reasons, fmt.Sprintf("Additional steps not in source: %s", strings.Join(filteredHallucinated, ", ")))
	}
	switch {
	case len(significantMissing) > 0:
		reasons = append(reasons, fmt.Sprintf("CRITICAL: Missing significant features: %s", strings.Join(significantMissing, ", ")))
	case len(raw.MissingFeatures) > 0:
		reasons = append(reasons, fmt.Sprintf("Missing features: %s", strings.Join(raw.MissingFeatures, ", ")))
	}
	if raw.Confidence > 0 {
		reasons = append(reasons, fmt.Sprintf("Confidence: %.0f%%", raw.Confidence*100))
	}

	return Verdict{
		Passed:            passed,
		Reasons:           reasons,
		MissingFeatures:   raw.MissingFeatures,
		HallucinatedSteps: filteredHallucinated,
		Confidence:        raw.Confidence,
	}
}

func filterAllowedAdditions(hallucinated []string) []string {
	var out []string
	for _, h := range hallucinated {
		allowed := false
		for _, a := range allowedAdditions {
			if strings.Contains(strings.ToLower(h), strings.ToLower(a)) {
				allowed = true
				break
			}
		}
		if !allowed {
			out = append(out, h)
		}
	}
	return out
}

func filterSignificant(missing []string) []string {
	var out []string
	for _, m := range missing {
		for _, kw := range significantMissingKeywords {
			if strings.Contains(strings.ToLower(m), kw) {
				out = append(out, m)
				break
			}
		}
	}
	return out
}
