// Package input parses the pipeline's repository list from either a CSV or
// a JSON file into model.RepoRef values.
package input

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ci-migrate/cipilot/internal/model"
	"github.com/ci-migrate/cipilot/pkg/logger"
)

var log = logger.New("input:input")

// csvURLHeaders lists the header names accepted for the repository URL
// column; the input may use any one of them.
var csvURLHeaders = []string{"repo_url", "url", "repo"}

// Load reads path and returns the repository references it contains. The
// format is inferred from the extension: ".json" is parsed as JSON, anything
// else is parsed as CSV.
func Load(path string) ([]model.RepoRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("input: opening %s: %w", path, err)
	}
	defer f.Close()

	if strings.EqualFold(strings.TrimPrefix(fileExt(path), "."), "json") {
		refs, err := loadJSON(f)
		if err != nil {
			return nil, fmt.Errorf("input: parsing %s as JSON: %w", path, err)
		}
		log.Printf("loaded %d repo refs from %s (json)", len(refs), path)
		return refs, nil
	}

	refs, err := loadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("input: parsing %s as CSV: %w", path, err)
	}
	log.Printf("loaded %d repo refs from %s (csv)", len(refs), path)
	return refs, nil
}

func fileExt(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return ""
	}
	return path[idx:]
}

// jsonRepoRef mirrors the `{repo_url, target_branch}` object form; a bare
// JSON string list is also accepted (see loadJSON).
type jsonRepoRef struct {
	RepoURL      string `json:"repo_url"`
	TargetBranch string `json:"target_branch"`
}

func loadJSON(r io.Reader) ([]model.RepoRef, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var asStrings []string
	if err := json.Unmarshal(data, &asStrings); err == nil {
		refs := make([]model.RepoRef, 0, len(asStrings))
		for _, u := range asStrings {
			refs = append(refs, model.RepoRef{URL: u})
		}
		return refs, nil
	}

	var asObjects []jsonRepoRef
	if err := json.Unmarshal(data, &asObjects); err != nil {
		return nil, fmt.Errorf("expected a JSON list of strings or {repo_url, target_branch} objects: %w", err)
	}
	refs := make([]model.RepoRef, 0, len(asObjects))
	for _, o := range asObjects {
		if o.RepoURL == "" {
			return nil, fmt.Errorf("JSON object missing repo_url")
		}
		refs = append(refs, model.RepoRef{URL: o.RepoURL, DesiredDefaultBranch: o.TargetBranch})
	}
	return refs, nil
}

func loadCSV(r io.Reader) ([]model.RepoRef, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty CSV input")
		}
		return nil, err
	}

	urlCol := -1
	branchCol := -1
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(col))
		if urlCol == -1 && containsString(csvURLHeaders, name) {
			urlCol = i
		}
		if name == "target_branch" {
			branchCol = i
		}
	}
	if urlCol == -1 {
		return nil, fmt.Errorf("CSV header must contain one of %v", csvURLHeaders)
	}

	var refs []model.RepoRef
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if urlCol >= len(record) {
			continue
		}
		url := strings.TrimSpace(record[urlCol])
		if url == "" {
			continue
		}
		ref := model.RepoRef{URL: url}
		if branchCol != -1 && branchCol < len(record) {
			ref.DesiredDefaultBranch = strings.TrimSpace(record[branchCol])
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
