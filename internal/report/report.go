// Package report is the pipeline's persistence layer: an append-mostly CSV
// file that the Orchestrator writes one row to per migration result, reads
// back to resume an interrupted batch, and rewrites in place for the one
// runtime-verification follow-up update a row can receive.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ci-migrate/cipilot/internal/model"
	"github.com/ci-migrate/cipilot/pkg/logger"
)

var log = logger.New("report:report")

// coreColumns are always present, in the order written to the header.
var coreColumns = []string{
	"repo_url", "repo_full_name", "target_branch",
	"detected_ci", "all_detected_ci", "detection_status", "source_path",
	"migration_status", "migration_attempts",
	"yaml_valid", "lint_valid", "lint_errors", "validation_status",
	"double_check_status", "double_check_passed", "double_check_confidence",
	"double_check_reasons", "missing_features", "hallucinated_steps",
	"runtime_status", "runtime_run_url", "runtime_conclusion", "runtime_error_kind",
	"pr_status", "pr_url", "pr_number", "pr_skipped_reason", "pr_error", "pr_verification_tag",
	"fork_url", "branch_name",
	"overall_status", "error_message",
	"duration_seconds", "started_at", "completed_at",
}

// extendedColumns carry the full YAML content; they are present when the
// Reporter is built with includeYAML (the CLI's --include-yaml, on by
// default).
var extendedColumns = []string{"source_yaml", "migrated_yaml"}

// Reporter streams RepoResult rows to a CSV file.
type Reporter struct {
	mu                sync.Mutex
	path              string
	columns           []string
	includeYAML       bool
	initialized       bool
	nextRowIndex      int
}

// New builds a Reporter writing to path. includeYAML adds the
// source/migrated YAML columns.
func New(path string, includeYAML bool) *Reporter {
	columns := append([]string{}, coreColumns...)
	if includeYAML {
		columns = append(columns, extendedColumns...)
	}
	return &Reporter{path: path, columns: columns, includeYAML: includeYAML}
}

// Initialize creates the output file and writes its header if it doesn't
// already exist. Safe to call more than once.
func (r *Reporter) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initializeLocked()
}

func (r *Reporter) initializeLocked() error {
	if r.initialized {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("report: creating output directory: %w", err)
	}
	if _, err := os.Stat(r.path); err == nil {
		r.initialized = true
		return nil
	}

	f, err := os.Create(r.path)
	if err != nil {
		return fmt.Errorf("report: creating %s: %w", r.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(r.columns); err != nil {
		return fmt.Errorf("report: writing header: %w", err)
	}
	w.Flush()
	r.initialized = true
	return nil
}

// WriteResult appends result as a new row and returns the row index
// assigned to it, which the caller stores on the result for a later
// UpdateResult call.
func (r *Reporter) WriteResult(result *model.RepoResult) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.initializeLocked(); err != nil {
		return 0, err
	}

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("report: opening %s for append: %w", r.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(r.rowFor(result)); err != nil {
		return 0, fmt.Errorf("report: writing row: %w", err)
	}
	w.Flush()

	rowIndex := r.nextRowIndex
	r.nextRowIndex++
	return rowIndex, nil
}

// UpdateResult rewrites rowIndex's row in place (the header occupies row 0).
// This is a whole-file rewrite, acceptable given the expected batch sizes
// this pipeline processes.
func (r *Reporter) UpdateResult(rowIndex int, result *model.RepoResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.readAllRowsLocked()
	if err != nil {
		return err
	}

	target := rowIndex + 1 // offset past the header
	if target < 1 || target >= len(rows) {
		return fmt.Errorf("report: row index %d out of range (file has %d data rows)", rowIndex, len(rows)-1)
	}
	rows[target] = r.rowFor(result)

	f, err := os.Create(r.path)
	if err != nil {
		return fmt.Errorf("report: rewriting %s: %w", r.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("report: writing rewritten rows: %w", err)
	}
	w.Flush()
	return nil
}

func (r *Reporter) readAllRowsLocked() ([][]string, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("report: opening %s: %w", r.path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	return reader.ReadAll()
}

// ResumeState is what LoadForResume returns: the repos that reached a
// terminal state in a prior run, and the row indices still awaiting a
// runtime-verification follow-up.
type ResumeState struct {
	TerminalRepoURLs map[string]bool
	RuntimePending   []int
}

// LoadForResume reads the existing report, if any, and classifies each row:
// the URLs of already-terminal repos, and the indices of runtime_pending
// rows. The orchestrator uses only TerminalRepoURLs, to skip those repos;
// runtime_pending rows are not re-queued, and their repos are processed
// again from detection.
func (r *Reporter) LoadForResume() (ResumeState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state := ResumeState{TerminalRepoURLs: map[string]bool{}}
	if _, err := os.Stat(r.path); os.IsNotExist(err) {
		return state, nil
	}

	f, err := os.Open(r.path)
	if err != nil {
		return state, fmt.Errorf("report: opening %s: %w", r.path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return state, nil // empty file, nothing to resume
	}
	colIndex := indexOf(header)

	rowNum := -1
	for {
		record, err := reader.Read()
		if err != nil {
			break
		}
		rowNum++

		status := get(record, colIndex, "overall_status")
		url := get(record, colIndex, "repo_url")
		switch model.OverallStatus(status) {
		case model.OverallRuntimePending:
			state.RuntimePending = append(state.RuntimePending, rowNum)
		case model.OverallSuccess, model.OverallPartial, model.OverallFailed:
			if url != "" {
				state.TerminalRepoURLs[url] = true
			}
		}
	}

	r.nextRowIndex = rowNum + 1
	log.Printf("resume: %d terminal repos, %d runtime_pending rows", len(state.TerminalRepoURLs), len(state.RuntimePending))
	return state, nil
}

// Summary is the aggregate GetSummary reports.
type Summary struct {
	Total      int
	Success    int
	Partial    int
	Failed     int
	PRsCreated int
}

// GetSummary re-reads the report and tallies outcome counts.
func (r *Reporter) GetSummary() (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var summary Summary
	if _, err := os.Stat(r.path); os.IsNotExist(err) {
		return summary, nil
	}

	f, err := os.Open(r.path)
	if err != nil {
		return summary, fmt.Errorf("report: opening %s: %w", r.path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return summary, nil
	}
	colIndex := indexOf(header)

	for {
		record, err := reader.Read()
		if err != nil {
			break
		}
		summary.Total++
		switch model.OverallStatus(get(record, colIndex, "overall_status")) {
		case model.OverallSuccess:
			summary.Success++
		case model.OverallPartial:
			summary.Partial++
		default:
			summary.Failed++
		}
		if get(record, colIndex, "pr_url") != "" {
			summary.PRsCreated++
		}
	}
	return summary, nil
}

func indexOf(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	return idx
}

func get(record []string, colIndex map[string]int, col string) string {
	i, ok := colIndex[col]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}

// rowFor renders result into a record matching r.columns, in order.
func (r *Reporter) rowFor(result *model.RepoResult) []string {
	values := map[string]string{
		"repo_url":       result.Repo.URL,
		"target_branch":  result.Repo.DesiredDefaultBranch,
		"detected_ci":    string(result.CIKind),
		"source_path":    result.SourcePath,
		"overall_status": string(result.OverallStatus),
		"error_message":  result.ErrorMessage,
	}

	if full, err := result.Repo.FullName(); err == nil {
		values["repo_full_name"] = full
	}
	if len(result.AllDetectedKinds) > 0 {
		kinds := make([]string, len(result.AllDetectedKinds))
		for i, k := range result.AllDetectedKinds {
			kinds[i] = string(k)
		}
		values["all_detected_ci"] = strings.Join(kinds, ";")
	}

	if d := result.Detection; d != nil {
		values["detection_status"] = string(d.Status)
		if r.includeYAML {
			for _, dc := range d.Detected {
				if dc.CIKind == result.CIKind {
					values["source_yaml"] = dc.SourceYAML
					break
				}
			}
		}
	}
	if m := result.Migration; m != nil {
		values["migration_status"] = string(m.Status)
		values["migration_attempts"] = strconv.Itoa(m.Attempts)
		if r.includeYAML {
			values["migrated_yaml"] = m.MigratedYAML
		}
	}
	if s := result.Syntactic; s != nil {
		values["yaml_valid"] = strconv.FormatBool(s.YAMLValid)
		values["lint_valid"] = strconv.FormatBool(s.LintValid)
		values["lint_errors"] = strings.Join(s.LintErrors, ";")
		values["validation_status"] = string(s.Status)
	}
	if sem := result.Semantic; sem != nil {
		values["double_check_status"] = string(sem.Status)
		values["double_check_passed"] = strconv.FormatBool(sem.Passed)
		values["double_check_confidence"] = strconv.FormatFloat(sem.Confidence, 'f', 2, 64)
		values["double_check_reasons"] = strings.Join(sem.Reasons, ";")
		values["missing_features"] = strings.Join(sem.MissingFeatures, ";")
		values["hallucinated_steps"] = strings.Join(sem.HallucinatedSteps, ";")
	}
	if w := result.Writer; w != nil {
		values["fork_url"] = w.ForkURL
		values["branch_name"] = w.BranchName
	}
	if rt := result.Runtime; rt != nil {
		values["runtime_status"] = string(rt.Status)
		values["runtime_run_url"] = rt.RunURL
		values["runtime_conclusion"] = rt.RunConclusion
		values["runtime_error_kind"] = string(rt.ErrorKind)
	}
	if pr := result.PR; pr != nil {
		values["pr_status"] = string(pr.Status)
		values["pr_url"] = pr.PRURL
		if pr.PRNumber != 0 {
			values["pr_number"] = strconv.Itoa(pr.PRNumber)
		}
		values["pr_skipped_reason"] = pr.SkippedReason
		if pr.Err != nil {
			values["pr_error"] = pr.Err.Error()
		}
		values["pr_verification_tag"] = pr.VerificationTag
	}
	if !result.StartedAt.IsZero() {
		values["started_at"] = result.StartedAt.Format(time.RFC3339)
	}
	if !result.CompletedAt.IsZero() {
		values["completed_at"] = result.CompletedAt.Format(time.RFC3339)
		values["duration_seconds"] = strconv.FormatFloat(result.Duration().Seconds(), 'f', 2, 64)
	}

	row := make([]string, len(r.columns))
	for i, col := range r.columns {
		row[i] = values[col]
	}
	return row
}
