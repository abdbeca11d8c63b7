// Package orchestrator drives the whole migration batch: a bounded main
// tier runs each repository through detection, translation and validation,
// handing off to a bounded secondary tier for runtime verification and
// repair when enabled, with a streaming reporter as the single source of
// truth for progress and resume.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/ci-migrate/cipilot/internal/config"
	"github.com/ci-migrate/cipilot/internal/detect"
	"github.com/ci-migrate/cipilot/internal/ghclient"
	"github.com/ci-migrate/cipilot/internal/ghwriter"
	"github.com/ci-migrate/cipilot/internal/llmclient"
	"github.com/ci-migrate/cipilot/internal/model"
	"github.com/ci-migrate/cipilot/internal/prpublish"
	"github.com/ci-migrate/cipilot/internal/repair"
	"github.com/ci-migrate/cipilot/internal/report"
	"github.com/ci-migrate/cipilot/internal/runtime"
	"github.com/ci-migrate/cipilot/internal/tokenpool"
	"github.com/ci-migrate/cipilot/internal/translate"
	"github.com/ci-migrate/cipilot/internal/validate"
	"github.com/ci-migrate/cipilot/internal/verify"
	"github.com/ci-migrate/cipilot/pkg/logger"
)

var log = logger.New("orchestrator:orchestrator")

// feederInterval is how often the main tier's staging list is drained into
// the secondary tier's async queue, bridging the synchronous per-repo
// worker model and the runtime verifier's cooperative one.
const feederInterval = 100 * time.Millisecond

// runtimeTask is one unit of work for the secondary (runtime-verification)
// tier. A fixable error that gets repaired re-enqueues a new runtimeTask
// rather than retrying in place.
type runtimeTask struct {
	result       *model.RepoResult
	forkOwner    string
	repoName     string
	branch       string
	targetBranch string
	workflowPath string
	currentYAML  string
	fixAttempt   int
}

// Orchestrator owns both scheduling tiers and the shared reporter.
type Orchestrator struct {
	cfg      *config.Config
	pats     *tokenpool.Pool
	llm      *llmclient.Client
	reporter *report.Reporter

	stagingMu sync.Mutex
	staging   []runtimeTask

	secondary chan runtimeTask
	pending   atomic.Int64
}

// New builds an Orchestrator ready to run a batch.
func New(cfg *config.Config, pats *tokenpool.Pool, llm *llmclient.Client, reporter *report.Reporter) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		pats:      pats,
		llm:       llm,
		reporter:  reporter,
		secondary: make(chan runtimeTask, cfg.MaxConcurrent*4),
	}
}

// Run processes every RepoRef through the main tier, draining the secondary
// (runtime-verification) tier alongside it, and blocks until both tiers
// have finished every row or ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context, repos []model.RepoRef, resume report.ResumeState) error {
	var secondaryWG sync.WaitGroup
	for i := 0; i < o.cfg.MaxConcurrent; i++ {
		secondaryWG.Add(1)
		go o.runSecondaryWorker(ctx, &secondaryWG)
	}

	feederDone := make(chan struct{})
	go o.runFeeder(ctx, feederDone)

	mainPool := pool.New().WithMaxGoroutines(o.cfg.MaxConcurrent)
	for _, repo := range repos {
		if resume.TerminalRepoURLs[repo.URL] {
			log.Printf("resume: skipping already-terminal repo %s", repo.URL)
			continue
		}
		repo := repo
		mainPool.Go(func() {
			o.processRepo(ctx, repo)
		})
	}
	mainPool.Wait()
	log.Printf("main tier finished; waiting for %d runtime-verification tasks to drain", o.pending.Load())

	o.waitForDrain(ctx)
	close(o.secondary)
	close(feederDone)
	secondaryWG.Wait()

	return ctx.Err()
}

// waitForDrain blocks until the secondary tier's pending counter reaches
// zero or ctx is cancelled, matching the backpressure/completion rule: the
// orchestrator never tears down the secondary tier while runtime
// verification is still outstanding.
func (o *Orchestrator) waitForDrain(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if o.pending.Load() == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runFeeder drains the staging list into the secondary channel every
// feederInterval, decoupling the main tier's per-repo goroutines from the
// secondary tier's bounded channel.
func (o *Orchestrator) runFeeder(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(feederInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			o.drainStagingOnce()
			return
		case <-ticker.C:
			o.drainStagingOnce()
		}
	}
}

func (o *Orchestrator) drainStagingOnce() {
	o.stagingMu.Lock()
	tasks := o.staging
	o.staging = nil
	o.stagingMu.Unlock()

	for _, t := range tasks {
		o.secondary <- t
	}
}

func (o *Orchestrator) stage(t runtimeTask) {
	o.pending.Add(1)
	o.stagingMu.Lock()
	o.staging = append(o.staging, t)
	o.stagingMu.Unlock()
}

// processRepo runs one RepoRef through the main tier: Detector, then for
// every detected CI configuration, Translator -> Syntactic Validator ->
// Semantic Verifier, handing off to the secondary tier (or the PR
// Publisher directly) depending on whether runtime verification is enabled.
func (o *Orchestrator) processRepo(ctx context.Context, repo model.RepoRef) {
	cred := o.pats.Acquire()
	if err := o.pats.Preflight(ctx, cred); err != nil {
		log.Printf("preflight failed for %s: %v", repo.URL, err)
	}

	owner, err := repo.Owner()
	if err != nil {
		log.Printf("skipping %s: %v", repo.URL, err)
		return
	}
	name, err := repo.Name()
	if err != nil {
		log.Printf("skipping %s: %v", repo.URL, err)
		return
	}

	defaultBranch := repo.TargetBranch()

	detected, err := detect.Detect(ctx, cred.Client, owner, name, defaultBranch)
	if err != nil {
		o.recordFailure(repo, fmt.Errorf("detection: %w", err))
		return
	}
	if len(detected) == 0 {
		o.recordFailure(repo, fmt.Errorf("no supported CI configuration found"))
		return
	}

	var allKinds []model.CIKind
	for _, d := range detected {
		allKinds = append(allKinds, d.CIKind)
	}

	for _, d := range detected {
		o.processDetectedConfig(ctx, cred, repo, owner, name, defaultBranch, d, allKinds)
	}
}

func (o *Orchestrator) recordFailure(repo model.RepoRef, err error) {
	result := &model.RepoResult{
		Repo:          repo,
		RowIndex:      -1,
		OverallStatus: model.OverallFailed,
		ErrorMessage:  err.Error(),
		StartedAt:     time.Now(),
		CompletedAt:   time.Now(),
	}
	if _, writeErr := o.reporter.WriteResult(result); writeErr != nil {
		log.Printf("failed to record failure for %s: %v", repo.URL, writeErr)
	}
}

func (o *Orchestrator) processDetectedConfig(ctx context.Context, cred tokenpool.Credential, repo model.RepoRef, owner, name, targetBranch string, detected model.DetectedConfig, allKinds []model.CIKind) {
	result := &model.RepoResult{
		Repo:             repo,
		RowIndex:         -1,
		CIKind:           detected.CIKind,
		AllDetectedKinds: allKinds,
		Detection:        &model.DetectionOutcome{Base: model.Base{Status: model.StageSuccess}, Detected: []model.DetectedConfig{detected}},
		SourcePath:       detected.SourcePath,
		StartedAt:        time.Now(),
	}

	migratedYAML, attempts, err := translate.Translate(ctx, o.llm, cred.Bucket, detected.SourceYAML, detected.CIKind, "", o.cfg.MaxRetries)
	if err != nil {
		result.Migration = &model.TranslationOutcome{Base: model.Base{Status: model.StageFailed, Err: err, Attempts: attempts}}
		o.finish(result, model.OverallFailed, err)
		return
	}
	result.Migration = &model.TranslationOutcome{Base: model.Base{Status: model.StageSuccess, Attempts: attempts}, MigratedYAML: migratedYAML}

	syntactic, err := validate.Validate(ctx, migratedYAML)
	if err != nil {
		log.Printf("%s: validation error: %v", repo.URL, err)
	}
	result.Syntactic = &model.SyntacticOutcome{
		Base:       model.Base{Status: statusFor(syntactic.LintValid)},
		YAMLValid:  syntactic.YAMLValid,
		LintValid:  syntactic.LintValid,
		LintErrors: syntactic.LintErrors,
	}

	runSemantic := o.cfg.ShouldRunDoubleCheck(syntactic.LintValid)
	var semanticPassed bool
	if runSemantic {
		verdict, err := verify.Verify(ctx, o.llm, detected.SourceYAML, migratedYAML, detected.CIKind)
		if err != nil {
			log.Printf("%s: semantic verification error: %v", repo.URL, err)
		}
		semanticPassed = verdict.Passed
		result.Semantic = &model.SemanticOutcome{
			Base:              model.Base{Status: statusFor(verdict.Passed)},
			Passed:            verdict.Passed,
			Confidence:        verdict.Confidence,
			Reasons:           verdict.Reasons,
			MissingFeatures:   verdict.MissingFeatures,
			HallucinatedSteps: verdict.HallucinatedSteps,
		}
	} else {
		semanticPassed = true
		result.Semantic = &model.SemanticOutcome{Base: model.Base{Status: model.StageSkipped}, Skipped: true}
	}

	writeResult, attempts, err := ghwriter.WithRetry(ctx, cred.Client, owner, name, targetBranch, detected.CIKind, o.cfg.BranchPrefix, migratedYAML, o.cfg.DryRun, o.cfg.MaxRetries, o.cfg.RetryDelay)
	if err != nil {
		result.Writer = &model.WriterOutcome{Base: model.Base{Status: model.StageFailed, Err: err, Attempts: attempts}}
		o.finish(result, model.OverallPartial, err)
		return
	}
	writerStatus := model.StageSuccess
	if writeResult.Skipped {
		writerStatus = model.StageSkipped
	}
	result.Writer = &model.WriterOutcome{
		Base:         model.Base{Status: writerStatus, Attempts: attempts},
		ForkURL:      writeResult.ForkURL,
		BranchName:   writeResult.BranchName,
		WorkflowPath: writeResult.WorkflowPath,
	}

	forkOwner := writeResult.ForkOwner
	if forkOwner == "" {
		forkOwner = owner
	}

	// Runtime verification never runs for a skipped write (dry run) or when
	// the operator disabled it outright; the row is terminal right here.
	if writeResult.Skipped || !o.cfg.CloudGHAVerify {
		o.publishAndFinish(ctx, cred.Client, owner, forkOwner, name, targetBranch, result, syntactic.LintValid, semanticPassed, false, model.ErrorNone, false)
		return
	}

	rowIndex, err := o.reporter.WriteResult(withOverallStatus(result, model.OverallRuntimePending))
	if err != nil {
		log.Printf("%s: failed to write pending row: %v", repo.URL, err)
		return
	}
	result.RowIndex = rowIndex

	o.stage(runtimeTask{
		result:       result,
		forkOwner:    writeResult.ForkOwner,
		repoName:     name,
		branch:       writeResult.BranchName,
		targetBranch: targetBranch,
		workflowPath: writeResult.WorkflowPath,
		currentYAML:  migratedYAML,
	})
}

func statusFor(passed bool) model.StageStatus {
	if passed {
		return model.StageSuccess
	}
	return model.StageFailed
}

func withOverallStatus(result *model.RepoResult, status model.OverallStatus) *model.RepoResult {
	result.OverallStatus = status
	return result
}

// publishAndFinish consults the strictness policy and opens (or skips) the
// migration PR, then writes the terminal row. forkOwner is the owner to
// open the PR's head ref from: the Writer's fork owner, or the repository's
// own owner when the Writer reported none (dry run).
func (o *Orchestrator) publishAndFinish(ctx context.Context, client *ghclient.Client, owner, forkOwner, name, targetBranch string, result *model.RepoResult, lintPassed, semanticPassed, runtimeRan bool, runtimeErrorKind model.ErrorKind, repairExhausted bool) {
	decision := prpublish.Decide(o.cfg, lintPassed, semanticPassed, runtimeRan, runtimeErrorKind, repairExhausted)

	pr := &model.PROutcome{Base: model.Base{Status: model.StageSkipped}, VerificationTag: string(decision.Tag)}
	switch {
	case decision.OpenPR && result.Writer != nil && result.Writer.Status == model.StageSuccess:
		created, err := prpublish.Publish(ctx, client, owner, name, forkOwner, result.Writer.BranchName, targetBranch, result.CIKind, decision)
		switch {
		case err != nil && ghwriter.IsPRAlreadyExists(err):
			pr.Status = model.StageSkipped
			pr.SkippedReason = "PR already exists for this branch"
		case err != nil:
			pr.Status = model.StageFailed
			pr.Err = err
		case created != nil:
			pr.Status = model.StageSuccess
			pr.PRURL = created.HTMLURL
			pr.PRNumber = created.Number
		}
	case decision.OpenPR:
		pr.SkippedReason = "dry run mode - PR not created"
	default:
		pr.SkippedReason = "strictness policy did not authorize a PR for this outcome"
	}
	result.PR = pr

	overall := model.OverallSuccess
	if pr.Status != model.StageSuccess {
		overall = model.OverallPartial
	}
	o.finish(result, overall, nil)
}

// finish stamps result terminal and persists it. A negative RowIndex means
// this is the row's first write (no pending row was ever staged for it);
// a non-negative RowIndex means the main tier already wrote a
// runtime_pending row before staging it for the secondary tier, and this
// call must rewrite that row in place.
func (o *Orchestrator) finish(result *model.RepoResult, overall model.OverallStatus, err error) {
	result.OverallStatus = overall
	result.CompletedAt = time.Now()
	if err != nil {
		result.ErrorMessage = err.Error()
	}

	if result.RowIndex >= 0 {
		if writeErr := o.reporter.UpdateResult(result.RowIndex, result); writeErr != nil {
			log.Printf("%s: failed to update row %d: %v", result.Repo.URL, result.RowIndex, writeErr)
		}
		return
	}
	rowIndex, writeErr := o.reporter.WriteResult(result)
	if writeErr != nil {
		log.Printf("%s: failed to write result: %v", result.Repo.URL, writeErr)
		return
	}
	result.RowIndex = rowIndex
}

// runSecondaryWorker consumes runtimeTasks until the channel is closed,
// running the Runtime Verifier and dispatching on its ErrorKind exactly per
// the secondary-tier decision matrix.
func (o *Orchestrator) runSecondaryWorker(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for task := range o.secondary {
		o.handleRuntimeTask(ctx, task)
	}
}

func (o *Orchestrator) handleRuntimeTask(ctx context.Context, task runtimeTask) {
	defer o.pending.Add(-1)

	cred := o.pats.Acquire()
	workflowFile := runtime.WorkflowFileName(task.workflowPath)
	verifyResult := runtime.Verify(ctx, cred.Client, task.forkOwner, task.repoName, task.branch, workflowFile, o.cfg.CloudGHATimeout, 0)

	task.result.Runtime = &model.RuntimeOutcome{
		Base:          model.Base{Status: statusFor(verifyResult.Passed), Attempts: task.fixAttempt + 1},
		RunID:         verifyResult.RunID,
		RunURL:        verifyResult.RunURL,
		RunConclusion: verifyResult.Conclusion,
		ErrorKind:     verifyResult.ErrorKind,
		ErrorSnippet:  verifyResult.ErrorSnippet,
	}

	lintPassed := task.result.Syntactic == nil || task.result.Syntactic.LintValid
	semanticPassed := task.result.Semantic == nil || task.result.Semantic.Passed

	switch verifyResult.ErrorKind {
	case model.ErrorNone, model.ErrorSecret:
		o.publishRuntimeTask(ctx, cred.Client, task, lintPassed, semanticPassed, verifyResult.ErrorKind, false)
		return
	case model.ErrorFixable:
		if task.fixAttempt < o.cfg.CloudGHARetries {
			o.attemptRepair(ctx, cred, task, verifyResult.ErrorSnippet, lintPassed, semanticPassed)
			return
		}
		o.publishRuntimeTask(ctx, cred.Client, task, lintPassed, semanticPassed, verifyResult.ErrorKind, true)
		return
	default: // timeout, unknown
		o.publishRuntimeTask(ctx, cred.Client, task, lintPassed, semanticPassed, verifyResult.ErrorKind, false)
	}
}

func (o *Orchestrator) attemptRepair(ctx context.Context, cred tokenpool.Credential, task runtimeTask, errorLogs string, lintPassed, semanticPassed bool) {
	fixed, err := repair.Fix(ctx, o.llm, task.currentYAML, errorLogs)
	if err != nil {
		log.Printf("%s: repair attempt %d failed: %v", task.result.Repo.URL, task.fixAttempt+1, err)
		o.publishRuntimeTask(ctx, cred.Client, task, lintPassed, semanticPassed, model.ErrorFixable, true)
		return
	}

	if err := repair.Write(ctx, cred.Client, task.forkOwner, task.repoName, task.branch, task.workflowPath, fixed); err != nil {
		log.Printf("%s: pushing repaired workflow failed: %v", task.result.Repo.URL, err)
		o.publishRuntimeTask(ctx, cred.Client, task, lintPassed, semanticPassed, model.ErrorFixable, true)
		return
	}

	task.result.Repair = &model.RepairOutcome{Base: model.Base{Status: model.StageSuccess, Attempts: task.fixAttempt + 1}, FixedYAML: fixed}

	next := task
	next.currentYAML = fixed
	next.fixAttempt = task.fixAttempt + 1
	o.stage(next)
}

func (o *Orchestrator) publishRuntimeTask(ctx context.Context, client *ghclient.Client, task runtimeTask, lintPassed, semanticPassed bool, errorKind model.ErrorKind, repairExhausted bool) {
	owner, _ := task.result.Repo.Owner()
	o.publishAndFinish(ctx, client, owner, task.forkOwner, task.repoName, task.targetBranch, task.result, lintPassed, semanticPassed, true, errorKind, repairExhausted)
}
