// Package prpublish decides, per the configured strictness policy, whether
// a migrated workflow's validation/verification outcome earns it a pull
// request, and builds the PR body's runtime-verification disclosure.
package prpublish

import (
	"context"
	"fmt"

	"github.com/ci-migrate/cipilot/internal/config"
	"github.com/ci-migrate/cipilot/internal/ghclient"
	"github.com/ci-migrate/cipilot/internal/ghwriter"
	"github.com/ci-migrate/cipilot/internal/model"
	"github.com/ci-migrate/cipilot/pkg/logger"
)

var log = logger.New("prpublish:prpublish")

// VerificationTag is the closed set of runtime-verification dispositions a
// published PR's body discloses.
type VerificationTag string

const (
	TagVerified                 VerificationTag = "verified"
	TagVerifiedWithSecretCaveat VerificationTag = "verified-with-secret-caveat"
	TagUnverified               VerificationTag = "unverified"
)

// Decision is Decide's verdict: whether to open a PR, and under which
// verification tag if so.
type Decision struct {
	OpenPR bool
	Tag    VerificationTag
	Note   string // human-readable caveat, embedded in the PR body when non-empty
}

// Decide layers the runtime-verification-aware disposition (spec §4.9) on
// top of config.Config.ShouldCreatePR's lint/semantic decision. runtimeRan
// is false when the orchestrator never reached the Runtime Verifier for
// this row (runtime verification disabled, or the write skipped in a dry
// run).
func Decide(cfg *config.Config, lintPassed, semanticPassed bool, runtimeRan bool, runtimeErrorKind model.ErrorKind, repairExhausted bool) Decision {
	if cfg.Strictness == config.StrictnessDryRun {
		return Decision{OpenPR: false}
	}
	if !cfg.ShouldCreatePR(lintPassed, semanticPassed) {
		return Decision{OpenPR: false}
	}

	if !runtimeRan {
		return decideWithoutRuntimeNote(cfg, lintPassed, semanticPassed)
	}

	switch runtimeErrorKind {
	case model.ErrorNone:
		return Decision{OpenPR: true, Tag: TagVerified}
	case model.ErrorSecret:
		return Decision{
			OpenPR: true, Tag: TagVerifiedWithSecretCaveat,
			Note: "### Runtime Verification\nThe workflow could not be fully verified because required secrets are not configured on this fork. Structural and semantic checks passed; please confirm secrets after merging.",
		}
	case model.ErrorFixable:
		if !repairExhausted {
			// The secondary tier re-enters on a fixable error below the
			// retry budget; Decide is only consulted once the budget is
			// spent, so this branch is unreachable in practice but kept
			// explicit rather than folding into default.
			return Decision{OpenPR: false}
		}
		return exhaustedOrUnknownDecision(cfg.Strictness)
	case model.ErrorTimeout, model.ErrorUnknown:
		return exhaustedOrUnknownDecision(cfg.Strictness)
	default:
		return exhaustedOrUnknownDecision(cfg.Strictness)
	}
}

func decideWithoutRuntimeNote(cfg *config.Config, lintPassed, semanticPassed bool) Decision {
	var note string
	switch {
	case !lintPassed:
		note = "### Validation Caveats\nThis workflow did not pass actionlint; please review before merging."
	case !semanticPassed:
		note = "### Semantic Verification\nThe translated workflow passed syntax/lint checks but the semantic verifier flagged possible discrepancies from the source configuration. Please review carefully."
	}
	return Decision{OpenPR: true, Tag: TagUnverified, Note: note}
}

func exhaustedOrUnknownDecision(strictness config.StrictnessLevel) Decision {
	note := "### Runtime Verification\nThe workflow did not complete successfully on GitHub Actions after the available repair attempts. Please review the run logs before merging."
	if strictness == config.StrictnessStrict {
		return Decision{OpenPR: false}
	}
	return Decision{OpenPR: true, Tag: TagUnverified, Note: note}
}

// Publish opens the migration PR when decision.OpenPR is true, using
// internal/ghwriter's title/body construction. The body's extra disclosure
// paragraph names decision.Tag and is followed by decision.Note when that
// is non-empty.
func Publish(ctx context.Context, client *ghclient.Client, owner, repo, forkOwner, branch, targetBranch string, ciKind model.CIKind, decision Decision) (*ghclient.PullRequest, error) {
	if !decision.OpenPR {
		return nil, nil
	}

	note := fmt.Sprintf("**Runtime verification:** %s", decision.Tag)
	if decision.Note != "" {
		note += "\n\n" + decision.Note
	}
	body := ghwriter.PRBody(ciKind, note)
	pr, err := ghwriter.CreatePR(ctx, client, owner, repo, forkOwner, branch, targetBranch, ciKind, body)
	if err != nil {
		if ghwriter.IsPRAlreadyExists(err) {
			log.Printf("PR already exists for %s/%s@%s", forkOwner, repo, branch)
			return nil, err
		}
		return nil, fmt.Errorf("prpublish: %w", err)
	}
	log.Printf("opened PR %s (tag=%s)", pr.HTMLURL, decision.Tag)
	return pr, nil
}
