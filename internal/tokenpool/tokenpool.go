// Package tokenpool hands out GitHub credentials to pipeline workers,
// rotating past any credential that has reported itself throttled. Each
// credential carries a local token bucket; the pipeline uses only its
// Backoff schedule, for translation retry delays, and no call waits on the
// bucket for admission.
package tokenpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ci-migrate/cipilot/internal/ghclient"
	"github.com/ci-migrate/cipilot/pkg/logger"
	"github.com/ci-migrate/cipilot/pkg/ratelimit"
)

var log = logger.New("tokenpool:pool")

// lowWaterThreshold is the remaining-requests floor below which preflight
// marks a credential throttled ahead of an actual 403/429.
const lowWaterThreshold = 50

// maxPreflightSleep bounds how long preflight will sleep in total waiting
// for every credential to cool down, so a stuck pool cannot hang a worker
// indefinitely.
const maxPreflightSleep = 2 * time.Minute

const preflightSleepSlice = 5 * time.Second

// credential is one pool entry: a PAT, its bound API client, and its local
// admission-control bucket.
type credential struct {
	pat       string
	client    *ghclient.Client
	bucket    *ratelimit.TokenBucket
	throttled bool
	resetAt   time.Time
}

// Pool holds an ordered list of credentials and a cursor into it. All
// operations take the pool's exclusive lock; calls are expected to be short.
type Pool struct {
	mu    sync.Mutex
	creds []*credential
	cur   int
}

// New builds a Pool from an ordered list of personal access tokens.
func New(pats []string) (*Pool, error) {
	if len(pats) == 0 {
		return nil, fmt.Errorf("tokenpool: at least one credential is required")
	}
	creds := make([]*credential, 0, len(pats))
	for _, pat := range pats {
		client, err := ghclient.New(pat)
		if err != nil {
			return nil, fmt.Errorf("tokenpool: building client: %w", err)
		}
		bucket, err := ratelimit.NewTokenBucket(ratelimit.OperationGitHubAPI, nil)
		if err != nil {
			return nil, fmt.Errorf("tokenpool: building rate limiter: %w", err)
		}
		creds = append(creds, &credential{pat: pat, client: client, bucket: bucket})
	}
	return &Pool{creds: creds}, nil
}

// Credential is what Acquire hands a worker: the client to issue calls with
// and the credential's local bucket, whose Backoff schedule the Translator
// uses between retries.
type Credential struct {
	Client *ghclient.Client
	Bucket *ratelimit.TokenBucket
	index  int
}

// Acquire returns the credential at the cursor that is not marked
// throttled. If every credential is throttled, the throttled set is cleared
// (they have presumably had time to recover) and the cursor's credential is
// returned anyway.
func (p *Pool) Acquire() Credential {
	p.mu.Lock()
	defer p.mu.Unlock()

	for range p.creds {
		c := p.creds[p.cur]
		if !c.throttled {
			return Credential{Client: c.client, Bucket: c.bucket, index: p.cur}
		}
		p.cur = (p.cur + 1) % len(p.creds)
	}

	log.Printf("all %d credentials throttled; clearing throttled set", len(p.creds))
	for _, c := range p.creds {
		c.throttled = false
	}
	c := p.creds[p.cur]
	return Credential{Client: c.client, Bucket: c.bucket, index: p.cur}
}

// ReportThrottled marks cred's credential throttled and advances the cursor
// so the next Acquire tries a different one.
func (p *Pool) ReportThrottled(cred Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cred.index < 0 || cred.index >= len(p.creds) {
		return
	}
	p.creds[cred.index].throttled = true
	log.Printf("credential %d reported throttled", cred.index)
	p.cur = (cred.index + 1) % len(p.creds)
}

// Preflight queries the host's live rate-limit endpoint for cred's
// credential; if remaining requests fall below lowWaterThreshold it marks
// the credential throttled. If every credential in the pool is now low, it
// sleeps in bounded slices until either the earliest reset epoch passes or
// maxPreflightSleep is reached.
func (p *Pool) Preflight(ctx context.Context, cred Credential) error {
	status, err := cred.Client.GetRateLimit(ctx)
	if err != nil {
		return fmt.Errorf("tokenpool: preflight: %w", err)
	}

	p.mu.Lock()
	if cred.index >= 0 && cred.index < len(p.creds) {
		p.creds[cred.index].resetAt = status.ResetAt
	}
	p.mu.Unlock()

	if status.Remaining < lowWaterThreshold {
		p.ReportThrottled(cred)
	}

	if !p.allThrottled() {
		return nil
	}

	resetAt := p.earliestReset()
	slept := time.Duration(0)
	for slept < maxPreflightSleep {
		wait := preflightSleepSlice
		if until := time.Until(resetAt); until > 0 && until < wait {
			wait = until
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		slept += wait
		if time.Now().After(resetAt) {
			break
		}
	}
	log.Printf("preflight slept %v waiting for rate-limit reset", slept)
	return nil
}

func (p *Pool) allThrottled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.creds {
		if !c.throttled {
			return false
		}
	}
	return true
}

func (p *Pool) earliestReset() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	var earliest time.Time
	for _, c := range p.creds {
		if c.resetAt.IsZero() {
			continue
		}
		if earliest.IsZero() || c.resetAt.Before(earliest) {
			earliest = c.resetAt
		}
	}
	if earliest.IsZero() {
		return time.Now().Add(time.Minute)
	}
	return earliest
}

// Size returns the number of credentials in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}
