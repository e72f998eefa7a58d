// Package dispatch implements credential selection and ordered failover
// for upstream completion calls.
package dispatch

import (
	"context"
	"errors"
	"io"
	"time"

	"branchchat/pkg/logger"
	"branchchat/pkg/models"
	"branchchat/pkg/telemetry"
	"branchchat/pkg/upstream"
)

var (
	// ErrNoCredentials means the pool held no available credential at the
	// start of dispatch (all parked or none configured).
	ErrNoCredentials = errors.New("all credentials are rate-limited or none are configured")
	// ErrAllCandidatesFailed means every available credential was tried
	// and none produced a successful stream.
	ErrAllCandidatesFailed = errors.New("all available credentials failed")
)

// Pool is the credential pool contract the dispatcher consumes.
type Pool interface {
	ListAvailable(now time.Time) ([]models.Credential, error)
	MarkCooldown(id string, until time.Time) error
	MarkUsed(id string, at time.Time) error
}

// Upstream opens a streaming completion call with the given secret.
type Upstream interface {
	Complete(ctx context.Context, secret string, msgs []models.Message) (io.ReadCloser, error)
}

type Dispatcher struct {
	pool   Pool
	up     Upstream
	window time.Duration
	now    func() time.Time
}

// New builds a dispatcher. window is the cool-down applied to a credential
// after a rate-limit response (5 minutes when zero).
func New(pool Pool, up Upstream, window time.Duration) *Dispatcher {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Dispatcher{pool: pool, up: up, window: window, now: time.Now}
}

// Dispatch selects credentials least-recently-used first and attempts the
// upstream call with each until one succeeds.
//
//   - rate-limit response: the credential is cooled down for the window and
//     the next candidate is tried
//   - any other failure (including timeouts): logged and skipped without a
//     cool-down, since the fault is not necessarily the credential's
//   - success: last-used is updated and the response stream returned
//
// No credential other than the ones actually tried is mutated.
func (d *Dispatcher) Dispatch(ctx context.Context, msgs []models.Message) (io.ReadCloser, error) {
	candidates, err := d.pool.ListAvailable(d.now())
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		telemetry.DispatchExhausted.Inc()
		return nil, ErrNoCredentials
	}
	for _, cand := range candidates {
		body, err := d.up.Complete(ctx, cand.Secret, msgs)
		if err == nil {
			if merr := d.pool.MarkUsed(cand.ID, d.now()); merr != nil {
				logger.Warn("mark_used_failed", "credential", cand.ID, "error", merr)
			}
			telemetry.DispatchAttempts.WithLabelValues("success").Inc()
			logger.Info("dispatch_succeeded", "credential", cand.ID)
			return body, nil
		}
		var se *upstream.StatusError
		if errors.As(err, &se) && se.RateLimited() {
			telemetry.DispatchAttempts.WithLabelValues("rate_limited").Inc()
			if merr := d.pool.MarkCooldown(cand.ID, d.now().Add(d.window)); merr != nil {
				logger.Warn("mark_cooldown_failed", "credential", cand.ID, "error", merr)
			}
			continue
		}
		// Generic upstream failure: may be transient or payload-level, so
		// the credential is not penalized.
		telemetry.DispatchAttempts.WithLabelValues("failed").Inc()
		logger.Error("dispatch_attempt_failed", "credential", cand.ID, "error", err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, ErrAllCandidatesFailed
}
