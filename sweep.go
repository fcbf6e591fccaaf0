package membership

import (
	"context"
	"errors"

	"go-membership/database"
)

// Pass names a reconciliation step.
type Pass string

const (
	PassOrphanMemberships Pass = "orphan_memberships"
	PassStalePending      Pass = "stale_pending"
	PassStaleRejections   Pass = "stale_rejections"
	PassReactivation      Pass = "reactivation"
	PassDeactivation      Pass = "deactivation"
	PassOrphanLeaders     Pass = "orphan_leaders"
)

// SweepScope selects the rows a sweep may touch.
type SweepScope struct {
	userID string
}

// GlobalScope sweeps every user and community.
func GlobalScope() SweepScope {
	return SweepScope{}
}

// UserScope sweeps only the given user's records. Community-level passes are skipped.
func UserScope(userID string) SweepScope {
	return SweepScope{userID: userID}
}

// UserID returns the scoped user, or "" for a global scope.
func (s SweepScope) UserID() string {
	return s.userID
}

// IsGlobal reports whether the scope covers every user.
func (s SweepScope) IsGlobal() bool {
	return s.userID == ""
}

// PassResult is the outcome of one pass.
type PassResult struct {
	Pass    Pass
	Count   int64 // rows deleted or updated
	Skipped bool
	Err     error
}

// SweepReport lists the outcome of every pass.
type SweepReport struct {
	Passes []PassResult
}

// Total returns the number of rows changed across all passes.
func (r SweepReport) Total() int64 {
	var total int64
	for _, pass := range r.Passes {
		total += pass.Count
	}
	return total
}

// Count returns the number of rows changed by the named pass.
func (r SweepReport) Count(name Pass) int64 {
	for _, pass := range r.Passes {
		if pass.Pass == name {
			return pass.Count
		}
	}
	return 0
}

// Err joins the errors of every failed pass, or returns nil.
func (r SweepReport) Err() error {
	var errs []error
	for _, pass := range r.Passes {
		if pass.Err != nil {
			errs = append(errs, pass.Err)
		}
	}
	return errors.Join(errs...)
}

type sweepPass struct {
	name       Pass
	globalOnly bool
	deferred   bool // runs after every other pass
	run        func(ctx context.Context, q *database.Queries, userID string) (int64, error)
}

func (e *Engine) sweepPasses() []sweepPass {
	return []sweepPass{
		{
			name: PassOrphanMemberships,
			run: func(ctx context.Context, q *database.Queries, userID string) (int64, error) {
				return q.DeleteOrphanMemberships(ctx, userID)
			},
		},
		{
			// Deferred so it also prunes communities deactivated by this sweep.
			name:     PassStalePending,
			deferred: true,
			run: func(ctx context.Context, q *database.Queries, userID string) (int64, error) {
				return q.DeleteStalePending(ctx, userID, e.options.publicCommunityID)
			},
		},
		{
			name: PassStaleRejections,
			run: func(ctx context.Context, q *database.Queries, userID string) (int64, error) {
				var cutoff = e.options.now().Add(-e.options.rejectionRetention)
				return q.DeleteStaleRejections(ctx, userID, toMillis(cutoff))
			},
		},
		{
			name:       PassReactivation,
			globalOnly: true,
			run: func(ctx context.Context, q *database.Queries, _ string) (int64, error) {
				return q.ReactivateCommunities(ctx)
			},
		},
		{
			name:       PassDeactivation,
			globalOnly: true,
			run: func(ctx context.Context, q *database.Queries, _ string) (int64, error) {
				return q.DeactivateCommunities(ctx, e.options.publicCommunityID)
			},
		},
		{
			name:       PassOrphanLeaders,
			globalOnly: true,
			run: func(ctx context.Context, q *database.Queries, _ string) (int64, error) {
				return q.DeleteOrphanLeaders(ctx)
			},
		},
	}
}

// SweepAs runs Sweep on behalf of actingUserID. Superusers may sweep any scope;
// other users may only sweep their own records.
func (e *Engine) SweepAs(ctx context.Context, scope SweepScope, actingUserID string) (SweepReport, error) {
	if actingUserID == "" || scope.UserID() != actingUserID {
		if err := e.requireSuperuser(ctx, actingUserID); err != nil {
			return SweepReport{}, err
		}
	}
	return e.Sweep(ctx, scope), nil
}

// Sweep reconciles stored state with the membership rules. Each pass is one
// set-based statement in its own transaction; a failing pass is reported and the
// remaining passes still run. Repeating a sweep without intervening writes changes nothing.
func (e *Engine) Sweep(ctx context.Context, scope SweepScope) SweepReport {
	var (
		passes = e.sweepPasses()
		report = SweepReport{Passes: make([]PassResult, len(passes))}
	)

	for _, deferred := range []bool{false, true} {
		for i, pass := range passes {
			if pass.deferred != deferred {
				continue
			}
			report.Passes[i] = e.runPass(ctx, pass, scope)
		}
	}

	e.logger.Info("sweep completed", "user_id", scope.userID, "changed", report.Total(), "failed", report.Err() != nil)
	return report
}

func (e *Engine) runPass(ctx context.Context, pass sweepPass, scope SweepScope) PassResult {
	var result = PassResult{Pass: pass.name}

	if pass.globalOnly && !scope.IsGlobal() {
		result.Skipped = true
		return result
	}

	result.Err = e.store.inTx(ctx, "sweep "+string(pass.name), func(q *database.Queries) error {
		count, err := pass.run(ctx, q, scope.userID)
		if err != nil {
			return err
		}
		result.Count = count
		return nil
	})
	if result.Err != nil {
		result.Count = 0
		e.logger.Warn("sweep pass failed", "pass", pass.name, "user_id", scope.userID, "error", result.Err)
	}

	return result
}
