package membership

import (
	"io"
	"log/slog"
	"time"
)

// options configures the Engine behavior (internal only).
type options struct {
	publicCommunityID   string
	rejectionRetention  time.Duration
	rejoinCooldown      time.Duration
	presidentMembership bool
	now                 func() time.Time
	logger              *slog.Logger
}

// defaultOptions returns sensible defaults.
func defaultOptions() options {
	return options{
		rejectionRetention: 30 * 24 * time.Hour,
		now:                time.Now,
		logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Option is a functional option for configuring an Engine.
type Option func(*options)

// WithPublicCommunity designates the always-public community.
// Rows in it are exempt from the one-active-membership rule and from activity checks.
// DEFAULT: no public community
func WithPublicCommunity(communityID string) Option {
	return func(o *options) {
		o.publicCommunityID = communityID
	}
}

// WithRejectionRetention sets how long rejected records are kept before a sweep removes them.
// DEFAULT: 30 days
func WithRejectionRetention(retention time.Duration) Option {
	return func(o *options) {
		if retention > 0 {
			o.rejectionRetention = retention
		}
	}
}

// WithRejoinCooldown refuses a new request to a community while the user's latest
// rejection there is younger than cooldown.
// DEFAULT: 0 (re-requesting is allowed immediately)
func WithRejoinCooldown(cooldown time.Duration) Option {
	return func(o *options) {
		o.rejoinCooldown = cooldown
	}
}

// WithPresidentMembership makes AssignPresident also give the new president an approved
// admin membership in the community, subject to the one-active-membership rule.
// DEFAULT: AssignPresident only changes the community's administrator
func WithPresidentMembership() Option {
	return func(o *options) {
		o.presidentMembership = true
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger for the engine.
// If the logger is nil, the engine will use a no-op logger.
// DEFAULT: A no-op logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
			return
		}

		o.logger = logger
	}
}
