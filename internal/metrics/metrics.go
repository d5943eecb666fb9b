package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Access decision metrics
var (
	// AccessDecisionsTotal tracks access decisions by action and outcome.
	AccessDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Total number of access decisions by action and outcome",
		},
		[]string{"action", "allowed", "reason"},
	)
)

// Membership lifecycle metrics
var (
	// JoinRequestsTotal tracks join request outcomes.
	JoinRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "join_requests_total",
			Help: "Total number of join request operations by outcome",
		},
		[]string{"outcome"}, // created, approved, rejected, cancelled
	)

	// InviteRedemptionsTotal tracks invite redemption outcomes.
	InviteRedemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invite_redemptions_total",
			Help: "Total number of invite redemption attempts by outcome",
		},
		[]string{"outcome"}, // joined, already_member, expired, exhausted, inactive
	)

	// MembershipsTotal tracks membership creations and removals.
	MembershipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memberships_total",
			Help: "Total number of membership changes by kind",
		},
		[]string{"kind"}, // joined, left, removed
	)

	// ModerationActionsTotal tracks moderation operations.
	ModerationActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_actions_total",
			Help: "Total number of moderation actions",
		},
		[]string{"action"}, // block, unblock, promote, demote, remove
	)

	// ExpiredBlocksLifted tracks blocks lifted by the background sweep.
	ExpiredBlocksLifted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "expired_blocks_lifted_total",
			Help: "Total number of expired blocks lifted by the sweep job",
		},
	)
)

// Outbox metrics
var (
	// OutboxPending tracks pending outbox entries.
	OutboxPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_pending",
			Help: "Number of pending outbox entries",
		},
	)

	// OutboxDispatchedTotal tracks dispatched outbox entries by result.
	OutboxDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_dispatched_total",
			Help: "Total number of outbox entries dispatched by result",
		},
		[]string{"result"}, // processed, failed
	)

	// OutboxDispatchDuration tracks how long a drain batch takes.
	OutboxDispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outbox_dispatch_duration_seconds",
			Help:    "Outbox drain batch duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
	)
)
