package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	JobIDIdentitySync = "session.identity.sync"

	ParameterKeyUserID       = "user_id"
	ParameterKeySyncAttempts = "_sync_attempts"
)

type ReconcileDispatcherConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultReconcileDispatcherConfig() ReconcileDispatcherConfig {
	defaults := DefaultConfig().Reconcile
	return ReconcileDispatcherConfig{
		MaxAttempts:    defaults.MaxAttempts,
		InitialBackoff: defaults.InitialBackoff,
		MaxBackoff:     defaults.MaxBackoff,
	}
}

type DispatchStats struct {
	Claimed   int
	Delivered int
	Retried   int
	Failed    int
}

// ReconcileDispatcher drains queued identity-sync jobs and feeds them to the
// reconciler with bounded retry and ack/nack semantics. Background sync
// failures never surface to users; they retry with exponential backoff until
// the attempt budget is spent.
type ReconcileDispatcher struct {
	dequeuer   JobDequeuer
	reconciler *IdentityReconciler
	config     ReconcileDispatcherConfig
	now        func() time.Time
}

func NewReconcileDispatcher(
	dequeuer JobDequeuer,
	reconciler *IdentityReconciler,
	config ReconcileDispatcherConfig,
) (*ReconcileDispatcher, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("core: job dequeuer is required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("core: identity reconciler is required")
	}
	defaults := DefaultReconcileDispatcherConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	return &ReconcileDispatcher{
		dequeuer:   dequeuer,
		reconciler: reconciler,
		config:     config,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// EnqueueIdentitySync queues one reconciliation run for userID. The
// idempotency key collapses duplicate focus events queued back to back.
func EnqueueIdentitySync(ctx context.Context, enqueuer JobEnqueuer, userID string) error {
	if enqueuer == nil {
		return fmt.Errorf("core: job enqueuer is required")
	}
	userID = strings.TrimSpace(userID)
	return enqueuer.Enqueue(ctx, &JobExecutionMessage{
		JobID: JobIDIdentitySync,
		Parameters: map[string]any{
			ParameterKeyUserID: userID,
		},
		IdempotencyKey: JobIDIdentitySync + "::" + userID,
	})
}

// DispatchNext processes a single delivery. Returns stats describing what
// happened so callers can drive their own polling loop.
func (d *ReconcileDispatcher) DispatchNext(ctx context.Context) (DispatchStats, error) {
	if d == nil || d.dequeuer == nil {
		return DispatchStats{}, fmt.Errorf("core: reconcile dispatcher is not configured")
	}
	delivery, err := d.dequeuer.Dequeue(ctx)
	if err != nil {
		return DispatchStats{}, err
	}
	if delivery == nil {
		return DispatchStats{}, nil
	}

	stats := DispatchStats{Claimed: 1}
	msg := delivery.Message()
	if msg == nil || strings.TrimSpace(msg.JobID) != JobIDIdentitySync {
		stats.Failed++
		return stats, delivery.Nack(ctx, JobNackOptions{
			DeadLetter: true,
			Reason:     "unsupported job",
		})
	}

	userID := payloadString(msg.Parameters, ParameterKeyUserID)
	if _, syncErr := d.reconciler.SyncCurrentUser(ctx, userID); syncErr != nil {
		attempt := syncAttempt(msg)
		if attempt+1 >= d.config.MaxAttempts {
			stats.Failed++
			return stats, joinDispatchErrors(syncErr, delivery.Nack(ctx, JobNackOptions{
				DeadLetter: true,
				Reason:     syncErr.Error(),
				Attempt:    attempt + 1,
			}))
		}
		stats.Retried++
		stampSyncAttempt(msg, attempt+1)
		return stats, joinDispatchErrors(syncErr, delivery.Nack(ctx, JobNackOptions{
			Delay:   d.nextBackoffDelay(attempt + 1),
			Requeue: true,
			Reason:  syncErr.Error(),
			Attempt: attempt + 1,
		}))
	}

	if err := delivery.Ack(ctx); err != nil {
		return stats, err
	}
	stats.Delivered++
	return stats, nil
}

func (d *ReconcileDispatcher) nextBackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(d.config.InitialBackoff)
	multiplier := math.Pow(2, float64(attempt-1))
	next := time.Duration(base * multiplier)
	if next < 0 || next > d.config.MaxBackoff {
		return d.config.MaxBackoff
	}
	return next
}

// stampSyncAttempt records the spent attempt on the message itself so the
// count survives the requeue round trip.
func stampSyncAttempt(msg *JobExecutionMessage, attempt int) {
	if msg == nil {
		return
	}
	if msg.Parameters == nil {
		msg.Parameters = map[string]any{}
	}
	msg.Parameters[ParameterKeySyncAttempts] = attempt
}

func syncAttempt(msg *JobExecutionMessage) int {
	if msg == nil || len(msg.Parameters) == 0 {
		return 0
	}
	raw, ok := msg.Parameters[ParameterKeySyncAttempts]
	if !ok {
		return 0
	}
	switch typed := raw.(type) {
	case int:
		return typed
	case int64:
		return int(typed)
	case float64:
		return int(typed)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func joinDispatchErrors(primary error, secondary error) error {
	if secondary == nil {
		return primary
	}
	if primary == nil {
		return secondary
	}
	return errors.Join(primary, secondary)
}
