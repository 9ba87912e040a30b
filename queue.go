package session

import (
	"fmt"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"

	"github.com/goliatone/go-session/adapters/gojob"
	"github.com/goliatone/go-session/adapters/gologger"
	"github.com/goliatone/go-session/core"
)

// QueueRuntimeConfig tunes the identity-sync queue binding.
type QueueRuntimeConfig struct {
	Dispatcher     core.ReconcileDispatcherConfig
	Policy         gojob.RetryPolicy
	LoggerProvider core.LoggerProvider
	Logger         core.Logger
}

// QueueRuntime binds the identity-sync pipeline to a go-job queue. Focus
// events enqueue through it and the reconcile dispatcher drains it; the
// runtime also carries the go-job logger bridges for deployments that run a
// go-job worker around the queue.
type QueueRuntime struct {
	enqueuer    core.JobEnqueuer
	dequeuer    core.JobDequeuer
	config      QueueRuntimeConfig
	jobProvider job.LoggerProvider
	jobLogger   job.Logger
}

func NewQueueRuntime(enqueuer queue.Enqueuer, dequeuer queue.Dequeuer, cfg QueueRuntimeConfig) (*QueueRuntime, error) {
	if enqueuer == nil {
		return nil, fmt.Errorf("session: queue enqueuer is required")
	}
	if dequeuer == nil {
		return nil, fmt.Errorf("session: queue dequeuer is required")
	}
	if cfg.Policy.MaxAttempts <= 0 {
		defaults := core.DefaultReconcileDispatcherConfig()
		cfg.Policy = gojob.RetryPolicy{
			MaxAttempts:     defaults.MaxAttempts,
			MaxDelay:        defaults.MaxBackoff,
			DeadLetterOnMax: true,
		}
	}
	_, _, jobProvider, jobLogger := gologger.ResolveForJob("session", cfg.LoggerProvider, cfg.Logger)
	return &QueueRuntime{
		enqueuer:    gojob.NewEnqueuerAdapter(enqueuer),
		dequeuer:    gojob.NewDequeuerAdapter(dequeuer, cfg.Policy),
		config:      cfg,
		jobProvider: jobProvider,
		jobLogger:   jobLogger,
	}, nil
}

// Enqueuer is the go-session side of the queue's write path.
func (q *QueueRuntime) Enqueuer() core.JobEnqueuer {
	if q == nil {
		return nil
	}
	return q.enqueuer
}

// EnqueuerOption wires the runtime's enqueuer into NewService, turning focus
// events into queued identity-sync jobs.
func (q *QueueRuntime) EnqueuerOption() Option {
	if q == nil {
		return nil
	}
	return core.WithJobEnqueuer(q.enqueuer)
}

// BindDispatcher builds the reconcile dispatcher that drains this queue into
// the given reconciler.
func (q *QueueRuntime) BindDispatcher(reconciler *core.IdentityReconciler) (*core.ReconcileDispatcher, error) {
	if q == nil {
		return nil, fmt.Errorf("session: queue runtime is nil")
	}
	return core.NewReconcileDispatcher(q.dequeuer, reconciler, q.config.Dispatcher)
}

// JobLoggerProvider exposes the bridged go-job logger provider.
func (q *QueueRuntime) JobLoggerProvider() job.LoggerProvider {
	if q == nil {
		return nil
	}
	return q.jobProvider
}

// JobLogger exposes the bridged go-job logger.
func (q *QueueRuntime) JobLogger() job.Logger {
	if q == nil {
		return nil
	}
	return q.jobLogger
}
