// Package orchestrator runs many workers against the service at once: it launches them, waits for them to be
// ready, keeps them running for the configured duration, stops them and deletes everything they created.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	"github.com/activetigger/atstress/internal/common/logging"
	"github.com/activetigger/atstress/internal/common/runcontext"
	"github.com/activetigger/atstress/internal/common/stresserrors"
	"github.com/activetigger/atstress/internal/common/util"
	"github.com/activetigger/atstress/internal/testsuite/lifecycle"
	"github.com/activetigger/atstress/internal/testsuite/metrics"
	"github.com/activetigger/atstress/internal/testsuite/report"
	"github.com/activetigger/atstress/internal/testsuite/worker"
	"github.com/activetigger/atstress/pkg/client"
)

type Config struct {
	Workers int
	// Total run time, measured from the start of the launch.
	Duration time.Duration
	// Bound on the readiness of all workers, measured from the start of the launch.
	ReadinessTimeout time.Duration
	// Bound on joining each worker once stopped.
	JoinTimeout time.Duration
	// Workers launched per second. Zero launches all workers at once.
	LaunchRate float64
	// Attempts per cleanup step, and the fixed delay between attempts.
	CleanupAttempts uint
	CleanupDelay    time.Duration
	// Bound on a single cleanup call.
	CleanupTimeout time.Duration
}

func (c Config) Validate() error {
	invalid := func(name string, value interface{}, message string) error {
		return errors.WithStack(&stresserrors.ErrInvalidArgument{Name: name, Value: fmt.Sprint(value), Message: message})
	}
	switch {
	case c.Workers < 1:
		return invalid("workers", c.Workers, "at least one worker is required")
	case c.Duration < 0:
		return invalid("duration", c.Duration, "must not be negative")
	case c.ReadinessTimeout < 0:
		return invalid("readinessTimeout", c.ReadinessTimeout, "must not be negative")
	case c.JoinTimeout < 0:
		return invalid("joinTimeout", c.JoinTimeout, "must not be negative")
	case c.LaunchRate < 0:
		return invalid("launchRate", c.LaunchRate, "must not be negative")
	case c.CleanupAttempts < 1:
		return invalid("cleanupAttempts", c.CleanupAttempts, "at least one attempt is required")
	case c.CleanupDelay < 0:
		return invalid("cleanupDelay", c.CleanupDelay, "must not be negative")
	case c.CleanupTimeout <= 0:
		return invalid("cleanupTimeout", c.CleanupTimeout, "must be positive")
	}
	return nil
}

// SpecFactory returns the spec of the worker with the given index. It is called once per worker, just before the
// worker is launched.
type SpecFactory func(index int) (worker.Spec, error)

type Option func(o *Orchestrator)

// WithClock sets the clock used for the run, readiness and join bounds.
func WithClock(clock clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithRunId(runId string) Option {
	return func(o *Orchestrator) { o.runId = runId }
}

// WithTransitionListener registers a function called on every state change.
func WithTransitionListener(listener func(State)) Option {
	return func(o *Orchestrator) { o.listeners = append(o.listeners, listener) }
}

type Orchestrator struct {
	config  Config
	api     client.Api
	manager *lifecycle.Manager
	// Administrator session used to create and delete accounts.
	admin     *client.Session
	specs     SpecFactory
	clock     clock.Clock
	metrics   *metrics.Metrics
	runId     string
	listeners []func(State)

	mu    sync.Mutex
	state State
}

func New(
	config Config,
	api client.Api,
	manager *lifecycle.Manager,
	admin *client.Session,
	specs SpecFactory,
	opts ...Option,
) (*Orchestrator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		config:  config,
		api:     api,
		manager: manager,
		admin:   admin,
		specs:   specs,
		clock:   clock.RealClock{},
		runId:   util.NewULID(),
		state:   Idle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) RunId() string {
	return o.runId
}

func (o *Orchestrator) transition(ctx *runcontext.Context, state State) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
	ctx.Log.Debugf("entering state %s", state)
	for _, listener := range o.listeners {
		listener(state)
	}
}

// run holds the per-worker bookkeeping of one run. Entry i is only touched by the orchestrator goroutine; workers
// communicate exclusively through their channels.
type run struct {
	outcomes []worker.Outcome
	// Whether readiness of the worker is resolved, either signalled or treated as failed.
	ready    []bool
	signaled []bool
	launched []bool
	readyChs []chan worker.Outcome
	doneChs  []chan worker.Outcome
}

func newRun(n int) *run {
	r := &run{
		outcomes: make([]worker.Outcome, n),
		ready:    make([]bool, n),
		signaled: make([]bool, n),
		launched: make([]bool, n),
		readyChs: make([]chan worker.Outcome, n),
		doneChs:  make([]chan worker.Outcome, n),
	}
	for i := 0; i < n; i++ {
		r.outcomes[i] = worker.Outcome{Index: i}
		r.readyChs[i] = make(chan worker.Outcome, 1)
		r.doneChs[i] = make(chan worker.Outcome, 1)
	}
	return r
}

// Run performs one complete run and returns its report. Cancelling ctx shortens the run: launching stops, waits end
// early, but workers are still stopped and joined and everything they created is still deleted.
// An error is returned only if the run could not start.
func (o *Orchestrator) Run(ctx *runcontext.Context) (*report.Report, error) {
	if state := o.State(); state != Idle {
		return nil, errors.Errorf("orchestrator already used, state is %s", state)
	}
	ctx = runcontext.WithLogField(ctx, "run", o.runId)
	start := o.clock.Now()
	r := newRun(o.config.Workers)

	stopCtx, stop := context.WithCancel(ctx)
	defer stop()

	o.transition(ctx, Launching)
	o.launch(ctx, stopCtx, r)

	o.transition(ctx, AwaitingReadiness)
	o.awaitReadiness(ctx, r, start)
	setupElapsed := o.clock.Since(start)
	o.metrics.PhaseCompleted("setup", setupElapsed)
	o.logSetup(ctx, r, setupElapsed)

	o.transition(ctx, Running)
	runStart := o.clock.Now()
	interrupted := o.runFor(ctx, o.config.Duration-o.clock.Since(start))
	o.metrics.PhaseCompleted("run", o.clock.Since(runStart))

	o.transition(ctx, ShuttingDown)
	stop()
	shutdownStart := o.clock.Now()
	o.join(ctx, r)
	o.metrics.PhaseCompleted("shutdown", o.clock.Since(shutdownStart))

	o.transition(ctx, CleaningUp)
	cleanupStart := o.clock.Now()
	cleanups, orphans := o.cleanup(runcontext.Detached(ctx), r)
	o.metrics.PhaseCompleted("cleanup", o.clock.Since(cleanupStart))

	rep := report.New(o.runId, r.outcomes, r.ready, cleanups, orphans)
	rep.SetupElapsed = setupElapsed
	rep.TotalElapsed = o.clock.Since(start)
	rep.Interrupted = interrupted || ctx.Err() != nil
	o.transition(ctx, Reported)
	ctx.Log.Infof("run finished in %s, training started for %d/%d workers",
		rep.TotalElapsed.Round(100*time.Millisecond), rep.JobRunning, o.config.Workers)
	return rep, nil
}

func (o *Orchestrator) launch(ctx *runcontext.Context, stopCtx context.Context, r *run) {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if o.config.LaunchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(o.config.LaunchRate), 1)
	}
	ctx.Log.Infof("launching %d workers", o.config.Workers)
	for i := 0; i < o.config.Workers; i++ {
		if err := limiter.Wait(ctx); err != nil {
			r.outcomes[i].Err = errors.WithMessagef(err, "worker %d not launched", i)
			r.ready[i] = true
			continue
		}
		spec, err := o.specs(i)
		if err != nil {
			r.outcomes[i].Err = errors.WithMessagef(err, "worker %d not launched", i)
			r.ready[i] = true
			o.metrics.WorkerReady(true, false)
			continue
		}
		spec.Index = i
		r.outcomes[i].Username = spec.Username
		r.launched[i] = true
		w := worker.New(spec, o.api, o.manager, o.admin, o.clock)
		o.metrics.WorkerLaunched()
		go func(i int) {
			r.doneChs[i] <- w.Run(ctx, stopCtx, r.readyChs[i])
		}(i)
	}
}

// awaitReadiness waits for every launched worker to signal, all under one deadline measured from start.
func (o *Orchestrator) awaitReadiness(ctx *runcontext.Context, r *run, start time.Time) {
	timer := o.clock.NewTimer(start.Add(o.config.ReadinessTimeout).Sub(o.clock.Now()))
	defer timer.Stop()
	expired := false
	for i := range r.outcomes {
		if !r.launched[i] {
			continue
		}
		if !expired {
			select {
			case outcome := <-r.readyChs[i]:
				o.signaled(r, i, outcome)
				continue
			case <-timer.C():
				expired = true
			case <-ctx.Done():
				expired = true
			}
		}
		select {
		case outcome := <-r.readyChs[i]:
			o.signaled(r, i, outcome)
		default:
			o.notReady(ctx, r, i, start)
		}
	}
}

func (o *Orchestrator) signaled(r *run, i int, outcome worker.Outcome) {
	r.outcomes[i] = outcome
	r.ready[i] = true
	r.signaled[i] = true
	o.metrics.WorkerReady(outcome.Failed(), outcome.JobRunning)
}

func (o *Orchestrator) notReady(ctx *runcontext.Context, r *run, i int, start time.Time) {
	var err error
	if ctx.Err() != nil {
		err = errors.WithMessagef(ctx.Err(), "interrupted before worker %d was ready", i)
	} else {
		err = errors.WithStack(&stresserrors.ErrTimeout{
			Awaiting: fmt.Sprintf("worker %d to become ready", i),
			Timeout:  o.config.ReadinessTimeout,
			Elapsed:  o.clock.Since(start),
		})
	}
	r.outcomes[i].Err = err
	r.ready[i] = true
	o.metrics.WorkerReady(true, false)
	runcontext.WithLogField(ctx, "worker", i).Log.WithError(err).Errorf("worker %d not ready", i)
}

func (o *Orchestrator) logSetup(ctx *runcontext.Context, r *run, elapsed time.Duration) {
	jobRunning, failed := 0, 0
	for _, outcome := range r.outcomes {
		if outcome.JobRunning {
			jobRunning++
		}
		if outcome.Failed() {
			failed++
		}
	}
	ctx.Log.Infof("setup complete in %s: training started %d/%d, errors %d/%d",
		elapsed.Round(100*time.Millisecond), jobRunning, o.config.Workers, failed, o.config.Workers)
}

// runFor waits for remaining, returning true if ctx was cancelled first.
func (o *Orchestrator) runFor(ctx *runcontext.Context, remaining time.Duration) bool {
	if remaining <= 0 {
		ctx.Log.Infof("setup used the whole run duration of %s, stopping immediately", o.config.Duration)
		return ctx.Err() != nil
	}
	ctx.Log.Infof("running for %s", remaining.Round(time.Second))
	timer := o.clock.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C():
		return false
	case <-ctx.Done():
		ctx.Log.Warn("interrupted, shutting down")
		return true
	}
}

// join waits up to JoinTimeout for each launched worker to return. Workers that do not return are abandoned and
// keep whatever outcome was known for them.
func (o *Orchestrator) join(ctx *runcontext.Context, r *run) {
	for i := range r.outcomes {
		if !r.launched[i] {
			continue
		}
		timer := o.clock.NewTimer(o.config.JoinTimeout)
		select {
		case final := <-r.doneChs[i]:
			if !r.signaled[i] {
				// Readiness came too late: keep what was created for cleanup, but the worker still counts as failed.
				if final.Err == nil {
					final.Err = r.outcomes[i].Err
				}
				final.JobRunning = false
			}
			r.outcomes[i] = final
		case <-timer.C():
			r.outcomes[i].Abandoned = true
			runcontext.WithLogField(ctx, "worker", i).Log.Warnf("worker %d did not stop within %s, abandoning it", i, o.config.JoinTimeout)
		}
		timer.Stop()
	}
}

// cleanup tears down what each worker created, in worker order and, per worker, job then project then account.
// Steps are independent of each other: a failed step never prevents the next one.
func (o *Orchestrator) cleanup(ctx *runcontext.Context, r *run) ([]report.Cleanup, []report.Orphan) {
	cleanups := make([]report.Cleanup, len(r.outcomes))
	var orphans []report.Orphan
	for i, outcome := range r.outcomes {
		wctx := runcontext.WithLogField(ctx, "worker", i)
		var result *multierror.Error
		slug := outcome.ProjectSlug
		session := outcome.Session

		if outcome.JobSubmitted && slug != "" && session != nil {
			err := o.withRetry(wctx, func(ctx *runcontext.Context) error {
				return o.manager.StopJob(ctx, session, slug)
			})
			if err != nil {
				result = multierror.Append(result, errors.WithMessagef(err, "stopping training in project %s", slug))
				o.metrics.CleanupFailed(lifecycle.KindJob)
				logging.WithStacktrace(wctx.Log, err).Warnf("could not stop training in project %s", slug)
			} else {
				cleanups[i].JobStopped = true
				wctx.Log.Infof("stopped training in project %s", slug)
			}
		}

		switch {
		case slug != "" && session != nil:
			err := o.withRetry(wctx, func(ctx *runcontext.Context) error {
				return o.manager.DeleteProject(ctx, session, slug)
			})
			if err != nil {
				result = multierror.Append(result, errors.WithMessagef(err, "deleting project %s", slug))
				o.metrics.CleanupFailed(lifecycle.KindProject)
				orphans = append(orphans, report.Orphan{Worker: i, Kind: lifecycle.KindProject, Id: slug, Reason: err.Error()})
				logging.WithStacktrace(wctx.Log, err).Warnf("could not delete project %s", slug)
			} else {
				cleanups[i].ProjectDeleted = true
				wctx.Log.Infof("deleted project %s", slug)
			}
		case slug != "":
			orphans = append(orphans, report.Orphan{Worker: i, Kind: lifecycle.KindProject, Id: slug, Reason: "no session to delete it with"})
		case outcome.Abandoned && !r.signaled[i]:
			orphans = append(orphans, report.Orphan{Worker: i, Kind: lifecycle.KindProject, Reason: "worker abandoned before reporting its project"})
		}

		if outcome.Username != "" {
			username := outcome.Username
			err := o.withRetry(wctx, func(ctx *runcontext.Context) error {
				return o.manager.DeleteAccount(ctx, o.admin, username)
			})
			if err != nil {
				result = multierror.Append(result, errors.WithMessagef(err, "deleting account %s", username))
				o.metrics.CleanupFailed(lifecycle.KindAccount)
				orphans = append(orphans, report.Orphan{Worker: i, Kind: lifecycle.KindAccount, Id: username, Reason: err.Error()})
				logging.WithStacktrace(wctx.Log, err).Warnf("could not delete account %s", username)
			} else if outcome.Abandoned && !r.signaled[i] {
				// The worker may still be inside its account creation call, in which case the delete found
				// nothing and the account appears afterwards.
				orphans = append(orphans, report.Orphan{Worker: i, Kind: lifecycle.KindAccount, Id: username, Reason: "worker abandoned during setup, account may be created after cleanup"})
				wctx.Log.Warnf("worker %d was abandoned during setup, account %s may outlive the run", i, username)
			} else {
				cleanups[i].AccountDeleted = true
				wctx.Log.Infof("deleted account %s", username)
			}
		}

		if result != nil {
			result.ErrorFormat = joinErrors
			cleanups[i].Error = result.Error()
		}
	}
	return cleanups, orphans
}

func joinErrors(errs []error) string {
	messages := make([]string, len(errs))
	for i, err := range errs {
		messages[i] = err.Error()
	}
	return strings.Join(messages, "; ")
}

// withRetry runs a cleanup step up to CleanupAttempts times. Authentication failures are not retried.
func (o *Orchestrator) withRetry(ctx *runcontext.Context, step func(ctx *runcontext.Context) error) error {
	return retry.Do(
		func() error {
			callCtx, cancel := runcontext.WithTimeout(ctx, o.config.CleanupTimeout)
			defer cancel()
			return step(callCtx)
		},
		retry.Attempts(o.config.CleanupAttempts),
		retry.Delay(o.config.CleanupDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var unauthenticated *stresserrors.ErrUnauthenticated
			return !errors.As(err, &unauthenticated)
		}),
		retry.OnRetry(func(n uint, err error) {
			ctx.Log.WithError(err).Debugf("cleanup attempt %d failed", n+1)
		}),
	)
}
