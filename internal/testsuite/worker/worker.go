// Package worker runs the workflow of one simulated user: account, session, project, training job.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/activetigger/atstress/internal/common/logging"
	"github.com/activetigger/atstress/internal/common/runcontext"
	"github.com/activetigger/atstress/internal/common/stresserrors"
	"github.com/activetigger/atstress/internal/testsuite/lifecycle"
	"github.com/activetigger/atstress/pkg/client"
)

// Spec describes the work of one worker. The account name is chosen by whoever launches the worker, so that the
// account can be deleted even if the worker never reports back.
type Spec struct {
	Index           int
	Username        string
	Password        string
	Role            client.Role
	Project         lifecycle.ProjectConfig
	JobName         string
	BaseModel       string
	Parameters      map[string]interface{}
	JobStartTimeout time.Duration
}

// Outcome is written only by the worker that owns it. The launcher receives copies: one when the worker is ready
// and one when it returns.
type Outcome struct {
	Index          int
	Username       string
	AccountCreated bool
	ProjectSlug    string
	JobSubmitted   bool
	JobRunning     bool
	// Set when the job could not be confirmed as running; not a failure.
	Warning string
	Err     error
	// Session of the worker's own account, needed to stop its job and delete its project.
	Session *client.Session
	// Time from start to readiness.
	SetupElapsed time.Duration
	// Set by the launcher when the worker did not signal readiness, or did not return, in time.
	Abandoned bool
}

func (o Outcome) Failed() bool {
	return o.Err != nil
}

type Worker struct {
	spec    Spec
	api     client.Api
	manager *lifecycle.Manager
	admin   *client.Session
	clock   clock.Clock
}

func New(spec Spec, api client.Api, manager *lifecycle.Manager, admin *client.Session, clock clock.Clock) *Worker {
	return &Worker{
		spec:    spec,
		api:     api,
		manager: manager,
		admin:   admin,
		clock:   clock,
	}
}

// Run performs the setup workflow, sends a copy of the outcome on ready exactly once, then, if setup succeeded,
// blocks until stop is done. ready must have room for one value. Resources are never deleted here.
//
// Once stop is done no new account or project is created: a worker that is still setting up when the run shuts
// down gives up before its next creating step, so nothing appears after cleanup that cleanup did not know about.
func (w *Worker) Run(ctx *runcontext.Context, stop context.Context, ready chan<- Outcome) Outcome {
	ctx = runcontext.WithLogField(ctx, "worker", w.spec.Index)
	start := w.clock.Now()
	outcome := Outcome{Index: w.spec.Index, Username: w.spec.Username}

	func() {
		defer func() {
			if r := recover(); r != nil {
				outcome.Err = errors.Errorf("worker panicked: %v", r)
			}
		}()
		outcome.Err = w.setup(ctx, stop, &outcome)
	}()
	outcome.SetupElapsed = w.clock.Since(start)

	if outcome.Err != nil {
		logging.WithStacktrace(ctx.Log, outcome.Err).Errorf("worker %d failed", w.spec.Index)
	} else if outcome.Warning != "" {
		ctx.Log.Warnf("worker %d ready: %s", w.spec.Index, outcome.Warning)
	} else {
		ctx.Log.Infof("worker %d ready after %s", w.spec.Index, outcome.SetupElapsed.Round(time.Millisecond))
	}
	ready <- outcome

	if outcome.Err == nil {
		<-stop.Done()
		ctx.Log.Debugf("worker %d stopped", w.spec.Index)
	}
	return outcome
}

func (w *Worker) setup(ctx *runcontext.Context, stop context.Context, outcome *Outcome) error {
	if err := stop.Err(); err != nil {
		return errors.WithMessagef(err, "worker %d stopped before creating its account", w.spec.Index)
	}
	_, _, err := w.manager.CreateAccount(ctx, w.admin, lifecycle.AccountConfig{
		Username: w.spec.Username,
		Password: w.spec.Password,
		Role:     w.spec.Role,
	})
	if err != nil {
		return err
	}
	outcome.AccountCreated = true

	session, err := w.api.Authenticate(ctx, w.spec.Username, w.spec.Password)
	if err != nil {
		return errors.WithMessagef(err, "worker %d could not authenticate", w.spec.Index)
	}
	outcome.Session = session
	ctx.Log.Infof("authenticated as %s", session.Username)

	if err := stop.Err(); err != nil {
		return errors.WithMessagef(err, "worker %d stopped before creating its project", w.spec.Index)
	}
	project, _, err := w.manager.CreateProject(ctx, session, w.spec.Project)
	if project != nil {
		outcome.ProjectSlug = project.Slug
	}
	if err != nil {
		return err
	}
	ctx = runcontext.WithLogField(ctx, "project", project.Slug)

	schemes, err := w.api.ListSchemes(ctx, session, project.Slug)
	if err != nil {
		return errors.WithMessagef(err, "listing schemes of project %s", project.Slug)
	}
	if len(schemes) == 0 {
		return errors.WithStack(&stresserrors.ErrNotFound{
			Type:    "scheme",
			Value:   project.Slug,
			Message: "project has no annotation scheme",
		})
	}

	jobName := w.spec.JobName
	if jobName == "" {
		jobName = fmt.Sprintf("stress-model-%d", w.spec.Index)
	}
	ctx.Log.Infof("starting training %s on scheme %s", jobName, schemes[0])
	err = w.api.StartTraining(ctx, session, project.Slug, client.TrainingRequest{
		Scheme:     schemes[0],
		Name:       jobName,
		BaseModel:  w.spec.BaseModel,
		Parameters: w.spec.Parameters,
	})
	if err != nil {
		return errors.WithMessagef(err, "starting training in project %s", project.Slug)
	}
	outcome.JobSubmitted = true

	jobs, err := w.manager.WaitForTraining(ctx, session, project.Slug, w.spec.JobStartTimeout)
	switch {
	case stresserrors.IsTimeout(err):
		outcome.Warning = fmt.Sprintf("training not detected within %s", w.spec.JobStartTimeout)
	case err != nil:
		return err
	default:
		outcome.JobRunning = true
		ctx.Log.Infof("training running: %v", jobs.TrainingNames())
	}
	return nil
}
