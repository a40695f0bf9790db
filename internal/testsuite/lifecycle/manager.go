// Package lifecycle creates the ephemeral accounts and projects used by a load test and guarantees their deletion.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/activetigger/atstress/internal/common/runcontext"
	"github.com/activetigger/atstress/internal/common/stresserrors"
	"github.com/activetigger/atstress/internal/common/util"
	"github.com/activetigger/atstress/internal/testsuite/poll"
	"github.com/activetigger/atstress/pkg/client"
)

const (
	KindProject = "project"
	KindAccount = "account"
	KindJob     = "job"

	DefaultReleaseTimeout = 30 * time.Second
)

type Manager struct {
	api   client.Api
	names *util.NameGenerator
	// Interval and clock used when waiting for a project; the timeout comes from ProjectConfig.
	poller poll.Poller
	// Bound on a single release performed by a guard.
	releaseTimeout time.Duration
}

func NewManager(api client.Api, names *util.NameGenerator, poller poll.Poller, releaseTimeout time.Duration) *Manager {
	if releaseTimeout <= 0 {
		releaseTimeout = DefaultReleaseTimeout
	}
	return &Manager{
		api:            api,
		names:          names,
		poller:         poller,
		releaseTimeout: releaseTimeout,
	}
}

type AccountConfig struct {
	// Explicit username. When empty a name is generated from Prefix.
	Username string
	Prefix   string
	Password string
	// Contact address. Defaults to <username>@test.local.
	Mail string
	Role client.Role
}

type ProjectConfig struct {
	// Explicit project name. When empty a name is generated from Prefix.
	Name         string
	Prefix       string
	Request      client.ProjectRequest
	ReadyTimeout time.Duration
}

// Project is a project confirmed to be listed by the service.
type Project struct {
	Slug  string
	State *client.ProjectState
}

// CreateAccount creates an account as admin. A guard is returned if and only if the account was created; the caller
// owns it and must release it.
func (m *Manager) CreateAccount(ctx *runcontext.Context, admin *client.Session, config AccountConfig) (string, *Guard, error) {
	username := config.Username
	if username == "" {
		name, err := m.names.Name(config.Prefix)
		if err != nil {
			return "", nil, err
		}
		username = name
	}
	mail := config.Mail
	if mail == "" {
		mail = fmt.Sprintf("%s@test.local", username)
	}
	role := config.Role
	if role == "" {
		role = client.RoleManager
	}
	err := m.api.CreateUser(ctx, admin, client.NewUser{
		Username: username,
		Password: config.Password,
		Mail:     mail,
		Role:     role,
	})
	if err != nil {
		return "", nil, errors.WithStack(&stresserrors.ErrCreationFailed{Type: KindAccount, Name: username, Cause: err})
	}
	ctx.Log.Infof("created account %s", username)
	guard := NewGuard(KindAccount, username, func(ctx *runcontext.Context) error {
		return m.DeleteAccount(ctx, admin, username)
	})
	return username, guard, nil
}

// CreateProject creates a project under session and waits for it to become visible. The guard is returned as soon
// as the service has assigned a slug, so it is non-nil even when waiting fails; it is nil if and only if creation
// itself failed.
func (m *Manager) CreateProject(ctx *runcontext.Context, session *client.Session, config ProjectConfig) (*Project, *Guard, error) {
	request := config.Request
	request.Name = config.Name
	if request.Name == "" {
		name, err := m.names.Name(config.Prefix)
		if err != nil {
			return nil, nil, err
		}
		request.Name = name
	}
	slug, err := m.api.CreateProject(ctx, session, &request)
	if err != nil {
		return nil, nil, errors.WithStack(&stresserrors.ErrCreationFailed{Type: KindProject, Name: request.Name, Cause: err})
	}
	if slug == "" {
		return nil, nil, errors.WithStack(&stresserrors.ErrCreationFailed{Type: KindProject, Name: request.Name})
	}
	guard := NewGuard(KindProject, slug, func(ctx *runcontext.Context) error {
		return m.DeleteProject(ctx, session, slug)
	})
	project := &Project{Slug: slug}

	state, err := m.WaitForProject(ctx, session, slug, config.ReadyTimeout)
	if err != nil {
		return project, guard, err
	}
	project.State = state
	ctx.Log.Infof("project %s ready", slug)
	return project, guard, nil
}

// WaitForProject polls until slug is listed and its state can be fetched.
func (m *Manager) WaitForProject(
	ctx *runcontext.Context,
	session *client.Session,
	slug string,
	timeout time.Duration,
) (*client.ProjectState, error) {
	p := m.poller
	p.Timeout = timeout
	return poll.Until(ctx, p, fmt.Sprintf("project %s to become visible", slug),
		func(ctx *runcontext.Context) (*client.ProjectState, bool, error) {
			slugs, err := m.api.ListProjects(ctx, session)
			if err != nil {
				return nil, false, err
			}
			if !slugs[slug] {
				return nil, false, nil
			}
			state, err := m.api.GetProjectState(ctx, session, slug)
			if err != nil {
				return nil, false, err
			}
			return state, true, nil
		})
}

// WaitForTraining polls until the service reports at least one training job for slug.
func (m *Manager) WaitForTraining(
	ctx *runcontext.Context,
	session *client.Session,
	slug string,
	timeout time.Duration,
) (*client.JobState, error) {
	p := m.poller
	p.Timeout = timeout
	return poll.Until(ctx, p, fmt.Sprintf("training to start in project %s", slug),
		func(ctx *runcontext.Context) (*client.JobState, bool, error) {
			state, err := m.api.GetJobState(ctx, session, slug)
			if err != nil {
				return nil, false, err
			}
			return state, state.IsTraining(), nil
		})
}

// WithAccount creates an account, passes its name to body and deletes it once body returns.
// The error of body is returned even if the deletion fails.
func (m *Manager) WithAccount(
	ctx *runcontext.Context,
	admin *client.Session,
	config AccountConfig,
	body func(username string) error,
) error {
	username, guard, err := m.CreateAccount(ctx, admin, config)
	if guard != nil {
		defer m.release(ctx, guard)
	}
	if err != nil {
		return err
	}
	return body(username)
}

// WithProject creates a project, waits for it to be visible, passes it to body and deletes it once body returns.
// The project is deleted even if waiting fails. The error of body is returned even if the deletion fails.
func (m *Manager) WithProject(
	ctx *runcontext.Context,
	session *client.Session,
	config ProjectConfig,
	body func(project *Project) error,
) error {
	project, guard, err := m.CreateProject(ctx, session, config)
	if guard != nil {
		defer m.release(ctx, guard)
	}
	if err != nil {
		return err
	}
	return body(project)
}

// release runs guard under a context detached from ctx, so that scopes left because ctx was cancelled still clean up.
func (m *Manager) release(ctx *runcontext.Context, guard *Guard) {
	releaseCtx, cancel := runcontext.WithTimeout(runcontext.Detached(ctx), m.releaseTimeout)
	defer cancel()
	guard.Release(releaseCtx)
}

// DeleteAccount deletes username. An account that no longer exists counts as deleted.
func (m *Manager) DeleteAccount(ctx *runcontext.Context, admin *client.Session, username string) error {
	return ignoreNotFound(ctx, KindAccount, username, m.api.DeleteUser(ctx, admin, username))
}

// DeleteProject deletes slug. A project that no longer exists counts as deleted.
func (m *Manager) DeleteProject(ctx *runcontext.Context, session *client.Session, slug string) error {
	return ignoreNotFound(ctx, KindProject, slug, m.api.DeleteProject(ctx, session, slug))
}

// StopJob stops the training job of slug.
func (m *Manager) StopJob(ctx *runcontext.Context, session *client.Session, slug string) error {
	return m.api.StopTraining(ctx, session, slug)
}

func ignoreNotFound(ctx *runcontext.Context, kind, id string, err error) error {
	if stresserrors.IsNotFound(err) {
		ctx.Log.Debugf("%s %s already deleted", kind, id)
		return nil
	}
	return err
}
