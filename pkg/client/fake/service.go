// Package fake provides an in-memory annotation service for tests.
package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/activetigger/atstress/internal/common/stresserrors"
	"github.com/activetigger/atstress/pkg/client"
)

const (
	Authenticate          = "Authenticate"
	CreateUser            = "CreateUser"
	DeleteUser            = "DeleteUser"
	ListUsers             = "ListUsers"
	AddUserToProject      = "AddUserToProject"
	RemoveUserFromProject = "RemoveUserFromProject"
	CreateProject         = "CreateProject"
	DeleteProject         = "DeleteProject"
	ListProjects          = "ListProjects"
	GetProjectState       = "GetProjectState"
	ListSchemes           = "ListSchemes"
	StartTraining         = "StartTraining"
	StopTraining          = "StopTraining"
	GetJobState           = "GetJobState"
	Ping                  = "Ping"
)

// Call records one invocation. Arg is the main identifier involved (username or slug).
type Call struct {
	Method string
	Arg    string
}

type user struct {
	password string
	role     client.Role
	projects map[string]client.Role
}

type project struct {
	slug     string
	owner    string
	request  client.ProjectRequest
	listings int
	jobPolls int
	training map[string]interface{}
}

// Service implements client.Api in memory. It is safe for concurrent use.
//
// Configuration fields must be set before the service is shared between goroutines.
type Service struct {
	// Number of ListProjects calls, per project, that do not yet include a newly created project.
	ProjectVisibleAfter int
	// Number of GetJobState calls, per training job, that do not yet report the job as training.
	JobRunningAfter int
	// Schemes defined for every new project.
	Schemes []string
	// Fail is consulted before each call; a non-nil result is returned as the call's error.
	Fail func(method, arg string) error
	// BeforeCall runs before each call with no lock held. Tests use it to block a call.
	BeforeCall func(ctx context.Context, method, arg string)
	// PingLatency is reported as the round trip of every ping.
	PingLatency time.Duration
	// Unavailable makes Ping report the service as down.
	Unavailable bool

	mu       sync.Mutex
	users    map[string]*user
	projects map[string]*project
	tokens   map[string]string
	calls    []Call
	nextSlug int
}

func NewService(adminUsername, adminPassword string) *Service {
	return &Service{
		Schemes: []string{"default"},
		users: map[string]*user{
			adminUsername: {password: adminPassword, role: client.RoleRoot, projects: map[string]client.Role{}},
		},
		projects: map[string]*project{},
		tokens:   map[string]string{},
	}
}

// Calls returns every call made so far, in order.
func (s *Service) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount returns the number of calls made to method.
func (s *Service) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// CallArgs returns the argument of every call made to method, in order.
func (s *Service) CallArgs(method string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var args []string
	for _, c := range s.calls {
		if c.Method == method {
			args = append(args, c.Arg)
		}
	}
	return args
}

// Usernames returns the accounts that currently exist, sorted.
func (s *Service) Usernames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.users))
	for name := range s.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProjectSlugs returns the projects that currently exist, sorted.
func (s *Service) ProjectSlugs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	slugs := make([]string, 0, len(s.projects))
	for slug := range s.projects {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

// Training returns the slugs of the projects that currently have a training job, sorted.
func (s *Service) Training() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var slugs []string
	for slug, p := range s.projects {
		if len(p.training) > 0 {
			slugs = append(slugs, slug)
		}
	}
	sort.Strings(slugs)
	return slugs
}

// enter records the call, runs the hooks and returns with the lock held unless an error is returned.
func (s *Service) enter(ctx context.Context, method, arg string) error {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: method, Arg: arg})
	s.mu.Unlock()
	if s.BeforeCall != nil {
		s.BeforeCall(ctx, method, arg)
	}
	if s.Fail != nil {
		if err := s.Fail(method, arg); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}
	s.mu.Lock()
	return nil
}

func (s *Service) authorize(session *client.Session) (*user, error) {
	if session == nil {
		return nil, errors.WithStack(&stresserrors.ErrUnauthenticated{Message: "no session"})
	}
	if s.tokens[session.Token] != session.Username {
		return nil, errors.WithStack(&stresserrors.ErrUnauthenticated{Username: session.Username, Message: "invalid token"})
	}
	u, ok := s.users[session.Username]
	if !ok {
		return nil, errors.WithStack(&stresserrors.ErrUnauthenticated{Username: session.Username, Message: "account deleted"})
	}
	return u, nil
}

func (s *Service) authorizeAdmin(session *client.Session) error {
	u, err := s.authorize(session)
	if err != nil {
		return err
	}
	if u.role != client.RoleRoot {
		return errors.WithStack(&stresserrors.ErrUnexpectedStatus{Method: "POST", Path: "/users", StatusCode: 403})
	}
	return nil
}

func (s *Service) ownedProject(session *client.Session, slug string) (*project, error) {
	if _, err := s.authorize(session); err != nil {
		return nil, err
	}
	p, ok := s.projects[slug]
	if !ok {
		return nil, errors.WithStack(&stresserrors.ErrNotFound{Type: "project", Value: slug})
	}
	return p, nil
}

func (s *Service) Authenticate(ctx context.Context, username, password string) (*client.Session, error) {
	if err := s.enter(ctx, Authenticate, username); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok || u.password != password {
		return nil, errors.WithStack(&stresserrors.ErrUnauthenticated{Username: username})
	}
	token := fmt.Sprintf("token-%s-%d", username, len(s.tokens))
	s.tokens[token] = username
	return &client.Session{Username: username, Token: token}, nil
}

func (s *Service) CreateUser(ctx context.Context, admin *client.Session, newUser client.NewUser) error {
	if err := s.enter(ctx, CreateUser, newUser.Username); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if err := s.authorizeAdmin(admin); err != nil {
		return err
	}
	if newUser.Username == "" {
		return errors.WithStack(&stresserrors.ErrUnexpectedStatus{Method: "POST", Path: "/users/create", StatusCode: 422})
	}
	if _, exists := s.users[newUser.Username]; exists {
		return errors.WithStack(&stresserrors.ErrUnexpectedStatus{
			Method: "POST", Path: "/users/create", StatusCode: 500, Body: "username already exists",
		})
	}
	s.users[newUser.Username] = &user{password: newUser.Password, role: newUser.Role, projects: map[string]client.Role{}}
	return nil
}

func (s *Service) DeleteUser(ctx context.Context, admin *client.Session, username string) error {
	if err := s.enter(ctx, DeleteUser, username); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if err := s.authorizeAdmin(admin); err != nil {
		return err
	}
	if _, ok := s.users[username]; !ok {
		return errors.WithStack(&stresserrors.ErrNotFound{Type: "user", Value: username})
	}
	delete(s.users, username)
	return nil
}

func (s *Service) ListUsers(ctx context.Context, admin *client.Session) ([]string, error) {
	if err := s.enter(ctx, ListUsers, ""); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	if err := s.authorizeAdmin(admin); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(s.users))
	for name := range s.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Service) AddUserToProject(ctx context.Context, admin *client.Session, username, slug string, role client.Role) error {
	if err := s.enter(ctx, AddUserToProject, username); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if err := s.authorizeAdmin(admin); err != nil {
		return err
	}
	u, ok := s.users[username]
	if !ok {
		return errors.WithStack(&stresserrors.ErrNotFound{Type: "user", Value: username})
	}
	if _, ok := s.projects[slug]; !ok {
		return errors.WithStack(&stresserrors.ErrNotFound{Type: "project", Value: slug})
	}
	u.projects[slug] = role
	return nil
}

func (s *Service) RemoveUserFromProject(ctx context.Context, admin *client.Session, username, slug string) error {
	if err := s.enter(ctx, RemoveUserFromProject, username); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if err := s.authorizeAdmin(admin); err != nil {
		return err
	}
	u, ok := s.users[username]
	if !ok {
		return errors.WithStack(&stresserrors.ErrNotFound{Type: "user", Value: username})
	}
	if _, ok := u.projects[slug]; !ok {
		return errors.WithStack(&stresserrors.ErrNotFound{Type: "project access", Value: slug})
	}
	delete(u.projects, slug)
	return nil
}

// ProjectAccess returns the role username holds in slug, if any.
func (s *Service) ProjectAccess(username, slug string) (client.Role, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return "", false
	}
	role, ok := u.projects[slug]
	return role, ok
}

func (s *Service) CreateProject(ctx context.Context, session *client.Session, request *client.ProjectRequest) (string, error) {
	if err := s.enter(ctx, CreateProject, request.Name); err != nil {
		return "", err
	}
	defer s.mu.Unlock()
	if _, err := s.authorize(session); err != nil {
		return "", err
	}
	s.nextSlug++
	slug := fmt.Sprintf("%s-%d", request.Name, s.nextSlug)
	s.projects[slug] = &project{slug: slug, owner: session.Username, request: *request}
	return slug, nil
}

func (s *Service) DeleteProject(ctx context.Context, session *client.Session, slug string) error {
	if err := s.enter(ctx, DeleteProject, slug); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if _, err := s.ownedProject(session, slug); err != nil {
		return err
	}
	delete(s.projects, slug)
	return nil
}

func (s *Service) ListProjects(ctx context.Context, session *client.Session) (map[string]bool, error) {
	if err := s.enter(ctx, ListProjects, ""); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	if _, err := s.authorize(session); err != nil {
		return nil, err
	}
	slugs := map[string]bool{}
	for slug, p := range s.projects {
		if p.owner != session.Username {
			continue
		}
		if p.listings >= s.ProjectVisibleAfter {
			slugs[slug] = true
		}
		p.listings++
	}
	return slugs, nil
}

func (s *Service) GetProjectState(ctx context.Context, session *client.Session, slug string) (*client.ProjectState, error) {
	if err := s.enter(ctx, GetProjectState, slug); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	p, err := s.ownedProject(session, slug)
	if err != nil {
		return nil, err
	}
	return &client.ProjectState{Params: client.ProjectParams{
		Slug:      p.slug,
		Name:      p.request.Name,
		TrainSize: p.request.TrainSize,
		TestSize:  p.request.TestSize,
		Language:  p.request.Language,
	}}, nil
}

func (s *Service) ListSchemes(ctx context.Context, session *client.Session, slug string) ([]string, error) {
	if err := s.enter(ctx, ListSchemes, slug); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	if _, err := s.ownedProject(session, slug); err != nil {
		return nil, err
	}
	return append([]string(nil), s.Schemes...), nil
}

func (s *Service) StartTraining(ctx context.Context, session *client.Session, slug string, request client.TrainingRequest) error {
	if err := s.enter(ctx, StartTraining, slug); err != nil {
		return err
	}
	defer s.mu.Unlock()
	p, err := s.ownedProject(session, slug)
	if err != nil {
		return err
	}
	p.training = map[string]interface{}{request.Name: request.BaseModel}
	p.jobPolls = 0
	return nil
}

func (s *Service) StopTraining(ctx context.Context, session *client.Session, slug string) error {
	if err := s.enter(ctx, StopTraining, slug); err != nil {
		return err
	}
	defer s.mu.Unlock()
	p, err := s.ownedProject(session, slug)
	if err != nil {
		return err
	}
	p.training = nil
	return nil
}

func (s *Service) GetJobState(ctx context.Context, session *client.Session, slug string) (*client.JobState, error) {
	if err := s.enter(ctx, GetJobState, slug); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	p, err := s.ownedProject(session, slug)
	if err != nil {
		return nil, err
	}
	state := &client.JobState{Available: map[string]interface{}{}, Training: map[string]interface{}{}}
	if len(p.training) > 0 {
		if p.jobPolls >= s.JobRunningAfter {
			for name, model := range p.training {
				state.Training[name] = model
			}
		}
		p.jobPolls++
	}
	return state, nil
}

func (s *Service) Ping(ctx context.Context) client.PingResult {
	if err := s.enter(ctx, Ping, ""); err != nil {
		return client.PingResult{Timestamp: time.Now()}
	}
	s.mu.Unlock()
	if s.Unavailable {
		return client.PingResult{Timestamp: time.Now(), RoundTrip: s.PingLatency}
	}
	return client.PingResult{Available: true, StatusCode: 200, RoundTrip: s.PingLatency, Timestamp: time.Now()}
}
