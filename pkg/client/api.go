// Package client talks to the annotation service's HTTP API.
package client

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/activetigger/atstress/internal/common/stresserrors"
)

// Role is the status granted to an account, globally or within a project.
type Role string

const (
	RoleManager   Role = "manager"
	RoleAnnotator Role = "annotator"
	RoleRoot      Role = "root"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleManager, RoleAnnotator, RoleRoot:
		return r, nil
	default:
		return "", errors.WithStack(&stresserrors.ErrInvalidArgument{
			Name:    "role",
			Value:   s,
			Message: "must be one of manager, annotator, root",
		})
	}
}

// Session is the result of a successful authentication. Operations acting as a user take the session of that user.
type Session struct {
	Username string
	Token    string
}

type NewUser struct {
	Username string
	Password string
	Mail     string
	Role     Role
}

type Columns struct {
	Id      string   `json:"col_id"`
	Text    []string `json:"cols_text"`
	Label   string   `json:"col_label,omitempty"`
	Context []string `json:"cols_context"`
}

type ProjectRequest struct {
	Name       string
	Csv        string
	Filename   string
	Columns    Columns
	TrainSize  int
	TestSize   int
	Language   string
	ForceLabel bool
}

type ProjectParams struct {
	Slug      string `json:"project_slug"`
	Name      string `json:"project_name"`
	TrainSize int    `json:"n_train"`
	TestSize  int    `json:"n_test"`
	Language  string `json:"language"`
}

type ProjectState struct {
	Params ProjectParams `json:"params"`
}

type TrainingRequest struct {
	Scheme     string                 `json:"scheme"`
	Name       string                 `json:"name"`
	BaseModel  string                 `json:"base_model"`
	Parameters map[string]interface{} `json:"params,omitempty"`
}

// JobState lists the models of a project: those already trained and those currently training.
type JobState struct {
	Available map[string]interface{} `json:"available"`
	Training  map[string]interface{} `json:"training"`
}

func (s JobState) IsTraining() bool {
	return len(s.Training) > 0
}

// TrainingNames returns the keys of Training in sorted order.
func (s JobState) TrainingNames() []string {
	names := maps.Keys(s.Training)
	slices.Sort(names)
	return names
}

type PingResult struct {
	Available  bool
	RoundTrip  time.Duration
	StatusCode int
	Timestamp  time.Time
}

// Api is the set of remote operations used by the load generator.
// Account management is performed with an administrator's session.
type Api interface {
	Authenticate(ctx context.Context, username, password string) (*Session, error)

	CreateUser(ctx context.Context, admin *Session, user NewUser) error
	DeleteUser(ctx context.Context, admin *Session, username string) error
	ListUsers(ctx context.Context, admin *Session) ([]string, error)
	AddUserToProject(ctx context.Context, admin *Session, username, slug string, role Role) error
	RemoveUserFromProject(ctx context.Context, admin *Session, username, slug string) error

	// CreateProject returns the slug assigned by the service. The project may not be visible immediately.
	CreateProject(ctx context.Context, session *Session, request *ProjectRequest) (string, error)
	DeleteProject(ctx context.Context, session *Session, slug string) error
	ListProjects(ctx context.Context, session *Session) (map[string]bool, error)
	GetProjectState(ctx context.Context, session *Session, slug string) (*ProjectState, error)
	ListSchemes(ctx context.Context, session *Session, slug string) ([]string, error)

	StartTraining(ctx context.Context, session *Session, slug string, request TrainingRequest) error
	StopTraining(ctx context.Context, session *Session, slug string) error
	GetJobState(ctx context.Context, session *Session, slug string) (*JobState, error)

	// Ping never fails; an unreachable service results in Available being false.
	Ping(ctx context.Context) PingResult
}
