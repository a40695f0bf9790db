package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/activetigger/atstress/internal/common/stresserrors"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxErrorBodyLength    = 512
)

// HttpClient implements Api against the service's REST endpoints.
type HttpClient struct {
	baseUrl    *url.URL
	httpClient *http.Client
}

func NewHttpClient(details *ApiConnectionDetails) (*HttpClient, error) {
	if details.Url == "" {
		return nil, errors.WithStack(&stresserrors.ErrInvalidArgument{
			Name:    "url",
			Value:   details.Url,
			Message: "the service url must be set",
		})
	}
	baseUrl, err := url.Parse(strings.TrimRight(details.Url, "/"))
	if err != nil {
		return nil, errors.WithStack(&stresserrors.ErrInvalidArgument{
			Name:    "url",
			Value:   details.Url,
			Message: err.Error(),
		})
	}
	timeout := details.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if details.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &HttpClient{
		baseUrl:    baseUrl,
		httpClient: &http.Client{Transport: transport, Timeout: timeout},
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

func (c *HttpClient) Authenticate(ctx context.Context, username, password string) (*Session, error) {
	form := url.Values{"username": {username}, "password": {password}}
	req, err := c.newRequest(ctx, http.MethodPost, "/token", nil, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var token tokenResponse
	if err := c.do(req, &token); err != nil {
		var unexpected *stresserrors.ErrUnexpectedStatus
		if errors.As(err, &unexpected) && unexpected.StatusCode == http.StatusBadRequest {
			return nil, errors.WithStack(&stresserrors.ErrUnauthenticated{Username: username, Message: unexpected.Body})
		}
		var unauthenticated *stresserrors.ErrUnauthenticated
		if errors.As(err, &unauthenticated) {
			unauthenticated.Username = username
		}
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, errors.WithStack(&stresserrors.ErrUnauthenticated{Username: username, Message: "no access token in response"})
	}
	return &Session{Username: username, Token: token.AccessToken}, nil
}

func (c *HttpClient) CreateUser(ctx context.Context, admin *Session, user NewUser) error {
	query := url.Values{
		"username_to_create": {user.Username},
		"password":           {user.Password},
		"status":             {string(user.Role)},
		"mail":               {user.Mail},
	}
	return c.call(ctx, admin, http.MethodPost, "/users/create", query, nil, nil)
}

func (c *HttpClient) DeleteUser(ctx context.Context, admin *Session, username string) error {
	return c.call(ctx, admin, http.MethodPost, "/users/delete", url.Values{"user_to_delete": {username}}, nil, nil)
}

type usersResponse struct {
	Users map[string]json.RawMessage `json:"users"`
}

func (c *HttpClient) ListUsers(ctx context.Context, admin *Session) ([]string, error) {
	var response usersResponse
	if err := c.call(ctx, admin, http.MethodGet, "/users", nil, nil, &response); err != nil {
		return nil, err
	}
	users := maps.Keys(response.Users)
	slices.Sort(users)
	return users, nil
}

func (c *HttpClient) AddUserToProject(ctx context.Context, admin *Session, username, slug string, role Role) error {
	query := url.Values{"username": {username}, "project_slug": {slug}, "status": {string(role)}}
	return c.call(ctx, admin, http.MethodPost, "/users/auth/add", query, nil, nil)
}

func (c *HttpClient) RemoveUserFromProject(ctx context.Context, admin *Session, username, slug string) error {
	query := url.Values{"username": {username}, "project_slug": {slug}}
	return c.call(ctx, admin, http.MethodPost, "/users/auth/delete", query, nil, nil)
}

type projectForm struct {
	Name       string   `json:"project_name"`
	Filename   string   `json:"filename"`
	Csv        string   `json:"csv"`
	Language   string   `json:"language"`
	TrainSize  int      `json:"n_train"`
	TestSize   int      `json:"n_test"`
	ForceLabel bool     `json:"force_label"`
	ColId      string   `json:"col_id"`
	ColsText   []string `json:"cols_text"`
	ColLabel   string   `json:"col_label,omitempty"`
	ColsLabel  []string `json:"cols_label,omitempty"`
	ColsCtx    []string `json:"cols_context"`
}

func (c *HttpClient) CreateProject(ctx context.Context, session *Session, request *ProjectRequest) (string, error) {
	form := projectForm{
		Name:       request.Name,
		Filename:   request.Filename,
		Csv:        request.Csv,
		Language:   request.Language,
		TrainSize:  request.TrainSize,
		TestSize:   request.TestSize,
		ForceLabel: request.ForceLabel,
		ColId:      request.Columns.Id,
		ColsText:   request.Columns.Text,
		ColLabel:   request.Columns.Label,
		ColsCtx:    request.Columns.Context,
	}
	if form.Filename == "" {
		form.Filename = "data.csv"
	}
	if form.ColsCtx == nil {
		form.ColsCtx = []string{}
	}
	if request.Columns.Label != "" {
		form.ColsLabel = []string{request.Columns.Label}
	}
	var slug string
	if err := c.call(ctx, session, http.MethodPost, "/projects/new", nil, form, &slug); err != nil {
		return "", err
	}
	return slug, nil
}

func (c *HttpClient) DeleteProject(ctx context.Context, session *Session, slug string) error {
	return c.call(ctx, session, http.MethodPost, "/projects/delete", url.Values{"project_slug": {slug}}, nil, nil)
}

type projectsResponse struct {
	Projects []ProjectState `json:"projects"`
}

func (c *HttpClient) ListProjects(ctx context.Context, session *Session) (map[string]bool, error) {
	var response projectsResponse
	if err := c.call(ctx, session, http.MethodGet, "/projects", nil, nil, &response); err != nil {
		return nil, err
	}
	slugs := make(map[string]bool, len(response.Projects))
	for _, p := range response.Projects {
		slugs[p.Params.Slug] = true
	}
	return slugs, nil
}

func (c *HttpClient) GetProjectState(ctx context.Context, session *Session, slug string) (*ProjectState, error) {
	state := &ProjectState{}
	if err := c.call(ctx, session, http.MethodGet, "/projects/"+url.PathEscape(slug), nil, nil, state); err != nil {
		return nil, err
	}
	return state, nil
}

type schemesResponse struct {
	Available []string `json:"available"`
}

func (c *HttpClient) ListSchemes(ctx context.Context, session *Session, slug string) ([]string, error) {
	var response schemesResponse
	if err := c.call(ctx, session, http.MethodGet, "/schemes", url.Values{"project_slug": {slug}}, nil, &response); err != nil {
		return nil, err
	}
	return response.Available, nil
}

func (c *HttpClient) StartTraining(ctx context.Context, session *Session, slug string, request TrainingRequest) error {
	return c.call(ctx, session, http.MethodPost, "/models/bert/train", url.Values{"project_slug": {slug}}, request, nil)
}

func (c *HttpClient) StopTraining(ctx context.Context, session *Session, slug string) error {
	return c.call(ctx, session, http.MethodPost, "/models/bert/stop", url.Values{"project_slug": {slug}}, nil, nil)
}

func (c *HttpClient) GetJobState(ctx context.Context, session *Session, slug string) (*JobState, error) {
	state := &JobState{}
	if err := c.call(ctx, session, http.MethodGet, "/models", url.Values{"project_slug": {slug}}, nil, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (c *HttpClient) Ping(ctx context.Context) PingResult {
	result := PingResult{Timestamp: time.Now()}
	req, err := c.newRequest(ctx, http.MethodGet, "/server", nil, nil)
	if err != nil {
		return result
	}
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	result.RoundTrip = time.Since(start)
	if err != nil {
		return result
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	result.StatusCode = resp.StatusCode
	result.Available = resp.StatusCode >= 200 && resp.StatusCode < 300
	return result
}

func (c *HttpClient) call(
	ctx context.Context,
	session *Session,
	method, path string,
	query url.Values,
	body interface{},
	out interface{},
) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.WithStack(err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := c.newRequest(ctx, method, path, query, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != nil {
		req.Header.Set("Authorization", "Bearer "+session.Token)
		req.Header.Set("username", session.Username)
	}
	return c.do(req, out)
}

func (c *HttpClient) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := *c.baseUrl
	u.Path = c.baseUrl.Path + path
	u.RawQuery = query.Encode()
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *HttpClient) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(req, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decoding response of %s %s", req.Method, req.URL.Path)
	}
	return nil
}

func statusError(req *http.Request, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength))
	message := strings.TrimSpace(string(body))
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.WithStack(&stresserrors.ErrUnauthenticated{
			Username: req.Header.Get("username"),
			Message:  message,
		})
	case http.StatusNotFound:
		return errors.WithStack(&stresserrors.ErrNotFound{
			Value:   req.URL.Path,
			Message: message,
		})
	default:
		return errors.WithStack(&stresserrors.ErrUnexpectedStatus{
			Method:     req.Method,
			Path:       req.URL.Path,
			StatusCode: resp.StatusCode,
			Body:       message,
		})
	}
}
