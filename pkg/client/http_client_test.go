package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/activetigger/atstress/internal/common/stresserrors"
)

var session = &Session{Username: "alice", Token: "secret"}

func newTestClient(t *testing.T, handler http.HandlerFunc) *HttpClient {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c, err := NewHttpClient(&ApiConnectionDetails{Url: server.URL + "/", RequestTimeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func writeJson(t *testing.T, w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestNewHttpClient_InvalidUrl(t *testing.T) {
	_, err := NewHttpClient(&ApiConnectionDetails{})
	var invalid *stresserrors.ErrInvalidArgument
	assert.ErrorAs(t, err, &invalid)
}

func TestAuthenticate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("password") != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJson(t, w, map[string]string{"access_token": "tok-" + r.PostForm.Get("username")})
	})

	s, err := c.Authenticate(context.Background(), "bob", "pw")
	require.NoError(t, err)
	assert.Equal(t, &Session{Username: "bob", Token: "tok-bob"}, s)

	_, err = c.Authenticate(context.Background(), "bob", "wrong")
	var unauthenticated *stresserrors.ErrUnauthenticated
	require.ErrorAs(t, err, &unauthenticated)
	assert.Equal(t, "bob", unauthenticated.Username)
}

func TestAuthenticate_NoToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJson(t, w, map[string]string{})
	})
	_, err := c.Authenticate(context.Background(), "bob", "pw")
	var unauthenticated *stresserrors.ErrUnauthenticated
	assert.ErrorAs(t, err, &unauthenticated)
}

func TestCreateUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/create", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "alice", r.Header.Get("username"))
		q := r.URL.Query()
		assert.Equal(t, "stress0-1234abcd", q.Get("username_to_create"))
		assert.Equal(t, "Stresstest1!", q.Get("password"))
		assert.Equal(t, "manager", q.Get("status"))
		assert.Equal(t, "stress0-1234abcd@test.local", q.Get("mail"))
	})
	err := c.CreateUser(context.Background(), session, NewUser{
		Username: "stress0-1234abcd",
		Password: "Stresstest1!",
		Mail:     "stress0-1234abcd@test.local",
		Role:     RoleManager,
	})
	assert.NoError(t, err)
}

func TestCreateProject(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects/new", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var form projectForm
		require.NoError(t, json.NewDecoder(r.Body).Decode(&form))
		assert.Equal(t, "stress-1", form.Name)
		assert.Equal(t, "id", form.ColId)
		assert.Equal(t, []string{"text"}, form.ColsText)
		assert.Equal(t, []string{"label"}, form.ColsLabel)
		assert.Equal(t, []string{}, form.ColsCtx)
		assert.Equal(t, 500, form.TrainSize)
		assert.True(t, form.ForceLabel)
		assert.Equal(t, "data.csv", form.Filename)
		writeJson(t, w, "stress-1")
	})
	slug, err := c.CreateProject(context.Background(), session, &ProjectRequest{
		Name:       "stress-1",
		Csv:        "id,text,label\n1,a,x\n",
		Columns:    Columns{Id: "id", Text: []string{"text"}, Label: "label"},
		TrainSize:  500,
		TestSize:   50,
		Language:   "fr",
		ForceLabel: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "stress-1", slug)
}

func TestListProjectsAndState(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/projects":
			writeJson(t, w, map[string]interface{}{
				"projects": []map[string]interface{}{
					{"params": map[string]interface{}{"project_slug": "a"}},
					{"params": map[string]interface{}{"project_slug": "b"}},
				},
			})
		case "/projects/a":
			writeJson(t, w, map[string]interface{}{
				"params": map[string]interface{}{"project_slug": "a", "n_train": 500},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	slugs, err := c.ListProjects(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true, "b": true}, slugs)

	state, err := c.GetProjectState(context.Background(), session, "a")
	require.NoError(t, err)
	assert.Equal(t, 500, state.Params.TrainSize)

	_, err = c.GetProjectState(context.Background(), session, "c")
	assert.True(t, stresserrors.IsNotFound(err))
}

func TestTraining(t *testing.T) {
	var (
		mu      sync.Mutex
		started TrainingRequest
		stopped bool
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "p", r.URL.Query().Get("project_slug"))
		switch r.URL.Path {
		case "/schemes":
			writeJson(t, w, map[string]interface{}{"available": []string{"default", "other"}})
		case "/models/bert/train":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&started))
		case "/models/bert/stop":
			stopped = true
		case "/models":
			writeJson(t, w, map[string]interface{}{
				"available": map[string]interface{}{},
				"training":  map[string]interface{}{"stress-model-0": map[string]interface{}{}},
			})
		}
	})
	ctx := context.Background()

	schemes, err := c.ListSchemes(ctx, session, "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "other"}, schemes)

	request := TrainingRequest{Scheme: "default", Name: "stress-model-0", BaseModel: "camembert/camembert-base"}
	require.NoError(t, c.StartTraining(ctx, session, "p", request))
	mu.Lock()
	assert.Equal(t, request, started)
	mu.Unlock()

	state, err := c.GetJobState(ctx, session, "p")
	require.NoError(t, err)
	assert.True(t, state.IsTraining())
	assert.Equal(t, []string{"stress-model-0"}, state.TrainingNames())

	require.NoError(t, c.StopTraining(ctx, session, "p"))
	mu.Lock()
	assert.True(t, stopped)
	mu.Unlock()
}

func TestStatusErrors(t *testing.T) {
	tests := map[string]struct {
		status int
		check  func(t *testing.T, err error)
	}{
		"unauthorized": {http.StatusUnauthorized, func(t *testing.T, err error) {
			var e *stresserrors.ErrUnauthenticated
			require.ErrorAs(t, err, &e)
			assert.Equal(t, "alice", e.Username)
		}},
		"forbidden": {http.StatusForbidden, func(t *testing.T, err error) {
			var e *stresserrors.ErrUnauthenticated
			assert.ErrorAs(t, err, &e)
		}},
		"not found": {http.StatusNotFound, func(t *testing.T, err error) {
			assert.True(t, stresserrors.IsNotFound(err))
		}},
		"server error": {http.StatusInternalServerError, func(t *testing.T, err error) {
			var e *stresserrors.ErrUnexpectedStatus
			require.ErrorAs(t, err, &e)
			assert.Equal(t, http.StatusInternalServerError, e.StatusCode)
			assert.Equal(t, "/projects/delete", e.Path)
			assert.Equal(t, "boom", e.Body)
		}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte("boom\n"))
			})
			tc.check(t, c.DeleteProject(context.Background(), session, "p"))
		})
	}
}

func TestUsers(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.URL.Path+"?"+r.URL.RawQuery)
		mu.Unlock()
		if r.URL.Path == "/users" {
			writeJson(t, w, map[string]interface{}{"users": map[string]interface{}{
				"carol": map[string]string{},
				"bob":   map[string]string{},
				"alice": map[string]string{},
			}})
		}
	})
	ctx := context.Background()

	users, err := c.ListUsers(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, users)
	require.NoError(t, c.AddUserToProject(ctx, session, "bob", "p", RoleAnnotator))
	require.NoError(t, c.RemoveUserFromProject(ctx, session, "bob", "p"))
	require.NoError(t, c.DeleteUser(ctx, session, "bob"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"/users?",
		"/users/auth/add?project_slug=p&status=annotator&username=bob",
		"/users/auth/delete?project_slug=p&username=bob",
		"/users/delete?user_to_delete=bob",
	}, calls)
}

func TestPing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/server", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	result := c.Ping(context.Background())
	assert.True(t, result.Available)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.False(t, result.Timestamp.IsZero())
}

func TestPing_Unavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()
	c, err := NewHttpClient(&ApiConnectionDetails{Url: server.URL})
	require.NoError(t, err)

	result := c.Ping(context.Background())
	assert.False(t, result.Available)
	assert.Equal(t, 0, result.StatusCode)
}

func TestParseRole(t *testing.T) {
	tests := map[string]struct {
		input   string
		want    Role
		wantErr bool
	}{
		"manager":   {"manager", RoleManager, false},
		"uppercase": {" Annotator ", RoleAnnotator, false},
		"root":      {"root", RoleRoot, false},
		"invalid":   {"admin", "", true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			role, err := ParseRole(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, role)
		})
	}
}
