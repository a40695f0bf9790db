package stresserrors

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestPredicates(t *testing.T) {
	tests := map[string]struct {
		err            error
		timeout        bool
		notFound       bool
		creationFailed bool
	}{
		"ErrTimeout":                  {&ErrTimeout{}, true, false, false},
		"ErrNotFound":                 {&ErrNotFound{}, false, true, false},
		"ErrCreationFailed":           {&ErrCreationFailed{}, false, false, true},
		"pkg.Error => ErrTimeout":     {errors.WithMessage(&ErrTimeout{}, "foo"), true, false, false},
		"pkg.Error => ErrNotFound":    {errors.WithStack(&ErrNotFound{}), false, true, false},
		"creation caused by notfound": {&ErrCreationFailed{Cause: &ErrNotFound{}}, false, true, true},
		"pkg.Error":                   {errors.New("foo"), false, false, false},
		"nil":                         {nil, false, false, false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.timeout, IsTimeout(tc.err))
			assert.Equal(t, tc.notFound, IsNotFound(tc.err))
			assert.Equal(t, tc.creationFailed, IsCreationFailed(tc.err))
		})
	}
}

func TestMessages(t *testing.T) {
	tests := map[string]struct {
		err  error
		want string
	}{
		"timeout": {
			&ErrTimeout{Awaiting: "project p to become visible", Timeout: time.Minute, Elapsed: 63 * time.Second},
			"timed out after 1m3s waiting for project p to become visible (timeout 1m0s)",
		},
		"creation without cause": {
			&ErrCreationFailed{Type: "project", Name: "p"},
			`failed to create project "p"`,
		},
		"creation with cause": {
			&ErrCreationFailed{Type: "account", Name: "u", Cause: errors.New("rejected")},
			`failed to create account "u": rejected`,
		},
		"not found with type": {
			&ErrNotFound{Type: "scheme", Value: "p", Message: "no schemes defined"},
			`resource "p" of type "scheme" does not exist; no schemes defined`,
		},
		"invalid argument": {
			&ErrInvalidArgument{Name: "pollInterval", Value: "0s", Message: "must be positive"},
			`value "0s" is invalid for field "pollInterval"; must be positive`,
		},
		"unauthenticated": {
			&ErrUnauthenticated{Username: "bob"},
			`authentication failed for user "bob"`,
		},
		"unexpected status": {
			&ErrUnexpectedStatus{Method: "POST", Path: "/projects/new", StatusCode: 500, Body: "oops"},
			"POST /projects/new returned status 500: oops",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}
