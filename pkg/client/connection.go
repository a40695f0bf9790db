package client

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

type ApiConnectionDetails struct {
	Url                string
	Username           string
	Password           string
	InsecureSkipVerify bool
	RequestTimeout     time.Duration
}

// Login authenticates with the credentials of details.
func Login(ctx context.Context, api Api, details *ApiConnectionDetails) (*Session, error) {
	session, err := api.Authenticate(ctx, details.Username, details.Password)
	if err != nil {
		return nil, errors.WithMessagef(err, "authentication failed for %s at %s", details.Username, details.Url)
	}
	return session, nil
}
