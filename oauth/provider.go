// Package oauth implements the authorization-code exchange against the
// external identity providers. Each provider variant shares the same
// capability surface; the account-linking policy lives with the caller so
// it is written exactly once.
package oauth

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	// ErrExchangeFailed: token endpoint refused the code or returned no token.
	ErrExchangeFailed = errors.New("provider token exchange failed")
	// ErrProfileIncomplete: provider returned no usable subject identifier.
	ErrProfileIncomplete = errors.New("provider profile incomplete")
)

// Profile is what the linking policy needs from a provider, nothing more.
type Profile struct {
	SubjectID   string
	Email       string
	DisplayName string
}

type Provider interface {
	Name() string
	AuthorizationURL() string
	Exchange(ctx context.Context, code string) (*Profile, error)
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
