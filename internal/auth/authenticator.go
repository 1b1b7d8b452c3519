package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dreamware/relay/internal/cluster"
)

// Authenticator decides whether a recovered signer may act for a user.
type Authenticator interface {
	Authorize(ctx context.Context, signer, user string) error
}

// SelfAuthenticator accepts only sessions signed by the user's own key.
type SelfAuthenticator struct{}

func (SelfAuthenticator) Authorize(_ context.Context, signer, user string) error {
	if signer != user {
		return fmt.Errorf("%w: %s signed for %s", ErrUnauthorized, signer, user)
	}
	return nil
}

// DelegationRequest is the body posted to a delegation service.
type DelegationRequest struct {
	Signer string `json:"signer"`
	User   string `json:"user"`
}

// DelegationResponse is the delegation service's verdict.
type DelegationResponse struct {
	Authorized bool `json:"authorized"`
}

// HTTPAuthenticator asks an external delegation service whether signer holds
// a delegation from user. A signer acting for itself is accepted without a
// lookup.
type HTTPAuthenticator struct {
	URL   string
	Token string

	// Timeout bounds each lookup. Zero leaves only the context deadline.
	Timeout time.Duration
}

func (a HTTPAuthenticator) Authorize(ctx context.Context, signer, user string) error {
	if signer == user {
		return nil
	}
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	header := http.Header{}
	if a.Token != "" {
		header.Set("Authorization", "Bearer "+a.Token)
	}
	var resp DelegationResponse
	if err := cluster.PostJSON(ctx, a.URL, header, DelegationRequest{Signer: signer, User: user}, &resp); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !resp.Authorized {
		return fmt.Errorf("%w: %s has no delegation from %s", ErrUnauthorized, signer, user)
	}
	return nil
}
