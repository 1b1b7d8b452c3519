package auth

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dreamware/relay/internal/logging"
)

// Verifier turns a session parameter into an authenticated user address.
type Verifier struct {
	Clock         Clock
	Authenticator Authenticator
	Logger        *zap.Logger
}

// NewVerifier returns a Verifier. Nil arguments select SystemClock and
// SelfAuthenticator.
func NewVerifier(clock Clock, authn Authenticator, log *zap.Logger) *Verifier {
	if clock == nil {
		clock = SystemClock{}
	}
	if authn == nil {
		authn = SelfAuthenticator{}
	}
	return &Verifier{Clock: clock, Authenticator: authn, Logger: logging.OrNop(log)}
}

// Verify checks, in order: the session decodes, signedAt lies inside the
// acceptance window, the signature recovers to the session address (when one
// is named), and the Authenticator lets that signer act for the user.
// It returns the lowercase user address.
func (v *Verifier) Verify(ctx context.Context, raw string) (string, error) {
	sess, data, err := ParseSession(raw)
	if err != nil {
		return "", err
	}

	now, err := v.Clock.Now(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: clock: %v", ErrUnavailable, err)
	}
	if err := CheckWindow(now, data.SignedAt); err != nil {
		return "", err
	}

	signer, err := RecoverSigner(sess.SignedSessionData, sess.Signature)
	if err != nil {
		return "", err
	}
	if data.SessionAddress != "" && signer != data.SessionAddress {
		return "", fmt.Errorf("%w: recovered %s, session names %s", ErrSignature, signer, data.SessionAddress)
	}

	if err := v.Authenticator.Authorize(ctx, signer, data.UserAddress); err != nil {
		return "", err
	}
	v.Logger.Debug("session verified", zap.String("user", data.UserAddress), zap.String("signer", signer))
	return data.UserAddress, nil
}
