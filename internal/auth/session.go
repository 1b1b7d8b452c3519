package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrMalformedSession is a protocol error: the session parameter could
	// not be decoded. It does not wrap ErrAuth.
	ErrMalformedSession = errors.New("malformed session")

	// ErrAuth is wrapped by every rejection of a well-formed session.
	ErrAuth = errors.New("session rejected")

	ErrExpired      = fmt.Errorf("%w: expired", ErrAuth)
	ErrFuture       = fmt.Errorf("%w: signed in the future", ErrAuth)
	ErrSignature    = fmt.Errorf("%w: bad signature", ErrAuth)
	ErrUnauthorized = fmt.Errorf("%w: signer not authorized for user", ErrAuth)
	ErrUnavailable  = fmt.Errorf("%w: authenticator unavailable", ErrAuth)
)

const (
	// MaxAge is how long after signedAt a session is still accepted.
	MaxAge = 15 * time.Second

	// MaxSkew is how far ahead of the clock signedAt may be, exclusive.
	MaxSkew = 10 * time.Second
)

// Session is the value of the session connect parameter.
type Session struct {
	Signature         string `json:"signature"`
	SignedSessionData string `json:"signedSessionData"`
}

// SessionData is the payload the user's wallet signed. SignedAt is in Unix
// milliseconds.
type SessionData struct {
	UserAddress    string `json:"userAddress"`
	SessionAddress string `json:"sessionAddress,omitempty"`
	SignedAt       int64  `json:"signedAt"`
}

// ParseSession decodes the session parameter and its embedded payload.
// Addresses are returned lowercased.
func ParseSession(raw string) (Session, SessionData, error) {
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Session{}, SessionData{}, fmt.Errorf("%w: %v", ErrMalformedSession, err)
	}
	if s.Signature == "" || s.SignedSessionData == "" {
		return Session{}, SessionData{}, fmt.Errorf("%w: signature and signedSessionData are required", ErrMalformedSession)
	}

	var d SessionData
	if err := json.Unmarshal([]byte(s.SignedSessionData), &d); err != nil {
		return Session{}, SessionData{}, fmt.Errorf("%w: signedSessionData: %v", ErrMalformedSession, err)
	}
	if !common.IsHexAddress(d.UserAddress) {
		return Session{}, SessionData{}, fmt.Errorf("%w: userAddress %q", ErrMalformedSession, d.UserAddress)
	}
	if d.SessionAddress != "" && !common.IsHexAddress(d.SessionAddress) {
		return Session{}, SessionData{}, fmt.Errorf("%w: sessionAddress %q", ErrMalformedSession, d.SessionAddress)
	}
	if d.SignedAt <= 0 {
		return Session{}, SessionData{}, fmt.Errorf("%w: signedAt missing", ErrMalformedSession)
	}
	d.UserAddress = NormalizeAddress(d.UserAddress)
	if d.SessionAddress != "" {
		d.SessionAddress = NormalizeAddress(d.SessionAddress)
	}
	return s, d, nil
}

// CheckWindow accepts signedAt (Unix ms) when now - signedAt lies in
// (-MaxSkew, MaxAge].
func CheckWindow(now time.Time, signedAt int64) error {
	age := time.Duration(now.UnixMilli()-signedAt) * time.Millisecond
	if age > MaxAge {
		return fmt.Errorf("%w (age %s)", ErrExpired, age)
	}
	if -age >= MaxSkew {
		return fmt.Errorf("%w (ahead by %s)", ErrFuture, -age)
	}
	return nil
}

// NormalizeAddress returns the lowercase 0x-prefixed form of a hex address.
func NormalizeAddress(addr string) string {
	return strings.ToLower(common.HexToAddress(addr).Hex())
}
