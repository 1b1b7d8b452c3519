// Package auth validates the signed session descriptor a client presents
// when it connects.
//
// A session is JSON of the form
//
//	{"signature":"0x...","signedSessionData":"{\"userAddress\":\"0x...\",\"sessionAddress\":\"0x...\",\"signedAt\":1700000000000}"}
//
// where signature is an EIP-191 personal_sign over the exact
// signedSessionData string. A session is accepted when signedAt is no more
// than 15s old and less than 10s ahead of the reference clock, the signer
// recovers to sessionAddress, and the configured Authenticator lets that
// signer act for userAddress.
//
// Decoding failures return ErrMalformedSession. Every other rejection wraps
// ErrAuth.
package auth
