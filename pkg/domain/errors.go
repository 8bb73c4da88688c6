package domain

import "errors"

// ErrMalformedToken is returned when a token is empty or otherwise unusable as a key.
var ErrMalformedToken = errors.New("malformed token")

// ErrSessionNotFound is returned when a token is unknown locally and on every reachable peer.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExpired is returned when a token exceeded the inactivity window.
var ErrSessionExpired = errors.New("session expired")

// ErrLoginFailed is returned by authenticators when the portal rejected the credentials.
var ErrLoginFailed = errors.New("login failed")

// ErrHandleUnusable is returned when a handle can no longer talk to the portal.
var ErrHandleUnusable = errors.New("handle is no longer usable")

// ErrPeerUnavailable wraps transport failures while querying a sibling instance.
var ErrPeerUnavailable = errors.New("peer unavailable")
