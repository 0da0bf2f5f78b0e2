package service

import "errors"

// Typed conditions returned to the HTTP layer. Handlers map these to stable
// status codes with errors.Is; nothing here is thrown as an opaque failure.
var (
	// ErrSessionNotFound: no record for the tenant in the registry.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNotConnected: action attempted without a live, paired handle.
	ErrNotConnected = errors.New("session is not connected")

	// ErrTimeout: the automation call exceeded its bound. The outcome is
	// unknown; callers must not blindly retry destructive actions.
	ErrTimeout = errors.New("automation call timed out")

	// ErrPairingFailed: terminal pairing-layer rejection.
	ErrPairingFailed = errors.New("pairing failed")

	// ErrRecipientNotFound: the destination number is not registered on the
	// messaging network, so a send would silently vanish.
	ErrRecipientNotFound = errors.New("recipient is not registered")

	// ErrAlreadyConnected: redundant initialize while connected. Callers
	// treat this as success.
	ErrAlreadyConnected = errors.New("session already connected")

	// ErrNeedsReconnect: the persisted record claims an active connection
	// but no live handle exists (typically after a process restart).
	ErrNeedsReconnect = errors.New("stored connection is stale, re-pairing required")

	// ErrSyncInProgress is informational: a second sync request while one
	// is running is a no-op.
	ErrSyncInProgress = errors.New("sync already in progress")
)
