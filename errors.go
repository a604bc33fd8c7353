package goSubmit

import "errors"

var (
	// ErrSessionNotFound is returned for commands on an unknown session ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned by Connect for a duplicate session ID.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionStoreUnavailable wraps session store failures.
	ErrSessionStoreUnavailable = errors.New("session store unavailable")
	// ErrEngineNotReady is returned by methods on a nil Engine, and by
	// Connect and the session commands once Close has run. Disconnect keeps
	// working so open connections can release their sessions.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrCredentialStoreRequired is returned by Build without a credential store.
	ErrCredentialStoreRequired = errors.New("credential store required")
	// ErrBuilderUsed is returned by a second call to Build.
	ErrBuilderUsed = errors.New("builder already used")
)
