package goSubmit

import "sync"

// secretVault holds the raw credential secret for each authenticated
// session, in process memory only. The submitter needs it to act on the
// client's behalf; nothing persists it.
type secretVault struct {
	mu      sync.Mutex
	secrets map[string]string
}

func newSecretVault() *secretVault {
	return &secretVault{secrets: make(map[string]string)}
}

func (v *secretVault) put(sessionID, secret string) {
	v.mu.Lock()
	v.secrets[sessionID] = secret
	v.mu.Unlock()
}

func (v *secretVault) get(sessionID string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.secrets[sessionID]
	return s, ok
}

func (v *secretVault) drop(sessionID string) {
	v.mu.Lock()
	delete(v.secrets, sessionID)
	v.mu.Unlock()
}

func (v *secretVault) len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.secrets)
}
