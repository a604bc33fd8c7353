package session

import (
	"time"

	"github.com/MrEthical07/goSubmit/credential"
)

// Meta is the connection metadata supplied by the transport on connect.
type Meta struct {
	RemoteAddr string
	LocalAddr  string
	Hostname   string
	TLS        bool
}

// Recipient is one accepted RCPT TO address.
type Recipient struct {
	Address string
	AddedAt time.Time
}

// Transition is one entry of a session's diagnostic history.
type Transition struct {
	From    State
	To      State
	At      time.Time
	Command Command
}

// Session is the full per-connection record.
//
// Authenticated is true exactly when Identity is non-nil. Recipients never
// exceeds the machine's configured maximum. History timestamps are strictly
// increasing.
type Session struct {
	ID    string
	State State
	Meta  Meta

	CreatedAt       time.Time
	LastActivity    time.Time
	AuthenticatedAt time.Time
	SenderSetAt     time.Time
	DataStartedAt   time.Time
	CompletedAt     time.Time

	Identity      *credential.Identity
	Authenticated bool

	Sender       string
	Recipients   []Recipient
	MessageRef   string
	MessageCount int

	History []Transition
}

// New returns a session in [Init] created at now.
func New(id string, meta Meta, now time.Time) *Session {
	return &Session{
		ID:           id,
		State:        Init,
		Meta:         meta,
		CreatedAt:    now,
		LastActivity: now,
	}
}

// Clone returns a deep copy. Stores use it so callers never share slices
// with the stored record.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Identity != nil {
		id := *s.Identity
		out.Identity = &id
	}
	if s.Recipients != nil {
		out.Recipients = append([]Recipient(nil), s.Recipients...)
	}
	if s.History != nil {
		out.History = append([]Transition(nil), s.History...)
	}
	return &out
}

// RecipientAddresses returns the recipient addresses in the order they
// were accepted.
func (s *Session) RecipientAddresses() []string {
	out := make([]string, len(s.Recipients))
	for i, r := range s.Recipients {
		out[i] = r.Address
	}
	return out
}

// IdleFor reports how long the session has been inactive at now.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivity)
}

func (s *Session) clearTransaction() {
	s.Sender = ""
	s.Recipients = nil
	s.MessageRef = ""
	s.SenderSetAt = time.Time{}
	s.DataStartedAt = time.Time{}
}
