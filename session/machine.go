package session

import (
	"errors"
	"time"

	"github.com/MrEthical07/goSubmit/credential"
)

var (
	// ErrBadSequence is returned when a command is issued outside its legal
	// source states.
	ErrBadSequence = errors.New("bad sequence of commands")
	// ErrTooManyRecipients is returned when RCPT would exceed the maximum.
	ErrTooManyRecipients = errors.New("too many recipients")
	// ErrNoRecipients is returned when DATA is issued with an empty
	// recipient list.
	ErrNoRecipients = errors.New("no recipients")
	// ErrAuthRequired is returned when MAIL is issued before AUTH and the
	// machine requires authentication.
	ErrAuthRequired = errors.New("authentication required")
)

const (
	DefaultMaxRecipients = 100
	DefaultHistoryLimit  = 32
)

// Machine applies commands to sessions. It holds configuration only and is
// safe for concurrent use across different sessions.
//
// Every method validates first and mutates second: a non-nil error means
// the session was not touched.
type Machine struct {
	MaxRecipients int
	HistoryLimit  int
	RequireAuth   bool
}

// NewMachine returns a Machine with default limits.
func NewMachine() Machine {
	return Machine{
		MaxRecipients: DefaultMaxRecipients,
		HistoryLimit:  DefaultHistoryLimit,
		RequireAuth:   true,
	}
}

func (m Machine) maxRecipients() int {
	if m.MaxRecipients <= 0 {
		return DefaultMaxRecipients
	}
	return m.MaxRecipients
}

func (m Machine) historyLimit() int {
	if m.HistoryLimit <= 0 {
		return DefaultHistoryLimit
	}
	return m.HistoryLimit
}

// Greet moves the session from Init to Greeted and records the client's
// announced hostname.
func (m Machine) Greet(s *Session, hostname string, now time.Time) error {
	if !Allowed(CmdGreet, s.State) {
		return ErrBadSequence
	}
	s.Meta.Hostname = hostname
	m.transition(s, CmdGreet, Greeted, now)
	return nil
}

// CanAuthenticate reports whether AUTH is legal in the session's current
// state. Callers check it before running the credential pipeline.
func (m Machine) CanAuthenticate(s *Session) error {
	if !Allowed(CmdAuth, s.State) {
		return ErrBadSequence
	}
	return nil
}

// Authenticate records a verified identity and moves to Authenticated.
func (m Machine) Authenticate(s *Session, id credential.Identity, now time.Time) error {
	if err := m.CanAuthenticate(s); err != nil {
		return err
	}
	s.Identity = &id
	s.Authenticated = true
	s.AuthenticatedAt = now
	m.transition(s, CmdAuth, Authenticated, now)
	return nil
}

// SetSender opens a new transaction. Transaction fields left over from a
// completed message are cleared; identity and metadata are kept.
func (m Machine) SetSender(s *Session, from string, now time.Time) error {
	if !Allowed(CmdMail, s.State) {
		return ErrBadSequence
	}
	if m.RequireAuth && !s.Authenticated {
		return ErrAuthRequired
	}
	addr, err := NormalizeAddress(from)
	if err != nil {
		return err
	}
	s.clearTransaction()
	s.Sender = addr
	s.SenderSetAt = now
	m.transition(s, CmdMail, SenderSet, now)
	return nil
}

// AddRecipient appends a recipient. The first one moves the session to
// RecipientsSet; later ones leave the state and history alone.
func (m Machine) AddRecipient(s *Session, to string, now time.Time) error {
	if !Allowed(CmdRcpt, s.State) {
		return ErrBadSequence
	}
	if len(s.Recipients) >= m.maxRecipients() {
		return ErrTooManyRecipients
	}
	addr, err := NormalizeAddress(to)
	if err != nil {
		return err
	}
	s.Recipients = append(s.Recipients, Recipient{Address: addr, AddedAt: now})
	if s.State == RecipientsSet {
		s.LastActivity = now
		return nil
	}
	m.transition(s, CmdRcpt, RecipientsSet, now)
	return nil
}

// StartData moves the session to Receiving.
func (m Machine) StartData(s *Session, now time.Time) error {
	if !Allowed(CmdData, s.State) {
		return ErrBadSequence
	}
	if len(s.Recipients) == 0 {
		return ErrNoRecipients
	}
	s.DataStartedAt = now
	m.transition(s, CmdData, Receiving, now)
	return nil
}

// CompleteData records the submitted message reference and moves to
// Completed.
func (m Machine) CompleteData(s *Session, ref string, now time.Time) error {
	if !Allowed(CmdDataEnd, s.State) {
		return ErrBadSequence
	}
	s.MessageRef = ref
	s.MessageCount++
	s.CompletedAt = now
	m.transition(s, CmdDataEnd, Completed, now)
	return nil
}

// Reset aborts any open transaction and returns to the resting state:
// Authenticated when the session carries an identity, Greeted otherwise.
func (m Machine) Reset(s *Session, now time.Time) error {
	if !Allowed(CmdReset, s.State) {
		return ErrBadSequence
	}
	s.clearTransaction()
	target := Greeted
	if s.Authenticated {
		target = Authenticated
	}
	if s.State == target {
		s.LastActivity = now
		return nil
	}
	m.transition(s, CmdReset, target, now)
	return nil
}

// transition appends a history entry, trims history to the limit and
// refreshes LastActivity. Entry timestamps are forced strictly increasing
// so a coarse or stepped clock cannot produce ties.
func (m Machine) transition(s *Session, cmd Command, to State, now time.Time) {
	at := now
	if n := len(s.History); n > 0 {
		if last := s.History[n-1].At; !at.After(last) {
			at = last.Add(time.Nanosecond)
		}
	}
	s.History = append(s.History, Transition{From: s.State, To: to, At: at, Command: cmd})
	if limit := m.historyLimit(); len(s.History) > limit {
		s.History = append(s.History[:0:0], s.History[len(s.History)-limit:]...)
	}
	s.State = to
	s.LastActivity = now
}
