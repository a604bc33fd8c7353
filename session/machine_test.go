package session

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/MrEthical07/goSubmit/credential"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testIdentity() credential.Identity {
	return credential.Identity{
		PrincipalID:  "inb_abcdefghijkl",
		OrgID:        "org-1",
		Address:      "sender@example.com",
		CredentialID: "cred-1",
	}
}

// authedSession drives a fresh session to Authenticated.
func authedSession(t *testing.T, m Machine) *Session {
	t.Helper()
	s := New("s-1", Meta{RemoteAddr: "192.0.2.1:5000", TLS: true}, t0)
	if err := m.Greet(s, "client.example", t0.Add(time.Second)); err != nil {
		t.Fatalf("greet: %v", err)
	}
	if err := m.Authenticate(s, testIdentity(), t0.Add(2*time.Second)); err != nil {
		t.Fatalf("auth: %v", err)
	}
	return s
}

func TestMachineHappyPath(t *testing.T) {
	m := NewMachine()
	s := authedSession(t, m)

	if !s.Authenticated || s.Identity == nil || s.Identity.PrincipalID != "inb_abcdefghijkl" {
		t.Fatalf("identity not recorded: %+v", s)
	}
	if err := m.SetSender(s, "<sender@Example.COM>", t0.Add(3*time.Second)); err != nil {
		t.Fatalf("mail: %v", err)
	}
	if s.Sender != "sender@example.com" {
		t.Fatalf("sender = %q", s.Sender)
	}
	if err := m.AddRecipient(s, "a@example.org", t0.Add(4*time.Second)); err != nil {
		t.Fatalf("rcpt: %v", err)
	}
	if err := m.StartData(s, t0.Add(5*time.Second)); err != nil {
		t.Fatalf("data: %v", err)
	}
	if err := m.CompleteData(s, "msg-1", t0.Add(6*time.Second)); err != nil {
		t.Fatalf("data end: %v", err)
	}

	if s.State != Completed || s.MessageCount != 1 || s.MessageRef != "msg-1" {
		t.Fatalf("unexpected final session: state=%s count=%d ref=%q", s.State, s.MessageCount, s.MessageRef)
	}
	want := []State{Greeted, Authenticated, SenderSet, RecipientsSet, Receiving, Completed}
	if len(s.History) != len(want) {
		t.Fatalf("history len = %d, want %d", len(s.History), len(want))
	}
	for i, h := range s.History {
		if h.To != want[i] {
			t.Fatalf("history[%d].To = %s, want %s", i, h.To, want[i])
		}
	}
	if !s.LastActivity.Equal(t0.Add(6 * time.Second)) {
		t.Fatalf("last activity not refreshed: %v", s.LastActivity)
	}
}

func TestMachineRejectsIllegalCommandsWithoutMutation(t *testing.T) {
	m := NewMachine()
	cases := []struct {
		name string
		prep func(*Session)
		run  func(*Session) error
	}{
		{"greet twice", func(s *Session) { _ = m.Greet(s, "h", t0) }, func(s *Session) error { return m.Greet(s, "h2", t0.Add(time.Minute)) }},
		{"auth before greet", func(*Session) {}, func(s *Session) error { return m.Authenticate(s, testIdentity(), t0.Add(time.Minute)) }},
		{"mail before greet", func(*Session) {}, func(s *Session) error { return m.SetSender(s, "a@b.example", t0.Add(time.Minute)) }},
		{"rcpt in greeted", func(s *Session) { _ = m.Greet(s, "h", t0) }, func(s *Session) error { return m.AddRecipient(s, "a@b.example", t0.Add(time.Minute)) }},
		{"data in greeted", func(s *Session) { _ = m.Greet(s, "h", t0) }, func(s *Session) error { return m.StartData(s, t0.Add(time.Minute)) }},
		{"data end in greeted", func(s *Session) { _ = m.Greet(s, "h", t0) }, func(s *Session) error { return m.CompleteData(s, "x", t0.Add(time.Minute)) }},
		{"reset in init", func(*Session) {}, func(s *Session) error { return m.Reset(s, t0.Add(time.Minute)) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New("s", Meta{}, t0)
			tc.prep(s)
			before := s.Clone()
			err := tc.run(s)
			if !errors.Is(err, ErrBadSequence) {
				t.Fatalf("expected ErrBadSequence, got %v", err)
			}
			if !reflect.DeepEqual(before, s) {
				t.Fatalf("session mutated on rejection:\nbefore=%+v\nafter=%+v", before, s)
			}
		})
	}
}

func TestMachineAuthenticateOnlyOnce(t *testing.T) {
	m := NewMachine()
	s := authedSession(t, m)
	if err := m.CanAuthenticate(s); !errors.Is(err, ErrBadSequence) {
		t.Fatalf("second auth should be a sequencing error, got %v", err)
	}
}

func TestMachineRequireAuthGate(t *testing.T) {
	m := NewMachine()
	s := New("s", Meta{}, t0)
	_ = m.Greet(s, "h", t0)
	if err := m.SetSender(s, "a@b.example", t0.Add(time.Second)); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
	if s.State != Greeted {
		t.Fatalf("state changed to %s", s.State)
	}

	m.RequireAuth = false
	if err := m.SetSender(s, "a@b.example", t0.Add(2*time.Second)); err != nil {
		t.Fatalf("open relay config should accept sender: %v", err)
	}
}

func TestMachineRecipientLimitAndIdempotentReentry(t *testing.T) {
	m := NewMachine()
	m.MaxRecipients = 3
	s := authedSession(t, m)
	_ = m.SetSender(s, "from@example.com", t0.Add(3*time.Second))

	for i, rcpt := range []string{"a@x.example", "b@x.example", "c@x.example"} {
		if err := m.AddRecipient(s, rcpt, t0.Add(time.Duration(4+i)*time.Second)); err != nil {
			t.Fatalf("rcpt %d: %v", i, err)
		}
	}
	if got := len(s.Recipients); got != 3 {
		t.Fatalf("recipients = %d", got)
	}
	rcptTransitions := 0
	for _, h := range s.History {
		if h.Command == CmdRcpt {
			rcptTransitions++
		}
	}
	if rcptTransitions != 1 {
		t.Fatalf("expected exactly one RCPT transition, got %d", rcptTransitions)
	}
	if !s.LastActivity.Equal(t0.Add(6 * time.Second)) {
		t.Fatalf("idempotent rcpt did not refresh activity: %v", s.LastActivity)
	}

	before := s.Clone()
	err := m.AddRecipient(s, "d@x.example", t0.Add(10*time.Second))
	if !errors.Is(err, ErrTooManyRecipients) {
		t.Fatalf("expected ErrTooManyRecipients, got %v", err)
	}
	if errors.Is(err, ErrBadSequence) {
		t.Fatal("recipient limit must be distinct from sequencing")
	}
	if !reflect.DeepEqual(before, s) {
		t.Fatal("session mutated on limit rejection")
	}
}

func TestMachineNewTransactionClearsTransactionFields(t *testing.T) {
	m := NewMachine()
	s := authedSession(t, m)
	_ = m.SetSender(s, "from@example.com", t0.Add(3*time.Second))
	_ = m.AddRecipient(s, "to@example.com", t0.Add(4*time.Second))
	_ = m.StartData(s, t0.Add(5*time.Second))
	_ = m.CompleteData(s, "msg-1", t0.Add(6*time.Second))

	if err := m.SetSender(s, "other@example.com", t0.Add(7*time.Second)); err != nil {
		t.Fatalf("second mail: %v", err)
	}
	if s.State != SenderSet {
		t.Fatalf("state = %s", s.State)
	}
	if len(s.Recipients) != 0 || s.MessageRef != "" {
		t.Fatalf("transaction fields not cleared: %+v", s)
	}
	if !s.Authenticated || s.Identity == nil || s.Meta.RemoteAddr != "192.0.2.1:5000" || s.Meta.Hostname != "client.example" {
		t.Fatalf("identity or metadata lost: %+v", s)
	}
	if s.MessageCount != 1 {
		t.Fatalf("message count = %d", s.MessageCount)
	}
}

func TestMachineReset(t *testing.T) {
	m := NewMachine()
	s := authedSession(t, m)
	_ = m.SetSender(s, "from@example.com", t0.Add(3*time.Second))
	_ = m.AddRecipient(s, "to@example.com", t0.Add(4*time.Second))

	if err := m.Reset(s, t0.Add(5*time.Second)); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if s.State != Authenticated || s.Sender != "" || len(s.Recipients) != 0 {
		t.Fatalf("reset left %+v", s)
	}

	g := New("g", Meta{}, t0)
	_ = m.Greet(g, "h", t0)
	n := len(g.History)
	if err := m.Reset(g, t0.Add(time.Second)); err != nil {
		t.Fatalf("reset greeted: %v", err)
	}
	if g.State != Greeted || len(g.History) != n {
		t.Fatalf("reset on resting state should not add history: state=%s history=%d", g.State, len(g.History))
	}
}

func TestMachineInvalidAddressLeavesSession(t *testing.T) {
	m := NewMachine()
	s := authedSession(t, m)
	before := s.Clone()
	if err := m.SetSender(s, "not-an-address", t0.Add(3*time.Second)); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if !reflect.DeepEqual(before, s) {
		t.Fatal("session mutated")
	}
}

func TestHistoryBoundedAndStrictlyMonotonic(t *testing.T) {
	m := NewMachine()
	m.HistoryLimit = 4
	s := authedSession(t, m)
	same := t0.Add(time.Hour)
	for i := 0; i < 5; i++ {
		_ = m.SetSender(s, "from@example.com", same)
		_ = m.AddRecipient(s, "to@example.com", same)
		_ = m.StartData(s, same)
		_ = m.CompleteData(s, "m", same)
	}
	if len(s.History) != 4 {
		t.Fatalf("history len = %d, want 4", len(s.History))
	}
	for i := 1; i < len(s.History); i++ {
		if !s.History[i].At.After(s.History[i-1].At) {
			t.Fatalf("history not strictly increasing at %d: %v then %v", i, s.History[i-1].At, s.History[i].At)
		}
	}
	if s.History[len(s.History)-1].To != Completed {
		t.Fatalf("newest entry should be kept, got %s", s.History[len(s.History)-1].To)
	}
}

func TestAllowedTable(t *testing.T) {
	for _, st := range States() {
		if !Allowed(CmdDisconnect, st) {
			t.Fatalf("disconnect must be legal in %s", st)
		}
	}
	if Allowed(CmdAuth, Authenticated) {
		t.Fatal("auth from authenticated must be illegal")
	}
	if !Allowed(CmdMail, Completed) {
		t.Fatal("mail from completed must be legal")
	}
	if Allowed(Command(200), Init) {
		t.Fatal("unknown command must be illegal")
	}
}

func TestParseState(t *testing.T) {
	for _, st := range States() {
		got, ok := ParseState(st.String())
		if !ok || got != st {
			t.Fatalf("ParseState(%q) = %v,%v", st.String(), got, ok)
		}
	}
	if _, ok := ParseState("nope"); ok {
		t.Fatal("expected unknown state")
	}
}
