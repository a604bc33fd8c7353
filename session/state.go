package session

import (
	"fmt"
	"strings"
)

// State is the protocol phase a session is in.
type State uint8

const (
	// Init is the state of a freshly connected session before HELO/EHLO.
	Init State = iota
	// Greeted follows a successful greeting.
	Greeted
	// Authenticated follows a successful AUTH.
	Authenticated
	// SenderSet follows an accepted MAIL FROM.
	SenderSet
	// RecipientsSet follows the first accepted RCPT TO.
	RecipientsSet
	// Receiving is entered by DATA and lasts until the body terminator.
	Receiving
	// Completed follows a submitted message.
	Completed

	stateCount
)

var stateNames = [stateCount]string{
	Init:          "INIT",
	Greeted:       "GREETED",
	Authenticated: "AUTHENTICATED",
	SenderSet:     "MAIL_FROM_SET",
	RecipientsSet: "RCPT_TO_SET",
	Receiving:     "DATA_RECEIVING",
	Completed:     "COMPLETED",
}

func (s State) String() string {
	if !s.Valid() {
		return fmt.Sprintf("STATE(%d)", uint8(s))
	}
	return stateNames[s]
}

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	return s < stateCount
}

// States returns every defined state in declaration order.
func States() []State {
	out := make([]State, 0, stateCount)
	for s := State(0); s < stateCount; s++ {
		out = append(out, s)
	}
	return out
}

// ParseState accepts the canonical upper-case names, case-insensitively.
func ParseState(name string) (State, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for s := State(0); s < stateCount; s++ {
		if stateNames[s] == name {
			return s, true
		}
	}
	return 0, false
}

type stateSet uint16

func setOf(states ...State) stateSet {
	var m stateSet
	for _, s := range states {
		m |= 1 << s
	}
	return m
}

func (m stateSet) has(s State) bool {
	return s.Valid() && m&(1<<s) != 0
}
