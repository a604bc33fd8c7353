package goSubmit

import (
	"fmt"

	"github.com/MrEthical07/goSubmit/session"
	"github.com/MrEthical07/goSubmit/taxonomy"
)

// Outcome is the result of one protocol command: the reply to relay and
// whether the command took effect.
type Outcome struct {
	Reply    taxonomy.Reply
	Accepted bool
	// State is the session state after the command. It is Init when the
	// session could not be loaded.
	State session.State
	// Reason names the internal cause of a rejection. It is for logs and
	// tests only.
	Reason string
	// MessageRef is set by a successful CompleteData.
	MessageRef string
}

// Err returns nil for accepted outcomes and a *ReplyError otherwise.
func (o Outcome) Err() error {
	if o.Accepted {
		return nil
	}
	return &ReplyError{Reply: o.Reply, Reason: o.Reason}
}

// ReplyError carries a rejection reply through error-returning APIs.
type ReplyError struct {
	Reply  taxonomy.Reply
	Reason string
}

func (e *ReplyError) Error() string {
	if e.Reason == "" {
		return e.Reply.String()
	}
	return fmt.Sprintf("%s (%s)", e.Reply.String(), e.Reason)
}

// Stats summarises the live sessions in the store.
type Stats struct {
	ByState map[session.State]int
	Total   int
}
