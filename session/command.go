package session

import "fmt"

// Command identifies the protocol verb that caused a transition.
type Command uint8

const (
	CmdGreet Command = iota
	CmdAuth
	CmdMail
	CmdRcpt
	CmdData
	CmdDataEnd
	CmdReset
	CmdDisconnect

	commandCount
)

var commandNames = [commandCount]string{
	CmdGreet:      "EHLO",
	CmdAuth:       "AUTH",
	CmdMail:       "MAIL",
	CmdRcpt:       "RCPT",
	CmdData:       "DATA",
	CmdDataEnd:    "DATA_END",
	CmdReset:      "RSET",
	CmdDisconnect: "QUIT",
}

func (c Command) String() string {
	if c >= commandCount {
		return fmt.Sprintf("CMD(%d)", uint8(c))
	}
	return commandNames[c]
}

// legal lists, per command, the states it may be issued from. Anything else
// is a sequencing error.
var legal = [commandCount]stateSet{
	CmdGreet:      setOf(Init),
	CmdAuth:       setOf(Greeted),
	CmdMail:       setOf(Greeted, Authenticated, Completed),
	CmdRcpt:       setOf(SenderSet, RecipientsSet),
	CmdData:       setOf(RecipientsSet),
	CmdDataEnd:    setOf(Receiving),
	CmdReset:      setOf(Greeted, Authenticated, SenderSet, RecipientsSet, Receiving, Completed),
	CmdDisconnect: setOf(States()...),
}

// Allowed reports whether cmd may be issued while the session is in st.
func Allowed(cmd Command, st State) bool {
	if cmd >= commandCount {
		return false
	}
	return legal[cmd].has(st)
}
