package smtpd

import (
	"errors"
	"fmt"
	"strings"

	goSubmit "github.com/MrEthical07/goSubmit"
	"github.com/MrEthical07/goSubmit/taxonomy"
)

// Replies owned by the transport. Everything that depends on session state
// comes from the engine.
var (
	connectFailed = taxonomy.Reply{
		Code:      taxonomy.CodeServiceUnavailable,
		Enhanced:  taxonomy.ESCTempServiceDown,
		Message:   "Service not available, closing transmission channel",
		Retryable: true,
	}
	shuttingDown = taxonomy.Reply{
		Code:      taxonomy.CodeServiceUnavailable,
		Enhanced:  taxonomy.ESCTempServiceDown,
		Message:   "Server shutting down",
		Retryable: true,
	}
	tooManyErrors = taxonomy.Reply{
		Code:      taxonomy.CodeServiceUnavailable,
		Enhanced:  "4.7.0",
		Message:   "Too many errors, closing connection",
		Retryable: true,
	}
	closing         = taxonomy.Reply{Code: 221, Enhanced: taxonomy.ESCOK, Message: "Bye"}
	tlsReady        = taxonomy.Reply{Code: 220, Enhanced: taxonomy.ESCOK, Message: "Ready to start TLS"}
	cannotVerify    = taxonomy.Reply{Code: 252, Enhanced: "2.5.0", Message: "Cannot VRFY user, but will accept message"}
	unknownCommand  = taxonomy.Reply{Code: 500, Enhanced: "5.5.2", Message: "Command not recognized"}
	lineTooLong     = taxonomy.Reply{Code: 500, Enhanced: "5.5.2", Message: "Line too long"}
	helloSyntax     = taxonomy.Reply{Code: taxonomy.CodeSyntaxParams, Enhanced: taxonomy.ESCInvalidParams, Message: "Syntax: EHLO hostname"}
	mailSyntax      = taxonomy.Reply{Code: taxonomy.CodeSyntaxParams, Enhanced: taxonomy.ESCInvalidParams, Message: "Syntax: MAIL FROM:<address>"}
	rcptSyntax      = taxonomy.Reply{Code: taxonomy.CodeSyntaxParams, Enhanced: taxonomy.ESCInvalidParams, Message: "Syntax: RCPT TO:<address>"}
	authSyntax      = taxonomy.Reply{Code: taxonomy.CodeSyntaxParams, Enhanced: taxonomy.ESCInvalidParams, Message: "Syntax: AUTH mechanism [initial-response]"}
	authCancelled   = taxonomy.Reply{Code: taxonomy.CodeSyntaxParams, Enhanced: "5.0.0", Message: "Authentication cancelled"}
	badBase64       = taxonomy.Reply{Code: taxonomy.CodeSyntaxParams, Enhanced: "5.5.2", Message: "Invalid base64 data"}
	tlsUnavailable  = taxonomy.Reply{Code: 502, Enhanced: taxonomy.ESCBadSequence, Message: "STARTTLS not available"}
	tlsActive       = taxonomy.Reply{Code: taxonomy.CodeBadSequence, Enhanced: taxonomy.ESCBadSequence, Message: "Already running TLS"}
	mechUnsupported = taxonomy.Reply{Code: 504, Enhanced: taxonomy.ESCInvalidParams, Message: "Unrecognized authentication mechanism"}
	tlsRequired     = taxonomy.Reply{Code: 538, Enhanced: "5.7.11", Message: "Encryption required for requested authentication mechanism"}
)

// malformedCredentials answers SASL payloads that never reach the engine,
// such as a PLAIN blob without a password.
var malformedCredentials = taxonomy.ForReason(taxonomy.ReasonCredentialFormatInvalid)

// replyFor picks the reply for an error raised during a SASL exchange.
func replyFor(err error) taxonomy.Reply {
	var rerr *goSubmit.ReplyError
	if errors.As(err, &rerr) {
		return rerr.Reply
	}
	return malformedCredentials
}

// helloLines builds the EHLO response body: the greeting line followed by
// one extension per line.
func helloLines(domain, client string, ext []string) []string {
	lines := make([]string, 0, len(ext)+1)
	lines = append(lines, fmt.Sprintf("%s Hello %s", domain, client))
	return append(lines, ext...)
}

// multiline formats lines as an RFC 5321 multi-line reply.
func multiline(code taxonomy.Code, lines []string) string {
	var b strings.Builder
	for i, line := range lines {
		sep := byte('-')
		if i == len(lines)-1 {
			sep = ' '
		}
		fmt.Fprintf(&b, "%d%c%s", code, sep, line)
		if i < len(lines)-1 {
			b.WriteString("\r\n")
		}
	}
	return b.String()
}
