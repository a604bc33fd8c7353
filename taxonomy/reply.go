package taxonomy

import "fmt"

// Code is a three digit SMTP reply code.
type Code int

const (
	CodeAuthSuccess        Code = 235
	CodeOK                 Code = 250
	CodeStartInput         Code = 354
	CodeServiceUnavailable Code = 421
	CodeLocalError         Code = 451
	CodeInsufficientSpace  Code = 452
	CodeTempAuthFailure    Code = 454
	CodeSyntaxParams       Code = 501
	CodeBadSequence        Code = 503
	CodeAuthRequired       Code = 530
	CodeAuthInvalid        Code = 535
	CodeMailboxUnavailable Code = 550
	CodeExceededStorage    Code = 552
	CodeTransactionFailed  Code = 554
)

// Enhanced status codes (RFC 3463) used by the tables.
const (
	ESCOK                 = "2.0.0"
	ESCSecuritySuccess    = "2.7.0"
	ESCTempAuthFailure    = "4.7.0"
	ESCTempRateLimited    = "4.7.1"
	ESCTooManyRecipients  = "4.5.3"
	ESCTempSystem         = "4.3.0"
	ESCTempServiceDown    = "4.3.2"
	ESCTempTimeout        = "4.4.2"
	ESCTempQuota          = "4.2.2"
	ESCBadSequence        = "5.5.1"
	ESCInvalidParams      = "5.5.4"
	ESCBadDestination     = "5.1.1"
	ESCBadAddressSyntax   = "5.1.3"
	ESCMessageTooBig      = "5.3.4"
	ESCSecurityError      = "5.7.0"
	ESCDeliveryNotAuth    = "5.7.1"
	ESCCredentialsInvalid = "5.7.8"
)

// Reply is the line-shaped status triple relayed to a peer.
type Reply struct {
	Code      Code
	Enhanced  string
	Message   string
	Retryable bool
}

func (r Reply) String() string {
	if r.Enhanced == "" {
		return fmt.Sprintf("%d %s", r.Code, r.Message)
	}
	return fmt.Sprintf("%d %s %s", r.Code, r.Enhanced, r.Message)
}

// IsTransient reports whether the reply is a 4xx reply.
func (r Reply) IsTransient() bool {
	return r.Code >= 400 && r.Code < 500
}

// EnhancedTriple splits the enhanced status code into its three numeric parts.
// Malformed codes yield zeros.
func (r Reply) EnhancedTriple() [3]int {
	var out [3]int
	if _, err := fmt.Sscanf(r.Enhanced, "%d.%d.%d", &out[0], &out[1], &out[2]); err != nil {
		return [3]int{}
	}
	return out
}

var (
	// AuthSucceeded is the reply to a successful AUTH exchange.
	AuthSucceeded = Reply{Code: CodeAuthSuccess, Enhanced: ESCSecuritySuccess, Message: "Authentication successful"}
	// AuthRequired is the reply to a transaction command before authentication.
	AuthRequired = Reply{Code: CodeAuthRequired, Enhanced: ESCSecurityError, Message: "Authentication required"}
	// TooManyRecipients is the reply once the recipient maximum is reached.
	TooManyRecipients = Reply{Code: CodeInsufficientSpace, Enhanced: ESCTooManyRecipients, Message: "Too many recipients", Retryable: true}
	// InvalidAddress is the reply to an envelope address that cannot be
	// normalised.
	InvalidAddress = Reply{Code: CodeSyntaxParams, Enhanced: ESCBadAddressSyntax, Message: "Invalid address syntax"}
	// StartInput is the intermediate reply to DATA. It carries no enhanced code.
	StartInput = Reply{Code: CodeStartInput, Message: "Start mail input; end with <CRLF>.<CRLF>"}
	// OK is the generic positive completion.
	OK = Reply{Code: CodeOK, Enhanced: ESCOK, Message: "OK"}
)

// Queued is the positive reply to a completed message transfer.
func Queued(id string) Reply {
	return Reply{Code: CodeOK, Enhanced: ESCOK, Message: "Message queued as " + id}
}
