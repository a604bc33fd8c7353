package taxonomy

// Reason is the closed set of typed failure causes produced by authentication and
// command sequencing.
type Reason uint8

const (
	ReasonCredentialFormatInvalid Reason = iota
	ReasonCredentialNotFound
	ReasonCredentialRevoked
	ReasonCredentialExpired
	ReasonCredentialScopeInsufficient
	ReasonPrincipalFormatInvalid
	ReasonPrincipalNotFound
	ReasonPrincipalDisabled
	ReasonPrincipalSuspended
	ReasonOrganizationMismatch
	ReasonStoreUnavailable
	ReasonRateLimited
	ReasonServiceUnavailable
	ReasonSequencingViolation
	reasonCount
)

// Family groups reasons that share client-visible behavior.
type Family uint8

const (
	FamilyCredentials Family = iota + 1
	FamilyScope
	FamilyTemporary
	FamilySequencing
)

// Entry is one row of the authentication table.
type Entry struct {
	Reason Reason
	Family Family
	Reply  Reply
	// Detail is the internal-log message. It is never relayed to a peer.
	Detail string
}

const (
	msgCredentialsInvalid = "Authentication credentials invalid"
	msgScopeInsufficient  = "Insufficient permissions for SMTP access"
	msgScopeShort         = "Insufficient permissions"
	msgTemporaryFailure   = "Temporary authentication failure, please retry"
	msgBadSequence        = "Bad sequence of commands"
)

var (
	credentialsInvalid = Reply{Code: CodeAuthInvalid, Enhanced: ESCCredentialsInvalid, Message: msgCredentialsInvalid}
	scopeInsufficient  = Reply{Code: CodeAuthInvalid, Enhanced: ESCCredentialsInvalid, Message: msgScopeInsufficient}
	temporaryFailure   = Reply{Code: CodeTempAuthFailure, Enhanced: ESCTempAuthFailure, Message: msgTemporaryFailure, Retryable: true}
	badSequence        = Reply{Code: CodeBadSequence, Enhanced: ESCBadSequence, Message: msgBadSequence}
)

// table is indexed by Reason. A zero row means a reason was added without a mapping.
var table = [reasonCount]Entry{
	ReasonCredentialFormatInvalid:     {Family: FamilyCredentials, Reply: credentialsInvalid, Detail: "credential secret is malformed"},
	ReasonCredentialNotFound:          {Family: FamilyCredentials, Reply: credentialsInvalid, Detail: "no credential matches the presented secret"},
	ReasonCredentialRevoked:           {Family: FamilyCredentials, Reply: credentialsInvalid, Detail: "credential has been revoked"},
	ReasonCredentialExpired:           {Family: FamilyCredentials, Reply: credentialsInvalid, Detail: "credential has expired"},
	ReasonCredentialScopeInsufficient: {Family: FamilyScope, Reply: scopeInsufficient, Detail: "credential lacks the scope required for mail submission"},
	ReasonPrincipalFormatInvalid:      {Family: FamilyCredentials, Reply: credentialsInvalid, Detail: "principal identifier is malformed"},
	ReasonPrincipalNotFound:           {Family: FamilyCredentials, Reply: credentialsInvalid, Detail: "principal does not exist"},
	ReasonPrincipalDisabled:           {Family: FamilyCredentials, Reply: credentialsInvalid, Detail: "principal is disabled"},
	ReasonPrincipalSuspended:          {Family: FamilyCredentials, Reply: credentialsInvalid, Detail: "principal is suspended"},
	ReasonOrganizationMismatch:        {Family: FamilyCredentials, Reply: credentialsInvalid, Detail: "credential and principal belong to different organizations"},
	ReasonStoreUnavailable:            {Family: FamilyTemporary, Reply: temporaryFailure, Detail: "credential store unavailable or timed out"},
	ReasonRateLimited:                 {Family: FamilyTemporary, Reply: temporaryFailure, Detail: "authentication attempts rate limited"},
	ReasonServiceUnavailable:          {Family: FamilyTemporary, Reply: temporaryFailure, Detail: "internal fault during authentication"},
	ReasonSequencingViolation:         {Family: FamilySequencing, Reply: badSequence, Detail: "command not permitted in current session state"},
}

var reasonNames = [reasonCount]string{
	ReasonCredentialFormatInvalid:     "credential-format-invalid",
	ReasonCredentialNotFound:          "credential-not-found",
	ReasonCredentialRevoked:           "credential-revoked",
	ReasonCredentialExpired:           "credential-expired",
	ReasonCredentialScopeInsufficient: "credential-scope-insufficient",
	ReasonPrincipalFormatInvalid:      "principal-format-invalid",
	ReasonPrincipalNotFound:           "principal-not-found",
	ReasonPrincipalDisabled:           "principal-disabled",
	ReasonPrincipalSuspended:          "principal-suspended",
	ReasonOrganizationMismatch:        "organization-mismatch",
	ReasonStoreUnavailable:            "store-unavailable",
	ReasonRateLimited:                 "rate-limited",
	ReasonServiceUnavailable:          "service-unavailable",
	ReasonSequencingViolation:         "sequencing-violation",
}

func (r Reason) String() string {
	if r >= reasonCount {
		return "unknown"
	}
	return reasonNames[r]
}

// Valid reports whether r is a member of the enumeration.
func (r Reason) Valid() bool {
	return r < reasonCount
}

// Reasons returns every reason in declaration order.
func Reasons() []Reason {
	out := make([]Reason, 0, reasonCount)
	for r := Reason(0); r < reasonCount; r++ {
		out = append(out, r)
	}
	return out
}

// ParseReason resolves the kebab-case name of a reason.
func ParseReason(name string) (Reason, bool) {
	for r := Reason(0); r < reasonCount; r++ {
		if reasonNames[r] == name {
			return r, true
		}
	}
	return 0, false
}

// Lookup returns the table row for r. Values outside the enumeration resolve to the
// service-unavailable row so the mapping stays total.
func Lookup(r Reason) Entry {
	if r >= reasonCount {
		r = ReasonServiceUnavailable
	}
	e := table[r]
	e.Reason = r
	return e
}

// ForReason returns the client-visible reply for r.
func ForReason(r Reason) Reply {
	return Lookup(r).Reply
}

// ForReasonShort is ForReason with the shorter scope message.
func ForReasonShort(r Reason) Reply {
	reply := ForReason(r)
	if r == ReasonCredentialScopeInsufficient {
		reply.Message = msgScopeShort
	}
	return reply
}

// CountsTowardLimit reports whether a failure with reason r should consume the
// authentication failure budget. Transient faults and sequencing errors do not.
func CountsTowardLimit(r Reason) bool {
	switch Lookup(r).Family {
	case FamilyCredentials, FamilyScope:
		return true
	default:
		return false
	}
}
