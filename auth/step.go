package auth

// Step identifies one stage of the pipeline.
type Step uint8

const (
	StepPrincipalFormat Step = iota + 1
	StepSecretFormat
	StepCredentialLookup
	StepRevocation
	StepExpiry
	StepScope
	StepPrincipalLookup
	StepPrincipalStatus
	StepOrganization
	StepComplete
)

var stepNames = map[Step]string{
	StepPrincipalFormat:  "principal-format",
	StepSecretFormat:     "secret-format",
	StepCredentialLookup: "credential-lookup",
	StepRevocation:       "revocation",
	StepExpiry:           "expiry",
	StepScope:            "scope",
	StepPrincipalLookup:  "principal-lookup",
	StepPrincipalStatus:  "principal-status",
	StepOrganization:     "organization",
	StepComplete:         "complete",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "unknown"
}

// Observer receives the outcome of every step that ran. err is nil for a passed step.
type Observer func(step Step, err error)
