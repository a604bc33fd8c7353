package auth

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/goSubmit/taxonomy"
)

// Failure is the typed error returned for every rejected authentication.
type Failure struct {
	Reason taxonomy.Reason
	Step   Step
	Detail string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("auth %s at %s: %s: %v", f.Reason, f.Step, f.Detail, f.Err)
	}
	return fmt.Sprintf("auth %s at %s: %s", f.Reason, f.Step, f.Detail)
}

func (f *Failure) Unwrap() error { return f.Err }

// ReasonOf extracts the failure reason from err. Errors that are not a *Failure
// report service-unavailable.
func ReasonOf(err error) taxonomy.Reason {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return taxonomy.ReasonServiceUnavailable
}

func fail(step Step, reason taxonomy.Reason, cause error) *Failure {
	return &Failure{
		Reason: reason,
		Step:   step,
		Detail: taxonomy.Lookup(reason).Detail,
		Err:    cause,
	}
}
