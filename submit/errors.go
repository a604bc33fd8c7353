package submit

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/goSubmit/taxonomy"
)

// Error is a typed submission failure. Status is the downstream HTTP status
// when there was one.
type Error struct {
	Status   int
	Category taxonomy.Category
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("submit: %s (status %d): %s", e.Category, e.Status, e.Message)
	}
	return fmt.Sprintf("submit: %s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Reply maps the failure onto the client-visible reply.
func (e *Error) Reply() taxonomy.Reply {
	return taxonomy.ForSubmission(e.Category, e.Message)
}

// ReplyFor maps any error returned by a Submitter. Untyped errors go through
// keyword classification and end at the system-error row.
func ReplyFor(err error) taxonomy.Reply {
	var se *Error
	if errors.As(err, &se) {
		return se.Reply()
	}
	return taxonomy.ForSubmission(taxonomy.CategoryUnknown, err.Error())
}

// CategoryOf returns the category carried by err, or CategoryUnknown.
func CategoryOf(err error) taxonomy.Category {
	var se *Error
	if errors.As(err, &se) {
		return se.Category
	}
	return taxonomy.CategoryUnknown
}
