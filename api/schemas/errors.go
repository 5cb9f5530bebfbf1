// api/schemas/errors.go
package schemas

import (
	"errors"
	"strings"
)

// PendingUserInputError signals that submission cannot proceed until a human
// supplies answers for the named fields. It is a recoverable precondition
// failure, not a defect: callers persist the open questions and retry once
// the answer material is updated. Reason, when set, replaces the generic
// message with the specific cause.
type PendingUserInputError struct {
	FieldIDs []string
	Reason   string
}

func (e *PendingUserInputError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	if len(e.FieldIDs) == 0 {
		return "user input required"
	}
	return "missing validated answers for: " + strings.Join(e.FieldIDs, ", ")
}

// AsPendingUserInput extracts a PendingUserInputError from err's chain.
func AsPendingUserInput(err error) (*PendingUserInputError, bool) {
	var pending *PendingUserInputError
	if errors.As(err, &pending) {
		return pending, true
	}
	return nil, false
}
