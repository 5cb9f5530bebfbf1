// internal/submit/errors.go
package submit

import (
	"errors"
	"fmt"

	"github.com/AlperenTurkmen/job-finder-sub001/api/schemas"
)

var errNavigatorMissing = errors.New("navigator result missing: run discovery first")

// FieldError is an unrecoverable failure acting on one specific field. It
// terminates the dispatch run; the offending descriptor rides along so the
// caller can re-resolve that field's answer and retry.
type FieldError struct {
	Field schemas.FieldDescriptor
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("submit field %q (%s): %v", e.Field.FieldID, e.Field.Kind, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// AsFieldError extracts a FieldError from err's chain.
func AsFieldError(err error) (*FieldError, bool) {
	var fieldErr *FieldError
	if errors.As(err, &fieldErr) {
		return fieldErr, true
	}
	return nil, false
}
