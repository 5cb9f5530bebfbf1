// api/schemas/errors_test.go
package schemas

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingUserInputErrorMessage(t *testing.T) {
	t.Parallel()

	err := &PendingUserInputError{FieldIDs: []string{"email", "right_to_work_0"}}
	assert.Equal(t, "missing validated answers for: email, right_to_work_0", err.Error())

	empty := &PendingUserInputError{}
	assert.Equal(t, "user input required", empty.Error())

	custom := &PendingUserInputError{
		FieldIDs: []string{"visa_1"},
		Reason:   "Repeated submission failures for visa_1; please review manually.",
	}
	assert.Equal(t, "Repeated submission failures for visa_1; please review manually.", custom.Error())
}

func TestAsPendingUserInput(t *testing.T) {
	t.Parallel()

	inner := &PendingUserInputError{FieldIDs: []string{"phone"}}
	wrapped := fmt.Errorf("submit attempt 2: %w", inner)

	pending, ok := AsPendingUserInput(wrapped)
	require.True(t, ok)
	assert.Equal(t, []string{"phone"}, pending.FieldIDs)

	_, ok = AsPendingUserInput(errors.New("plain failure"))
	assert.False(t, ok)
}
