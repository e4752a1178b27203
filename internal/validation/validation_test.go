package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatedesk/estatedesk/internal/validation"
)

type loginPayload struct {
	Username string `validate:"required,min=3"`
	Password string `validate:"required,min=8"`
}

type statusPayload struct {
	Status string `validate:"required,oneof=OPEN IN_PROGRESS RESOLVED CLOSED"`
}

func TestValidate_Valid(t *testing.T) {
	errs := validation.Validate(loginPayload{Username: "admin", Password: "longenough"})
	assert.Nil(t, errs)
}

func TestValidate_RequiredAndMin(t *testing.T) {
	errs := validation.Validate(loginPayload{Username: "ab"})
	require.Len(t, errs, 2)

	assert.Equal(t, "Username", errs[0].Field)
	assert.Equal(t, "min", errs[0].Rule)
	assert.Contains(t, errs[0].Message, "at least 3")

	assert.Equal(t, "Password", errs[1].Field)
	assert.Equal(t, "required", errs[1].Rule)
}

func TestValidate_OneOf(t *testing.T) {
	errs := validation.Validate(statusPayload{Status: "ARCHIVED"})
	require.Len(t, errs, 1)
	assert.Equal(t, "oneof", errs[0].Rule)
	assert.Contains(t, errs[0].Message, "must be one of")

	assert.Nil(t, validation.Validate(statusPayload{Status: "RESOLVED"}))
}
