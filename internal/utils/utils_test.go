package utils

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `validate:"required"`
	Limit int    `validate:"max=100"`
}

func TestValidationErr(t *testing.T) {
	err := validator.New().Struct(sample{Limit: 500})
	var ve validator.ValidationErrors
	require.True(t, errors.As(err, &ve))

	out := ValidationErr(ve)
	require.Len(t, out, 2)
	assert.Equal(t, "Name", out[0].Field)
	assert.Equal(t, "This field is required.", out[0].Message)
	assert.Equal(t, "Must be at most 100.", out[1].Message)
}

func TestBindErrPlain(t *testing.T) {
	assert.Equal(t, "boom", BindErr(errors.New("boom")))
}
