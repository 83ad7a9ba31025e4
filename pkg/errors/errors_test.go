package errors

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("refresh: %w", ErrTokenInvalid)

	got := FromError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, "TOKEN_INVALID", got.Code)
	assert.Equal(t, http.StatusUnauthorized, got.Status)
}

func TestFromErrorHidesUntypedErrors(t *testing.T) {
	got := FromError(sql.ErrConnDone)

	assert.Equal(t, ErrInternal.Code, got.Code)
	assert.Equal(t, ErrInternal.Message, got.Message)
	assert.ErrorIs(t, got, sql.ErrConnDone)
	assert.Nil(t, FromError(nil))
}

func TestCloneDoesNotMutateBase(t *testing.T) {
	clone := Clone(ErrNotFound, "news not found with id: 7")

	assert.Equal(t, "news not found with id: 7", clone.Message)
	assert.Equal(t, "resource not found", ErrNotFound.Message)
	assert.Equal(t, ErrNotFound.Status, clone.Status)
	assert.Equal(t, ErrValidation.Message, Clone(ErrValidation, "").Message)
	assert.Nil(t, Clone(nil, "x"))
}

func TestWrapFormatsCause(t *testing.T) {
	err := Wrap(sql.ErrNoRows, ErrAuthUnavailable.Code, ErrAuthUnavailable.Status, "store down")

	assert.Equal(t, "store down: sql: no rows in result set", err.Error())
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestIsMatchesOnCode(t *testing.T) {
	cloned := Clone(ErrTokenInvalid, "refresh token revoked")

	assert.ErrorIs(t, fmt.Errorf("logout: %w", cloned), ErrTokenInvalid)
	assert.NotErrorIs(t, cloned, ErrAuthUnavailable)
	assert.False(t, cloned.Is(sql.ErrNoRows))
}
