package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIncludesInternal(t *testing.T) {
	err := ErrInternalServer.WithInternal(stdErrors.New("boom"))
	require.Equal(t, "Internal server error: boom", err.Error())
}

func TestWithInternalCopies(t *testing.T) {
	base := ErrRateLimit
	with := base.WithInternal(stdErrors.New("oops"))

	require.NotSame(t, base, with)
	require.Nil(t, base.Internal)
	require.NotNil(t, with.Internal)
}

func TestWithMessageCopies(t *testing.T) {
	with := ErrBadRequest.WithMessage("Phone number must contain between 10 and 15 digits")

	require.Equal(t, "Invalid request", ErrBadRequest.Message)
	require.Equal(t, "Phone number must contain between 10 and 15 digits", with.Message)
	require.Equal(t, http.StatusBadRequest, with.StatusCode)
}

func TestFromError(t *testing.T) {
	require.Same(t, ErrNotFound, FromError(ErrNotFound))

	out := FromError(stdErrors.New("raw"))
	require.Equal(t, ErrInternalServer.Code, out.Code)
	require.NotNil(t, out.Internal)

	require.Nil(t, FromError(nil))
}

func TestFromErrorUnwrapsWrappedAppError(t *testing.T) {
	wrapped := fmtWrap(ErrCodeExpired)
	require.Same(t, ErrCodeExpired, FromError(wrapped))
}

func TestNewValidationCarriesFields(t *testing.T) {
	err := NewValidation(map[string][]string{"phone": {"Phone number is required"}})
	require.Equal(t, http.StatusBadRequest, err.StatusCode)
	require.Equal(t, []string{"Phone number is required"}, err.Fields["phone"])
}

func fmtWrap(err error) error {
	return stdErrors.Join(stdErrors.New("context"), err)
}
