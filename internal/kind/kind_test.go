package kind

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToTerminationMapping(t *testing.T) {
	require.Equal(t, TerminationTimeout, Timeout.ToTermination())
	require.Equal(t, TerminationTLSError, TLSError.ToTermination())
	require.Equal(t, WithError, MalformedRequest.ToTermination())
	require.Equal(t, WithError, OversizedRequest.ToTermination())
	require.Equal(t, WithError, IOError.ToTermination())
	require.Equal(t, WithError, InternalError.ToTermination())
	require.Equal(t, WithError, ApplicationError.ToTermination())
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := New(MalformedRequest, cause)

	require.ErrorIs(t, err, cause)
	require.Equal(t, "malformed-request: boom", err.Error())
}

func TestErrorWithoutCause(t *testing.T) {
	err := New(Timeout, nil)

	require.Equal(t, "timeout", err.Error())
	require.Nil(t, err.Unwrap())
}
