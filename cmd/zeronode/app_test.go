package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExitErrorCarriesCode(t *testing.T) {
	err := networkFailure(errors.New("dial timed out"))
	var ee *exitError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, ExitNetworkFailure, ee.code)
	require.Contains(t, ee.Error(), "dial timed out")
}

func TestInvalidArgumentFormatsMessage(t *testing.T) {
	err := invalidArgument("invalid site address %q", "not-an-address")
	var ee *exitError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, ExitInvalidArgument, ee.code)
	require.Contains(t, ee.Error(), "not-an-address")
}
