package zncodec

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	req := Request{Cmd: "ping", ReqID: 7, Params: map[string]any{"site": "1Hello"}}
	require.NoError(t, WriteRequest(&buf, req))

	frame, err := ReadFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.NotNil(t, frame.Request)
	require.Equal(t, "ping", frame.Request.Cmd)
	require.Equal(t, uint32(7), frame.Request.ReqID)
	require.Equal(t, "1Hello", frame.Request.Params["site"])

	buf.Reset()
	resp := Response{To: 7, Body: map[string]any{"body": "Pong!"}}
	require.NoError(t, WriteResponse(&buf, resp))

	frame, err = ReadFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.NotNil(t, frame.Response)
	require.Equal(t, uint32(7), frame.Response.To)
	require.Equal(t, "Pong!", frame.Response.Body["body"])
}

func TestReadFrameRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	// Claim a frame far larger than MaxFrameSize without supplying the bytes.
	lenPrefix := []byte{0xff, 0xff, 0xff, 0xff}
	buf.Write(lenPrefix)
	_, err := ReadFrame(bufio.NewReader(&buf))
	require.ErrorIs(t, err, ErrFrameTooLarge)
}
