package rpcwire

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello")))
	require.NoError(t, WriteFrame(&buf, nil))
	require.NoError(t, WriteFrame(&buf, []byte("world")))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	got, err = ReadFrame(&buf)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), got)
}

func TestReadFrame_EOFBetweenFrames(t *testing.T) {
	var buf bytes.Buffer
	_, err := ReadFrame(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrame_RejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, make([]byte, 16)))
	data := buf.Bytes()
	// Corrupt the length header to exceed MaxFrameLen.
	data[0], data[1], data[2], data[3] = 0xff, 0xff, 0xff, 0xff
	_, err := ReadFrame(bytes.NewReader(data))
	require.Error(t, err)
}
