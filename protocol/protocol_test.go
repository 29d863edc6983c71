package protocol

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-grpc/compression"
	"mini-grpc/status"
)

func TestEncodeDecode(t *testing.T) {
	body := []byte("hello world")
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &Header{Length: uint32(len(body))}, body))
	assert.Equal(t, []byte{0, 0, 0, 0, 11}, buf.Bytes()[:HeaderSize])

	h, got, err := Decode(&buf, 0)
	require.NoError(t, err)
	assert.False(t, h.Compressed)
	assert.Equal(t, body, got)

	_, _, err = Decode(&buf, 0)
	assert.Equal(t, io.EOF, err)
}

func TestDecodeTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &Header{Length: 10}, []byte("short")))
	_, _, err := Decode(&buf, 0)
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestDecodeInvalidFlag(t *testing.T) {
	_, _, err := Decode(bytes.NewReader([]byte{7, 0, 0, 0, 0}), 0)
	assert.Error(t, err)
}

func TestMessageRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("payload "), 100)
	for _, enc := range []compression.Encoding{compression.Identity, compression.Gzip, compression.Deflate, compression.Snappy} {
		t.Run(enc.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteMessage(&buf, payload, enc))
			assert.Equal(t, enc != compression.Identity, buf.Bytes()[0] == 1)

			got, err := ReadMessage(&buf, enc, 0)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestReadMessageTooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, make([]byte, 2048), compression.Identity))
	_, err := ReadMessage(&buf, compression.Identity, 1024)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMessageTooLarge)
	assert.Equal(t, status.ResourceExhausted, status.CodeOf(err))

	// compressed bodies are checked after decompression
	buf.Reset()
	require.NoError(t, WriteMessage(&buf, make([]byte, 64<<10), compression.Gzip))
	_, err = ReadMessage(&buf, compression.Gzip, 1024)
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestReadMessageCompressedWithIdentity(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, []byte("x"), compression.Gzip))
	_, err := ReadMessage(&buf, compression.Identity, 0)
	assert.ErrorIs(t, err, ErrCompressedWithoutEncoding)
	assert.Equal(t, status.Internal, status.CodeOf(err))
}
