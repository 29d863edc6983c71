// Package protocol implements length-prefixed message framing.
//
// Every message on a call's body stream is preceded by a 5-byte prefix:
//
//	0    1                 5
//	┌────┬─────────────────┬───────────────┐
//	│flag│     length      │   message ... │
//	│0/1 │ uint32 big-end. │ length bytes  │
//	└────┴─────────────────┴───────────────┘
//
// flag is 1 when the message is compressed with the stream's grpc-encoding.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"mini-grpc/compression"
	"mini-grpc/status"
)

const (
	HeaderSize = 5

	// DefaultMaxMessageSize bounds received messages when no limit is set.
	DefaultMaxMessageSize = 4 << 20
)

var (
	// ErrMessageTooLarge is wrapped by the ResourceExhausted status for
	// messages over the receive limit.
	ErrMessageTooLarge = errors.New("message too large")
	// ErrCompressedWithoutEncoding is returned when the flag says compressed
	// but the stream negotiated identity.
	ErrCompressedWithoutEncoding = errors.New("compressed flag set with identity encoding")
)

// Header is the message prefix.
type Header struct {
	Compressed bool
	Length     uint32
}

// Encode writes one frame. The caller must hold a write lock if several
// goroutines share w.
func Encode(w io.Writer, h *Header, body []byte) error {
	var buf [HeaderSize]byte
	if h.Compressed {
		buf[0] = 1
	}
	binary.BigEndian.PutUint32(buf[1:], h.Length)
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	return nil
}

// Decode reads one frame. It returns io.EOF when r ends cleanly before a
// prefix and io.ErrUnexpectedEOF when it ends inside a frame. Frames longer
// than maxSize are rejected before their body is read; maxSize <= 0 uses
// DefaultMaxMessageSize.
func Decode(r io.Reader, maxSize int) (*Header, []byte, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, nil, err
	}
	if buf[0] > 1 {
		return nil, nil, fmt.Errorf("invalid compressed flag: %d", buf[0])
	}
	h := &Header{Compressed: buf[0] == 1, Length: binary.BigEndian.Uint32(buf[1:])}

	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	if int64(h.Length) > int64(maxSize) {
		return nil, nil, tooLarge(uint64(h.Length), maxSize)
	}

	body := make([]byte, h.Length)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, nil, err
	}
	return h, body, nil
}

// WriteMessage compresses payload with enc (unless identity) and frames it.
func WriteMessage(w io.Writer, payload []byte, enc compression.Encoding) error {
	h := &Header{}
	if enc != compression.Identity {
		compressed, err := enc.CompressBytes(payload)
		if err != nil {
			return status.Wrap(status.Internal, fmt.Errorf("compress with %v: %w", enc, err))
		}
		payload = compressed
		h.Compressed = true
	}
	h.Length = uint32(len(payload))
	return Encode(w, h, payload)
}

// ReadMessage reads one frame and decompresses it with enc when flagged.
// Errors other than io.EOF are Statuses.
func ReadMessage(r io.Reader, enc compression.Encoding, maxSize int) ([]byte, error) {
	h, body, err := Decode(r, maxSize)
	switch {
	case err == io.EOF:
		return nil, io.EOF
	case err != nil:
		if status.IsStatus(err) {
			return nil, err
		}
		return nil, status.FromError(fmt.Errorf("read message: %w", err))
	}
	if !h.Compressed {
		return body, nil
	}
	if enc == compression.Identity {
		return nil, status.Wrap(status.Internal, ErrCompressedWithoutEncoding)
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	out, ok, err := enc.DecompressBytes(body, maxSize)
	if err != nil {
		return nil, status.Wrap(status.Internal, fmt.Errorf("decompress with %v: %w", enc, err))
	}
	if !ok {
		return nil, tooLarge(uint64(maxSize)+1, maxSize)
	}
	return out, nil
}

func tooLarge(size uint64, max int) error {
	return status.Wrap(status.ResourceExhausted, fmt.Errorf("%w: %s exceeds limit of %s",
		ErrMessageTooLarge, humanize.Bytes(size), humanize.Bytes(uint64(max))))
}
