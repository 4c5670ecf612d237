package rpcwire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ddbsgo/ddbs/internal/ddbserrors"
)

// MaxFrameLen bounds a single frame's payload, mirroring the
// teacher's redisserver protocol limits (MaxBulkLen) as a guard
// against a misbehaving peer forcing an unbounded allocation.
const MaxFrameLen = 64 * 1024 * 1024

// WriteFrame writes payload as one length-prefixed frame: a 4-byte
// big-endian length followed by that many bytes.
func WriteFrame(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return ddbserrors.Wrap(ddbserrors.Io, "write frame header", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return ddbserrors.Wrap(ddbserrors.Io, "write frame payload", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame previously written by
// WriteFrame. It returns the wrapped io.EOF unchanged when the peer
// closes the connection between frames, so callers can distinguish a
// clean disconnect from a mid-frame protocol error.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, ddbserrors.Wrap(ddbserrors.Io, "read frame header", err)
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameLen {
		return nil, ddbserrors.Newf(ddbserrors.Io, "frame length %d exceeds limit %d", n, MaxFrameLen)
	}
	if n == 0 {
		return nil, nil
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, ddbserrors.Wrap(ddbserrors.Io, fmt.Sprintf("read frame payload of %d bytes", n), err)
	}
	return payload, nil
}
