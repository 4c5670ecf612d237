package rpcwire

import (
	"bytes"
	"encoding/binary"

	"github.com/ddbsgo/ddbs/internal/ddbserrors"
)

// statusOK and statusErr tag a response's first byte: whether the
// call succeeded or carries a ddbserrors.Kind + message in place of a
// result payload (§7's "transport-level analogue of Status::internal").
const (
	statusOK  byte = 0
	statusErr byte = 1
)

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", ddbserrors.Wrap(ddbserrors.DeserializationError, "read string length", err)
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := readFull(r, b); err != nil {
			return "", ddbserrors.Wrap(ddbserrors.DeserializationError, "read string payload", err)
		}
	}
	return string(b), nil
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	n := 0
	for n < len(b) {
		c, err := r.ReadByte()
		if err != nil {
			return n, err
		}
		b[n] = c
		n++
	}
	return n, nil
}

// encodeOK renders a successful response: statusOK followed by
// payload (which may be empty for ∅-response methods).
func encodeOK(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+1)
	out = append(out, statusOK)
	out = append(out, payload...)
	return out
}

// encodeErr renders a failed response: statusErr, the error's Kind,
// and its message.
func encodeErr(err error) []byte {
	var buf bytes.Buffer
	buf.WriteByte(statusErr)
	writeString(&buf, string(ddbserrors.KindOf(err)))
	writeString(&buf, err.Error())
	return buf.Bytes()
}

// decodeResult splits a response frame into its success payload, or
// reconstructs the remote *ddbserrors.Error if the call failed.
func decodeResult(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, ddbserrors.New(ddbserrors.DeserializationError, "empty response frame")
	}
	status, payload := frame[0], frame[1:]
	if status == statusOK {
		return payload, nil
	}

	r := bytes.NewReader(payload)
	kind, err := readString(r)
	if err != nil {
		return nil, err
	}
	msg, err := readString(r)
	if err != nil {
		return nil, err
	}
	return nil, &ddbserrors.Error{Kind: ddbserrors.Kind(kind), Message: msg}
}
