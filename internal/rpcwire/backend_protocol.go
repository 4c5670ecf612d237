package rpcwire

import (
	"bytes"
	"encoding/binary"

	"github.com/ddbsgo/ddbs/internal/ddbserrors"
	"github.com/ddbsgo/ddbs/internal/rowcodec"
)

// BackendMethod tags which backend RPC (§6.2) a request frame carries.
type BackendMethod byte

const (
	MethodPing BackendMethod = iota
	MethodInit
	MethodBulkLoad
	MethodExecSQL
	MethodExecSqlFirst
	MethodExecSqlDrop
	MethodExecSqlBatch
	MethodStreamExecSql
)

// streamChunk tags one frame of a streaming response (ExecSqlBatch,
// StreamExecSql): a data chunk, a clean end-of-stream marker, or an
// error that aborts the stream.
type streamChunk byte

const (
	chunkData streamChunk = iota
	chunkEnd
	chunkErr
)

func encodeRequest(method BackendMethod, args []byte) []byte {
	out := make([]byte, 0, len(args)+1)
	out = append(out, byte(method))
	out = append(out, args...)
	return out
}

func encodeInitArgs(shard int) []byte {
	var buf bytes.Buffer
	writeUvarint(&buf, uint64(shard))
	return buf.Bytes()
}

func decodeInitArgs(b []byte) (int, error) {
	r := bytes.NewReader(b)
	v, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, ddbserrors.Wrap(ddbserrors.DeserializationError, "decode Init shard argument", err)
	}
	return int(v), nil
}

func encodeTableArgs(table string) []byte {
	var buf bytes.Buffer
	writeString(&buf, table)
	return buf.Bytes()
}

func decodeTableArgs(b []byte) (string, error) {
	return readString(bytes.NewReader(b))
}

func encodeSQLArgs(sql string) []byte {
	var buf bytes.Buffer
	writeString(&buf, sql)
	return buf.Bytes()
}

func decodeSQLArgs(b []byte) (string, error) {
	return readString(bytes.NewReader(b))
}

func encodeBatchArgs(sql string, batchSize int) []byte {
	var buf bytes.Buffer
	writeString(&buf, sql)
	writeUvarint(&buf, uint64(batchSize))
	return buf.Bytes()
}

func decodeBatchArgs(b []byte) (sql string, batchSize int, err error) {
	r := bytes.NewReader(b)
	sql, err = readString(r)
	if err != nil {
		return "", 0, err
	}
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", 0, ddbserrors.Wrap(ddbserrors.DeserializationError, "decode batch size argument", err)
	}
	return sql, int(n), nil
}

// encodeFirstResult renders ExecSqlFirst's optional-row response: a
// one-byte presence flag followed by the encoded row if present.
func encodeFirstResult(row rowcodec.Row) []byte {
	var buf bytes.Buffer
	if row == nil {
		buf.WriteByte(0)
		return buf.Bytes()
	}
	buf.WriteByte(1)
	rowcodec.EncodeRow(&buf, row)
	return buf.Bytes()
}

func decodeFirstResult(b []byte) (rowcodec.Row, error) {
	if len(b) == 0 || b[0] == 0 {
		return nil, nil
	}
	r := bytes.NewReader(b[1:])
	return rowcodec.DecodeRow(r)
}

func encodeChunk(kind streamChunk, payload []byte) []byte {
	out := make([]byte, 0, len(payload)+1)
	out = append(out, byte(kind))
	out = append(out, payload...)
	return out
}

func unknownMethodError(tag byte) error {
	return ddbserrors.Newf(ddbserrors.RpcInvalidArg, "unknown backend rpc method tag %d", tag)
}
