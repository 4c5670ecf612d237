package rpcwire

import (
	"bytes"
	"encoding/binary"

	"github.com/ddbsgo/ddbs/internal/cluster"
	"github.com/ddbsgo/ddbs/internal/ddbserrors"
)

// ControlMethod tags which control RPC (§6.1) a request frame carries.
type ControlMethod byte

const (
	MethodCtlPing ControlMethod = iota
	MethodCtlRegister
	MethodCtlListServerStatus
	MethodCtlClusterInit
	MethodCtlGenerateBeReadTable
	MethodCtlGeneratePopularTable
	MethodCtlExec
	MethodCtlGetArticle
)

func encodeCtlRequest(method ControlMethod, args []byte) []byte {
	out := make([]byte, 0, len(args)+1)
	out = append(out, byte(method))
	out = append(out, args...)
	return out
}

func encodeRegisterArgs(uri string) []byte {
	var buf bytes.Buffer
	writeString(&buf, uri)
	return buf.Bytes()
}

func decodeRegisterArgs(b []byte) (string, error) {
	return readString(bytes.NewReader(b))
}

func encodeUint64Result(v uint64) []byte {
	var buf bytes.Buffer
	writeUvarint(&buf, v)
	return buf.Bytes()
}

func decodeUint64Result(b []byte) (uint64, error) {
	v, err := binary.ReadUvarint(bytes.NewReader(b))
	if err != nil {
		return 0, ddbserrors.Wrap(ddbserrors.DeserializationError, "decode uint64 result", err)
	}
	return v, nil
}

func encodeGranularityArgs(granularity int) []byte {
	var buf bytes.Buffer
	writeUvarint(&buf, uint64(granularity))
	return buf.Bytes()
}

func decodeGranularityArgs(b []byte) (int, error) {
	v, err := binary.ReadUvarint(bytes.NewReader(b))
	if err != nil {
		return 0, ddbserrors.Wrap(ddbserrors.DeserializationError, "decode granularity argument", err)
	}
	return int(v), nil
}

func encodeStringArgs(s string) []byte {
	var buf bytes.Buffer
	writeString(&buf, s)
	return buf.Bytes()
}

func decodeStringArgs(b []byte) (string, error) {
	return readString(bytes.NewReader(b))
}

func encodeStringResult(s string) []byte {
	return encodeStringArgs(s)
}

func decodeStringResult(b []byte) (string, error) {
	return decodeStringArgs(b)
}

// encodeServerMapResult renders ListServerStatus's server_map: a
// varint entry count followed by (server_id, uri, status, shard)
// tuples.
func encodeServerMapResult(m map[uint64]cluster.BackendMeta) []byte {
	var buf bytes.Buffer
	writeUvarint(&buf, uint64(len(m)))
	for id, meta := range m {
		writeUvarint(&buf, id)
		writeString(&buf, meta.Uri)
		buf.WriteByte(byte(meta.Status))
		buf.WriteByte(byte(meta.Shard))
	}
	return buf.Bytes()
}

func decodeServerMapResult(b []byte) (map[uint64]cluster.BackendMeta, error) {
	r := bytes.NewReader(b)
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, ddbserrors.Wrap(ddbserrors.DeserializationError, "decode server_map entry count", err)
	}

	out := make(map[uint64]cluster.BackendMeta, n)
	for i := uint64(0); i < n; i++ {
		id, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, ddbserrors.Wrap(ddbserrors.DeserializationError, "decode server_id", err)
		}
		uri, err := readString(r)
		if err != nil {
			return nil, err
		}
		status, err := r.ReadByte()
		if err != nil {
			return nil, ddbserrors.Wrap(ddbserrors.DeserializationError, "decode backend status", err)
		}
		shard, err := r.ReadByte()
		if err != nil {
			return nil, ddbserrors.Wrap(ddbserrors.DeserializationError, "decode backend shard", err)
		}
		out[id] = cluster.BackendMeta{Uri: uri, Status: cluster.Status(status), Shard: cluster.ShardID(shard)}
	}
	return out, nil
}

func unknownCtlMethodError(tag byte) error {
	return ddbserrors.Newf(ddbserrors.RpcInvalidArg, "unknown control rpc method tag %d", tag)
}
