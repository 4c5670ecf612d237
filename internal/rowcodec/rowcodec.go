// Package rowcodec implements the compact binary encoding used to
// ship rows between a backend node and the control node over
// internal/rpcwire.
//
// A row is a sequence of nullable typed values. The wire format has
// no schema: each value carries its own one-byte type tag, so rows of
// differing width or column type can be mixed in the same stream,
// which is what a dynamically-projected SELECT * requires.
package rowcodec

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/ddbsgo/ddbs/internal/ddbserrors"
)

// Kind tags the dynamic type of a Value.
type Kind byte

const (
	KindNull Kind = iota
	KindBytes
	KindInt64
	KindUInt64
	KindFloat32
	KindFloat64
	KindDate
	KindTime
)

// Date is a calendar timestamp with microsecond precision, matching
// the column type MySQL's DATETIME/TIMESTAMP columns decode to.
type Date struct {
	Year        int16
	Month, Day  uint8
	Hour, Min   uint8
	Sec         uint8
	Microsecond uint32
}

// Time is a signed duration-like value, matching MySQL's TIME column
// type (which can exceed 24 hours and be negative).
type Time struct {
	Neg         bool
	Days        int32
	Hour, Min   uint8
	Sec         uint8
	Microsecond uint32
}

// Value is one nullable, typed cell of a row.
type Value struct {
	Kind    Kind
	Bytes   []byte
	Int64   int64
	UInt64  uint64
	Float32 float32
	Float64 float64
	Date    Date
	Time    Time
}

// Null returns a null value.
func Null() Value { return Value{Kind: KindNull} }

// FromBytes wraps b as a Bytes value.
func FromBytes(b []byte) Value { return Value{Kind: KindBytes, Bytes: b} }

// FromString wraps s as a Bytes value (rows carry text as raw bytes).
func FromString(s string) Value { return Value{Kind: KindBytes, Bytes: []byte(s)} }

// FromInt64 wraps v as an Int64 value.
func FromInt64(v int64) Value { return Value{Kind: KindInt64, Int64: v} }

// FromUInt64 wraps v as a UInt64 value.
func FromUInt64(v uint64) Value { return Value{Kind: KindUInt64, UInt64: v} }

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Row is an ordered list of nullable typed values.
type Row []Value

// EncodeRow writes one row's wire encoding: a varint value count
// followed by that many tagged values.
func EncodeRow(buf *bytes.Buffer, row Row) {
	writeUvarint(buf, uint64(len(row)))
	for _, v := range row {
		encodeValue(buf, v)
	}
}

// DecodeRow reads one row previously written by EncodeRow.
func DecodeRow(r *bytes.Reader) (Row, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, ddbserrors.Wrap(ddbserrors.DeserializationError, "read row value count", err)
	}

	row := make(Row, n)
	for i := range row {
		v, err := decodeValue(r)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

// EncodeBatch writes a varint row count followed by that many rows,
// matching the wire shape of ExecSqlBatch/ExecSql payloads.
func EncodeBatch(rows []Row) []byte {
	var buf bytes.Buffer
	writeUvarint(&buf, uint64(len(rows)))
	for _, row := range rows {
		EncodeRow(&buf, row)
	}
	return buf.Bytes()
}

// DecodeBatch reads a batch payload previously written by EncodeBatch.
func DecodeBatch(data []byte) ([]Row, error) {
	r := bytes.NewReader(data)
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, ddbserrors.Wrap(ddbserrors.DeserializationError, "read batch row count", err)
	}

	rows := make([]Row, n)
	for i := range rows {
		row, err := DecodeRow(r)
		if err != nil {
			return nil, err
		}
		rows[i] = row
	}
	return rows, nil
}

func encodeValue(buf *bytes.Buffer, v Value) {
	buf.WriteByte(byte(v.Kind))

	switch v.Kind {
	case KindNull:
		// tag only
	case KindBytes:
		writeUvarint(buf, uint64(len(v.Bytes)))
		buf.Write(v.Bytes)
	case KindInt64:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(v.Int64))
		buf.Write(tmp[:])
	case KindUInt64:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], v.UInt64)
		buf.Write(tmp[:])
	case KindFloat32:
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], math.Float32bits(v.Float32))
		buf.Write(tmp[:])
	case KindFloat64:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v.Float64))
		buf.Write(tmp[:])
	case KindDate:
		var tmp [11]byte
		binary.BigEndian.PutUint16(tmp[0:2], uint16(v.Date.Year))
		tmp[2] = v.Date.Month
		tmp[3] = v.Date.Day
		tmp[4] = v.Date.Hour
		tmp[5] = v.Date.Min
		tmp[6] = v.Date.Sec
		binary.BigEndian.PutUint32(tmp[7:11], v.Date.Microsecond)
		buf.Write(tmp[:])
	case KindTime:
		var neg byte
		if v.Time.Neg {
			neg = 1
		}
		buf.WriteByte(neg)
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], uint32(v.Time.Days))
		buf.Write(tmp[:])
		buf.WriteByte(v.Time.Hour)
		buf.WriteByte(v.Time.Min)
		buf.WriteByte(v.Time.Sec)
		var us [4]byte
		binary.BigEndian.PutUint32(us[:], v.Time.Microsecond)
		buf.Write(us[:])
	}
}

func decodeValue(r *bytes.Reader) (Value, error) {
	tagByte, err := r.ReadByte()
	if err != nil {
		return Value{}, ddbserrors.Wrap(ddbserrors.DeserializationError, "read value tag", err)
	}
	kind := Kind(tagByte)

	switch kind {
	case KindNull:
		return Value{Kind: KindNull}, nil

	case KindBytes:
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return Value{}, ddbserrors.Wrap(ddbserrors.DeserializationError, "read bytes length", err)
		}
		b := make([]byte, n)
		if n > 0 {
			if _, err := readFull(r, b); err != nil {
				return Value{}, ddbserrors.Wrap(ddbserrors.DeserializationError, "read bytes payload", err)
			}
		}
		return Value{Kind: KindBytes, Bytes: b}, nil

	case KindInt64:
		var tmp [8]byte
		if _, err := readFull(r, tmp[:]); err != nil {
			return Value{}, ddbserrors.Wrap(ddbserrors.DeserializationError, "read int64", err)
		}
		return Value{Kind: KindInt64, Int64: int64(binary.BigEndian.Uint64(tmp[:]))}, nil

	case KindUInt64:
		var tmp [8]byte
		if _, err := readFull(r, tmp[:]); err != nil {
			return Value{}, ddbserrors.Wrap(ddbserrors.DeserializationError, "read uint64", err)
		}
		return Value{Kind: KindUInt64, UInt64: binary.BigEndian.Uint64(tmp[:])}, nil

	case KindFloat32:
		var tmp [4]byte
		if _, err := readFull(r, tmp[:]); err != nil {
			return Value{}, ddbserrors.Wrap(ddbserrors.DeserializationError, "read float32", err)
		}
		return Value{Kind: KindFloat32, Float32: math.Float32frombits(binary.BigEndian.Uint32(tmp[:]))}, nil

	case KindFloat64:
		var tmp [8]byte
		if _, err := readFull(r, tmp[:]); err != nil {
			return Value{}, ddbserrors.Wrap(ddbserrors.DeserializationError, "read float64", err)
		}
		return Value{Kind: KindFloat64, Float64: math.Float64frombits(binary.BigEndian.Uint64(tmp[:]))}, nil

	case KindDate:
		var tmp [11]byte
		if _, err := readFull(r, tmp[:]); err != nil {
			return Value{}, ddbserrors.Wrap(ddbserrors.DeserializationError, "read date", err)
		}
		d := Date{
			Year:  int16(binary.BigEndian.Uint16(tmp[0:2])),
			Month: tmp[2],
			Day:   tmp[3],
			Hour:  tmp[4],
			Min:   tmp[5],
			Sec:   tmp[6],
		}
		d.Microsecond = binary.BigEndian.Uint32(tmp[7:11])
		return Value{Kind: KindDate, Date: d}, nil

	case KindTime:
		negByte, err := r.ReadByte()
		if err != nil {
			return Value{}, ddbserrors.Wrap(ddbserrors.DeserializationError, "read time sign", err)
		}
		var days [4]byte
		if _, err := readFull(r, days[:]); err != nil {
			return Value{}, ddbserrors.Wrap(ddbserrors.DeserializationError, "read time days", err)
		}
		var hms [3]byte
		if _, err := readFull(r, hms[:]); err != nil {
			return Value{}, ddbserrors.Wrap(ddbserrors.DeserializationError, "read time h/m/s", err)
		}
		var us [4]byte
		if _, err := readFull(r, us[:]); err != nil {
			return Value{}, ddbserrors.Wrap(ddbserrors.DeserializationError, "read time microseconds", err)
		}
		return Value{Kind: KindTime, Time: Time{
			Neg:         negByte != 0,
			Days:        int32(binary.BigEndian.Uint32(days[:])),
			Hour:        hms[0],
			Min:         hms[1],
			Sec:         hms[2],
			Microsecond: binary.BigEndian.Uint32(us[:]),
		}}, nil

	default:
		return Value{}, ddbserrors.Newf(ddbserrors.DeserializationError, "unknown value tag %d", tagByte)
	}
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
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
