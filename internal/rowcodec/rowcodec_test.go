package rowcodec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTripRow(t *testing.T, row Row) Row {
	t.Helper()

	var buf bytes.Buffer
	EncodeRow(&buf, row)

	got, err := DecodeRow(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	return got
}

func TestRow_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		row  Row
	}{
		{
			name: "mixed scalars",
			row: Row{
				FromString("Beijing"),
				FromInt64(-42),
				FromUInt64(7),
				Null(),
			},
		},
		{
			name: "empty bytes",
			row:  Row{FromBytes([]byte{})},
		},
		{
			name: "floats",
			row:  Row{{Kind: KindFloat32, Float32: 3.5}, {Kind: KindFloat64, Float64: -1.25e10}},
		},
		{
			name: "date and time",
			row: Row{
				{Kind: KindDate, Date: Date{Year: 2024, Month: 3, Day: 9, Hour: 13, Min: 5, Sec: 59, Microsecond: 123456}},
				{Kind: KindTime, Time: Time{Neg: true, Days: 2, Hour: 3, Min: 4, Sec: 5, Microsecond: 9}},
			},
		},
		{
			name: "empty row",
			row:  Row{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTripRow(t, tt.row)
			assert.Equal(t, tt.row, got)
		})
	}
}

func TestBatch_RoundTrip(t *testing.T) {
	rows := []Row{
		{FromString("A"), FromInt64(10)},
		{FromString("B"), FromInt64(7)},
		{Null(), Null()},
	}

	encoded := EncodeBatch(rows)
	decoded, err := DecodeBatch(encoded)
	require.NoError(t, err)

	assert.Equal(t, rows, decoded)
}

func TestDecodeBatch_EmptyBatch(t *testing.T) {
	decoded, err := DecodeBatch(EncodeBatch(nil))
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestDecodeRow_TruncatedInput(t *testing.T) {
	_, err := DecodeRow(bytes.NewReader([]byte{0x02, 0x01}))
	assert.Error(t, err)
}
