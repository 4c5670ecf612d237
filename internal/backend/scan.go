package backend

import (
	"database/sql"
	"time"

	"github.com/ddbsgo/ddbs/internal/ddbserrors"
	"github.com/ddbsgo/ddbs/internal/rowcodec"
)

// scanRow scans one *sql.Rows row into a rowcodec.Row. Destinations
// are left untyped (interface{}) so database/sql's driver-level
// conversion does the work: go-sql-driver/mysql already returns
// int64/float64/[]byte/time.Time/nil based on the column's wire type,
// so there is no need to re-derive it from DatabaseTypeName.
func scanRow(rows *sql.Rows, cols []*sql.ColumnType) (rowcodec.Row, error) {
	vals := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range dest {
		dest[i] = &vals[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, ddbserrors.Wrap(ddbserrors.DbInternal, "scan row", err)
	}

	row := make(rowcodec.Row, len(cols))
	for i, v := range vals {
		row[i] = valueOf(v)
	}
	return row, nil
}

func valueOf(v any) rowcodec.Value {
	switch t := v.(type) {
	case nil:
		return rowcodec.Null()
	case int64:
		return rowcodec.FromInt64(t)
	case int:
		return rowcodec.FromInt64(int64(t))
	case uint64:
		return rowcodec.FromUInt64(t)
	case float32:
		return rowcodec.Value{Kind: rowcodec.KindFloat32, Float32: t}
	case float64:
		return rowcodec.Value{Kind: rowcodec.KindFloat64, Float64: t}
	case bool:
		if t {
			return rowcodec.FromInt64(1)
		}
		return rowcodec.FromInt64(0)
	case []byte:
		b := make([]byte, len(t))
		copy(b, t)
		return rowcodec.FromBytes(b)
	case string:
		return rowcodec.FromString(t)
	case time.Time:
		return dateValue(t)
	default:
		return rowcodec.Null()
	}
}

// dateValue converts a time.Time column (returned by
// go-sql-driver/mysql when the DSN sets parseTime=true) into a
// rowcodec Date value.
func dateValue(t time.Time) rowcodec.Value {
	return rowcodec.Value{
		Kind: rowcodec.KindDate,
		Date: rowcodec.Date{
			Year:        int16(t.Year()),
			Month:       uint8(t.Month()),
			Day:         uint8(t.Day()),
			Hour:        uint8(t.Hour()),
			Min:         uint8(t.Minute()),
			Sec:         uint8(t.Second()),
			Microsecond: uint32(t.Nanosecond() / 1000),
		},
	}
}
