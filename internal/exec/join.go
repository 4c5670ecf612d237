package exec

import (
	"bytes"
	"strconv"

	"github.com/ddbsgo/ddbs/internal/ddbserrors"
	"github.com/ddbsgo/ddbs/internal/planner"
	"github.com/ddbsgo/ddbs/internal/rowcodec"
)

// inMemoryJoin performs the control tier's equi-join of two
// independently fetched row sets, matching spec.LeftKeyColumn against
// spec.RightKeyColumn via their catalog positions, and emits each match
// as the left row followed by the right row: both sides' full column
// sets in FROM order (§4.4). No projection is applied to the result.
func inMemoryJoin(left, right []rowcodec.Row, spec *planner.JoinSpec) ([]rowcodec.Row, error) {
	if spec == nil {
		return nil, ddbserrors.New(ddbserrors.UnsupportedSql, "two fragment groups require a join spec")
	}

	leftIdx, ok := planner.ColumnIndex(spec.LeftTable, spec.LeftKeyColumn)
	if !ok {
		return nil, ddbserrors.Newf(ddbserrors.UnsupportedSql, "no catalog column %q on %q", spec.LeftKeyColumn, spec.LeftTable)
	}
	rightIdx, ok := planner.ColumnIndex(spec.RightTable, spec.RightKeyColumn)
	if !ok {
		return nil, ddbserrors.Newf(ddbserrors.UnsupportedSql, "no catalog column %q on %q", spec.RightKeyColumn, spec.RightTable)
	}

	buckets := make(map[string][]rowcodec.Row, len(right))
	for _, r := range right {
		key, ok := valueKey(rowAt(r, rightIdx))
		if !ok {
			continue
		}
		buckets[key] = append(buckets[key], r)
	}

	var out []rowcodec.Row
	for _, l := range left {
		key, ok := valueKey(rowAt(l, leftIdx))
		if !ok {
			continue
		}
		for _, r := range buckets[key] {
			row := make(rowcodec.Row, 0, len(l)+len(r))
			row = append(row, l...)
			row = append(row, r...)
			out = append(out, row)
		}
	}
	return out, nil
}

// valueKey builds a comparable hash key for an equi-join probe. Null
// values never match anything, matching SQL's null-is-not-equal rule.
func valueKey(v rowcodec.Value) (string, bool) {
	switch v.Kind {
	case rowcodec.KindNull:
		return "", false
	case rowcodec.KindBytes:
		return "b:" + string(v.Bytes), true
	case rowcodec.KindInt64:
		return "i:" + strconv.FormatInt(v.Int64, 10), true
	case rowcodec.KindUInt64:
		return "u:" + strconv.FormatUint(v.UInt64, 10), true
	default:
		return "", false
	}
}

// compareValues orders two values for ORDER BY. Values of differing
// kind compare by kind tag, which is stable but arbitrary; callers
// only rely on this within a single column's homogeneously typed
// values.
func compareValues(a, b rowcodec.Value) int {
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	switch a.Kind {
	case rowcodec.KindNull:
		return 0
	case rowcodec.KindBytes:
		return bytes.Compare(a.Bytes, b.Bytes)
	case rowcodec.KindInt64:
		switch {
		case a.Int64 < b.Int64:
			return -1
		case a.Int64 > b.Int64:
			return 1
		default:
			return 0
		}
	case rowcodec.KindUInt64:
		switch {
		case a.UInt64 < b.UInt64:
			return -1
		case a.UInt64 > b.UInt64:
			return 1
		default:
			return 0
		}
	case rowcodec.KindFloat32:
		switch {
		case a.Float32 < b.Float32:
			return -1
		case a.Float32 > b.Float32:
			return 1
		default:
			return 0
		}
	case rowcodec.KindFloat64:
		switch {
		case a.Float64 < b.Float64:
			return -1
		case a.Float64 > b.Float64:
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}
