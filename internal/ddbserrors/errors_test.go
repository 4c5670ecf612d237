package ddbserrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "no cause",
			err:  New(SqlParse, "unexpected token"),
			want: "[SqlParse] unexpected token",
		},
		{
			name: "with cause",
			err:  Wrap(DbInternal, "query failed", errors.New("connection reset")),
			want: "[DbInternal] query failed: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(Io, "read failed", cause)

	require.Equal(t, cause, errors.Unwrap(err))
}

func TestError_Is(t *testing.T) {
	err := New(ServerNotAlive, "shard 1 backend is down")

	assert.True(t, errors.Is(err, New(ServerNotAlive, "different message")))
	assert.False(t, errors.Is(err, New(Uninitialize, "different kind")))
}

func TestOfKind(t *testing.T) {
	err := Newf(UnsupportedSql, "more than one JOIN in %q", "SELECT ...")

	assert.True(t, OfKind(err, UnsupportedSql))
	assert.False(t, OfKind(err, SqlParse))
	assert.False(t, OfKind(errors.New("plain"), UnsupportedSql))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, InvalidArg, KindOf(New(InvalidArg, "bad arg")))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
