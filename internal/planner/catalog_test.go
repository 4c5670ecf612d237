package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinPolicy(t *testing.T) {
	assert.Equal(t, NotShard, JoinPolicy("user", "user_read"))
	assert.Equal(t, NotShard, JoinPolicy("user_read", "user"), "order must not matter")
	assert.Equal(t, OnlyTwo, JoinPolicy("article", "be_read"))
	assert.Equal(t, Shard, JoinPolicy("user", "article"))
	assert.Equal(t, Shard, JoinPolicy("user", "popular_rank"), "unknown pairs default to Shard")
}

func TestColumnIndex(t *testing.T) {
	idx, ok := ColumnIndex("user", "region")
	assert := assert.New(t)
	assert.True(ok)
	assert.Equal(10, idx)

	_, ok = ColumnIndex("user", "nonexistent")
	assert.False(ok)

	_, ok = ColumnIndex("nonexistent_table", "x")
	assert.False(ok)
}

func TestJoinKeyColumn(t *testing.T) {
	col, ok := JoinKeyColumn("article")
	assert.True(t, ok)
	assert.Equal(t, "aid", col)

	_, ok = JoinKeyColumn("popular_rank")
	assert.False(t, ok)
}
