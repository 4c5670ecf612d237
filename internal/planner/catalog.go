package planner

// Policy classifies how a pair of base tables behaves when joined
// across the two shards (§3 join policy table).
type Policy int

const (
	// NotShard means co-location is guaranteed by the sharding policy:
	// execute the join unchanged on each shard and union the results.
	NotShard Policy = iota
	// Shard means each side is independently shippable per shard; the
	// control tier performs the join after collecting both sides.
	Shard
	// OnlyTwo means the join is only ever meaningful on Shard 2.
	OnlyTwo
)

// catalog lists, in output order, the columns of every recognized
// base and derived table (§6.3), used for `*` projection expansion.
var catalog = map[string][]string{
	"user":         {"timestamp", "id", "uid", "name", "gender", "email", "phone", "dept", "grade", "language", "region", "role", "preferTags", "obtainedCredits"},
	"article":      {"timestamp", "id", "aid", "title", "category", "abstract", "articleTags", "authors", "language", "text", "image", "video"},
	"user_read":    {"timestamp", "id", "uid", "aid", "readTimeLength", "agreeOrNot", "commentOrNot", "shareOrNot", "commentDetail"},
	"be_read":      {"id", "aid", "readNum", "readUidList", "commentNum", "commentUidList", "agreeNum", "agreeUidList", "shareNum", "shareUidList"},
	"popular_rank": {"id", "popularDate", "temporalGranularity", "articleAidList"},
}

// Columns returns the ordered column list for table, if recognized.
func Columns(table string) ([]string, bool) {
	cols, ok := catalog[table]
	return cols, ok
}

// ColumnIndex returns the position of column within table's ordered
// column list.
func ColumnIndex(table, column string) (int, bool) {
	cols, ok := catalog[table]
	if !ok {
		return 0, false
	}
	for i, c := range cols {
		if c == column {
			return i, true
		}
	}
	return 0, false
}

// joinKeyColumn names the column each table joins on.
var joinKeyColumn = map[string]string{
	"user":      "uid",
	"user_read": "uid",
	"article":   "aid",
	"be_read":   "aid",
}

// JoinKeyColumn returns the stored join-key column for table.
func JoinKeyColumn(table string) (string, bool) {
	col, ok := joinKeyColumn[table]
	return col, ok
}

type tablePair struct{ a, b string }

func pairKey(a, b string) tablePair {
	if a > b {
		a, b = b, a
	}
	return tablePair{a, b}
}

// joinPolicyTable lists the pairs whose cross-shard join behavior is
// known from the source system. user<->user_read are guaranteed
// co-located by the range partition on region; article<->be_read only
// makes sense against be_read's Shard-2 materialization (REDESIGN FLAG
// 3: any other OnlyTwo-tagged pair gets the same treatment).
var joinPolicyTable = map[tablePair]Policy{
	pairKey("user", "user_read"):  NotShard,
	pairKey("article", "be_read"): OnlyTwo,
}

// JoinPolicy returns the join classification for tables a and b. Pairs
// absent from the explicit table default to Shard: without a
// co-location guarantee, collecting both sides and joining them on
// the control tier is always correct, if not always the cheapest
// option.
func JoinPolicy(a, b string) Policy {
	if p, ok := joinPolicyTable[pairKey(a, b)]; ok {
		return p
	}
	return Shard
}
