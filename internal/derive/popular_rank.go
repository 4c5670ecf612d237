package derive

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ddbsgo/ddbs/internal/ddbserrors"
	"github.com/ddbsgo/ddbs/internal/rowcodec"
)

// Granularity is one of the three popular_rank bucketing levels
// (§4.6): its top-K size, cross-shard batch size, date-bucketing SQL
// expression, and which shard the final rows are written to.
type Granularity struct {
	Name      string
	K         int
	BatchSize int
	DateExpr  string
	// TargetShard selects which of the two shards receives the final
	// popular_rank rows: 1 for Daily, 2 for Weekly and Monthly (§3).
	TargetShard int
}

// Granularities lists all three in the fixed order the build runs
// them.
var Granularities = []Granularity{
	{Name: "Daily", K: 3, BatchSize: 40, DateExpr: "DATE(FROM_UNIXTIME(timestamp/1000))", TargetShard: 1},
	{Name: "Weekly", K: 5, BatchSize: 20, DateExpr: "YEARWEEK(FROM_UNIXTIME(timestamp/1000))", TargetShard: 2},
	{Name: "Monthly", K: 10, BatchSize: 20, DateExpr: "EXTRACT(YEAR_MONTH FROM FROM_UNIXTIME(timestamp/1000))", TargetShard: 2},
}

func (g Granularity) tempTable() string {
	return "popular_temp_" + strings.ToLower(g.Name)
}

// BuildPopularRank runs the streaming top-K merge for every
// granularity and writes each result row to its granularity-selected
// shard (§4.6).
func BuildPopularRank(ctx context.Context, shard1, shard2 BackendClient) error {
	for _, g := range Granularities {
		if err := buildGranularity(ctx, g, shard1, shard2); err != nil {
			return ddbserrors.Wrap(ddbserrors.DbInternal, fmt.Sprintf("build popular_rank for granularity %s", g.Name), err)
		}
	}
	return nil
}

// BuildPopularRankFor runs the streaming top-K merge for a single
// granularity selected by index (0=Daily, 1=Weekly, 2=Monthly), as
// addressed by the control RPC's GeneratePopularTable (§6.1).
func BuildPopularRankFor(ctx context.Context, granularity int, shard1, shard2 BackendClient) error {
	if granularity < 0 || granularity >= len(Granularities) {
		return ddbserrors.Newf(ddbserrors.InvalidArg, "popular_rank granularity %d out of range", granularity)
	}
	g := Granularities[granularity]
	if err := buildGranularity(ctx, g, shard1, shard2); err != nil {
		return ddbserrors.Wrap(ddbserrors.DbInternal, fmt.Sprintf("build popular_rank for granularity %s", g.Name), err)
	}
	return nil
}

func buildGranularity(ctx context.Context, g Granularity, shard1, shard2 BackendClient) error {
	if err := createTempTable(ctx, g, shard1); err != nil {
		return err
	}
	if err := createTempTable(ctx, g, shard2); err != nil {
		return err
	}

	dates, err := discoverDates(ctx, g, shard1, shard2)
	if err != nil {
		return err
	}

	target := shard1
	if g.TargetShard == 2 {
		target = shard2
	}

	for _, date := range dates {
		aids, err := topKForDate(ctx, g, date, shard1, shard2)
		if err != nil {
			return err
		}
		if len(aids) == 0 {
			continue
		}
		if err := writeBack(ctx, g, date, aids, target); err != nil {
			return err
		}
	}
	return nil
}

func createTempTable(ctx context.Context, g Granularity, b BackendClient) error {
	table := g.tempTable()
	if err := b.ExecSqlDrop(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return ddbserrors.Wrap(ddbserrors.DbInternal, "drop temp table", err)
	}
	create := fmt.Sprintf(
		"CREATE TABLE %s AS SELECT aid, %s AS popularDate, count(uid) AS readNum FROM user_read GROUP BY popularDate, aid ORDER BY popularDate, readNum DESC",
		table, g.DateExpr,
	)
	if err := b.ExecSqlDrop(ctx, create); err != nil {
		return ddbserrors.Wrap(ddbserrors.DbInternal, "create temp table", err)
	}
	if err := b.ExecSqlDrop(ctx, fmt.Sprintf("CREATE INDEX %s_aid ON %s (aid)", table, table)); err != nil {
		return ddbserrors.Wrap(ddbserrors.DbInternal, "index temp table by aid", err)
	}
	if err := b.ExecSqlDrop(ctx, fmt.Sprintf("CREATE INDEX %s_date ON %s (popularDate)", table, table)); err != nil {
		return ddbserrors.Wrap(ddbserrors.DbInternal, "index temp table by date", err)
	}
	return nil
}

// discoverDates unions the distinct popularDate values present on
// either shard's temp table (§4.6, step 2).
func discoverDates(ctx context.Context, g Granularity, shard1, shard2 BackendClient) ([]string, error) {
	seen := make(map[string]struct{})
	for _, b := range []BackendClient{shard1, shard2} {
		rows, err := b.ExecSQL(ctx, "SELECT DISTINCT popularDate FROM "+g.tempTable())
		if err != nil {
			return nil, ddbserrors.Wrap(ddbserrors.DbInternal, "discover popular_rank dates", err)
		}
		for _, r := range rows {
			seen[textOf(r[0])] = struct{}{}
		}
	}
	dates := make([]string, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates, nil
}

// rankEntry is one candidate in the top-K min-heap: aid with its
// cross-shard summed readNum for a single date.
type rankEntry struct {
	aid   int64
	date  string
	score int64
}

// rankHeap is a min-heap ordered by ascending score so the root is
// always the current K-th best candidate, the one evicted first when
// a better one arrives. Ties are broken by aid then date, descending,
// so the heap root among equal scores is the entry extraction should
// rank last (§4.6 invariants).
type rankHeap []rankEntry

func (h rankHeap) Len() int { return len(h) }
func (h rankHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score < h[j].score
	}
	if h[i].aid != h[j].aid {
		return h[i].aid > h[j].aid
	}
	return h[i].date > h[j].date
}
func (h rankHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *rankHeap) Push(x any)        { *h = append(*h, x.(rankEntry)) }
func (h *rankHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

const sentinelCursor = int64(math.MaxInt64)

// topKForDate runs the round-robin batched streaming merge for one
// date and returns the K aids in descending score (§4.6, step 3).
func topKForDate(ctx context.Context, g Granularity, date string, shard1, shard2 BackendClient) ([]int64, error) {
	query := fmt.Sprintf("SELECT aid, popularDate, readNum FROM %s WHERE popularDate = %s ORDER BY readNum DESC", g.tempTable(), sqlArg(rowcodec.FromString(date)))

	ch1, errc1 := shard1.ExecSqlBatch(ctx, query, g.BatchSize)
	ch2, errc2 := shard2.ExecSqlBatch(ctx, query, g.BatchSize)

	sides := [2]<-chan []rowcodec.Row{ch1, ch2}
	errcs := [2]<-chan error{errc1, errc2}
	open := [2]bool{true, true}
	cursor := [2]int64{sentinelCursor, sentinelCursor}

	h := &rankHeap{}
	seen := make(map[int64]struct{})

	others := [2]BackendClient{shard2, shard1}

loop:
	for open[0] || open[1] {
		for s := 0; s < 2; s++ {
			if !open[s] {
				continue
			}

			if h.Len() == g.K && (*h)[0].score >= cursor[0]+cursor[1] && cursor[0] != sentinelCursor && cursor[1] != sentinelCursor {
				break loop
			}

			batch, ok := <-sides[s]
			if !ok {
				open[s] = false
				continue
			}
			if len(batch) > 0 {
				cursor[s] = batch[len(batch)-1][2].Int64
			}

			fresh := make([]rowcodec.Row, 0, len(batch))
			for _, row := range batch {
				aid := row[0].Int64
				if _, dup := seen[aid]; dup {
					continue
				}
				seen[aid] = struct{}{}
				fresh = append(fresh, row)
			}
			if len(fresh) == 0 {
				continue
			}

			aids := make([]int64, len(fresh))
			for i, row := range fresh {
				aids[i] = row[0].Int64
			}
			otherScores, err := otherSideReadNums(ctx, others[s], g, date, aids)
			if err != nil {
				return nil, err
			}

			for _, row := range fresh {
				aid := row[0].Int64
				own := row[2].Int64
				heap.Push(h, rankEntry{aid: aid, date: date, score: own + otherScores[aid]})
				for h.Len() > g.K {
					heap.Pop(h)
				}
			}
		}
	}

	for _, errc := range errcs {
		if err := <-errc; err != nil {
			return nil, ddbserrors.Wrap(ddbserrors.DbInternal, "stream popular_rank temp table", err)
		}
	}

	entries := make([]rankEntry, len(*h))
	copy(entries, *h)
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		if entries[i].aid != entries[j].aid {
			return entries[i].aid < entries[j].aid
		}
		return entries[i].date < entries[j].date
	})

	aids := make([]int64, len(entries))
	for i, e := range entries {
		aids[i] = e.aid
	}
	return aids, nil
}

// otherSideReadNums looks up readNum on the other shard for every aid
// in one batched query, returning 0 for any aid that shard has no row
// for (§4.6 step 3's "query the other side... if found, add it to
// this side's score"). Batching the lookup per round, rather than one
// query per aid, matches this file's batch-size-driven streaming
// convention elsewhere.
func otherSideReadNums(ctx context.Context, other BackendClient, g Granularity, date string, aids []int64) (map[int64]int64, error) {
	idList := make([]string, len(aids))
	for i, aid := range aids {
		idList[i] = fmt.Sprintf("%d", aid)
	}
	query := fmt.Sprintf("SELECT aid, readNum FROM %s WHERE popularDate = %s AND aid IN (%s)",
		g.tempTable(), sqlArg(rowcodec.FromString(date)), strings.Join(idList, ","))
	rows, err := other.ExecSQL(ctx, query)
	if err != nil {
		return nil, ddbserrors.Wrap(ddbserrors.DbInternal, "query other shard for popular_rank merge", err)
	}
	scores := make(map[int64]int64, len(rows))
	for _, row := range rows {
		scores[row[0].Int64] = row[1].Int64
	}
	return scores, nil
}

func writeBack(ctx context.Context, g Granularity, date string, aids []int64, target BackendClient) error {
	list := make([]string, len(aids))
	for i, aid := range aids {
		list[i] = fmt.Sprintf("%d", aid)
	}
	stmt := fmt.Sprintf(
		"INSERT INTO popular_rank (popularDate, temporalGranularity, articleAidList) VALUES (%s, %s, %s)",
		sqlArg(rowcodec.FromString(date)),
		sqlArg(rowcodec.FromString(g.Name)),
		sqlArg(rowcodec.FromString(strings.Join(list, ","))),
	)
	if err := target.ExecSqlDrop(ctx, stmt); err != nil {
		return ddbserrors.Wrap(ddbserrors.DbInternal, "write back popular_rank row", err)
	}
	return nil
}

func textOf(v rowcodec.Value) string {
	if v.Kind == rowcodec.KindBytes {
		return string(v.Bytes)
	}
	return fmt.Sprintf("%v", v.Int64)
}
