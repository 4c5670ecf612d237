package derive

import (
	"context"
	"fmt"
	"strings"

	"github.com/ddbsgo/ddbs/internal/ddbserrors"
	"github.com/ddbsgo/ddbs/internal/rowcodec"
)

// beReadBatchSize is the fixed cross-shard batch size for streaming
// be_read rows between backends (§4.5, step 2/3).
const beReadBatchSize = 20

const beReadSchema = `(
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	aid BIGINT NOT NULL,
	readNum BIGINT NOT NULL DEFAULT 0,
	readUidList TEXT,
	commentNum BIGINT NOT NULL DEFAULT 0,
	commentUidList TEXT,
	agreeNum BIGINT NOT NULL DEFAULT 0,
	agreeUidList TEXT,
	shareNum BIGINT NOT NULL DEFAULT 0,
	shareUidList TEXT,
	UNIQUE(aid)
)`

const beReadAggregation = `
SELECT
	aid,
	count(uid) AS readNum,
	GROUP_CONCAT(uid) AS readUidList,
	count(IF(commentOrNot=1,1,NULL)) AS commentNum,
	GROUP_CONCAT(IF(commentOrNot=1,uid,NULL)) AS commentUidList,
	count(IF(agreeOrNot=1,1,NULL)) AS agreeNum,
	GROUP_CONCAT(IF(agreeOrNot=1,uid,NULL)) AS agreeUidList,
	count(IF(shareOrNot=1,1,NULL)) AS shareNum,
	GROUP_CONCAT(IF(shareOrNot=1,uid,NULL)) AS shareUidList
FROM user_read
GROUP BY aid`

// BuildBeRead materializes be_read fully on shard2 and the
// shard2-aggregated copy on shard1 (§3's sharding policy, §4.5's
// algorithm). Any sub-step failure aborts and is surfaced unchanged;
// no rollback is attempted, matching the spec's tolerance for a
// partially populated, rerunnable build.
func BuildBeRead(ctx context.Context, shard1, shard2 BackendClient) error {
	if err := recreateBeRead(ctx, shard2); err != nil {
		return err
	}
	if err := shard2.ExecSqlDrop(ctx, "INSERT INTO be_read (aid, readNum, readUidList, commentNum, commentUidList, agreeNum, agreeUidList, shareNum, shareUidList) "+beReadAggregation); err != nil {
		return ddbserrors.Wrap(ddbserrors.DbInternal, "populate be_read on shard2 from its own user_read", err)
	}

	if err := mergeBatches(ctx, shard2 /*dest*/, shard1 /*source*/, beReadAggregation); err != nil {
		return err
	}

	if err := recreateBeRead(ctx, shard1); err != nil {
		return err
	}
	if err := mergeBatches(ctx, shard1 /*dest*/, shard2 /*source*/, "SELECT aid, readNum, readUidList, commentNum, commentUidList, agreeNum, agreeUidList, shareNum, shareUidList FROM be_read"); err != nil {
		return err
	}

	return nil
}

func recreateBeRead(ctx context.Context, b BackendClient) error {
	if err := b.ExecSqlDrop(ctx, "DROP TABLE IF EXISTS be_read"); err != nil {
		return ddbserrors.Wrap(ddbserrors.DbInternal, "drop be_read", err)
	}
	if err := b.ExecSqlDrop(ctx, "CREATE TABLE be_read "+beReadSchema); err != nil {
		return ddbserrors.Wrap(ddbserrors.DbInternal, "create be_read", err)
	}
	return nil
}

// mergeBatches streams rows for query from source in batches of
// beReadBatchSize and upserts each row into dest via the pre-installed
// insert_be_read stored procedure (§4.5, steps 2 and 3).
func mergeBatches(ctx context.Context, dest, source BackendClient, query string) error {
	batches, errc := source.ExecSqlBatch(ctx, query, beReadBatchSize)
	for batch := range batches {
		for _, row := range batch {
			if err := dest.ExecSqlDrop(ctx, insertBeReadCall(row)); err != nil {
				return ddbserrors.Wrap(ddbserrors.DbInternal, "call insert_be_read", err)
			}
		}
	}
	return drainErr(errc)
}

// insertBeReadCall renders a CALL to insert_be_read for one
// aggregated row, whose columns are (aid, readNum, readUidList,
// commentNum, commentUidList, agreeNum, agreeUidList, shareNum,
// shareUidList).
func insertBeReadCall(row rowcodec.Row) string {
	args := make([]string, len(row))
	for i, v := range row {
		args[i] = sqlArg(v)
	}
	return fmt.Sprintf("CALL insert_be_read(%s)", strings.Join(args, ", "))
}

// sqlArg renders one rowcodec.Value as a SQL literal suitable for a
// CALL argument list.
func sqlArg(v rowcodec.Value) string {
	switch v.Kind {
	case rowcodec.KindNull:
		return "NULL"
	case rowcodec.KindInt64:
		return fmt.Sprintf("%d", v.Int64)
	case rowcodec.KindUInt64:
		return fmt.Sprintf("%d", v.UInt64)
	case rowcodec.KindFloat32:
		return fmt.Sprintf("%v", v.Float32)
	case rowcodec.KindFloat64:
		return fmt.Sprintf("%v", v.Float64)
	default:
		return "'" + strings.ReplaceAll(string(v.Bytes), "'", "''") + "'"
	}
}
