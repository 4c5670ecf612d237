package backend

import (
	"context"

	"github.com/ddbsgo/ddbs/internal/ddbserrors"
)

// insertBeReadProcedure is installed on every backend at Init time
// (§4.5). It upserts one be_read row, adding counts and concatenating
// uid lists when a row for aid already exists, so that reads recorded
// on both shards merge into a single row on Shard 2.
const insertBeReadProcedure = `
CREATE PROCEDURE insert_be_read(
	IN p_aid BIGINT,
	IN p_read_num BIGINT,
	IN p_read_uid_list TEXT,
	IN p_comment_num BIGINT,
	IN p_comment_uid_list TEXT,
	IN p_agree_num BIGINT,
	IN p_agree_uid_list TEXT,
	IN p_share_num BIGINT,
	IN p_share_uid_list TEXT
)
BEGIN
	INSERT INTO be_read (aid, readNum, readUidList, commentNum, commentUidList, agreeNum, agreeUidList, shareNum, shareUidList)
	VALUES (p_aid, p_read_num, p_read_uid_list, p_comment_num, p_comment_uid_list, p_agree_num, p_agree_uid_list, p_share_num, p_share_uid_list)
	ON DUPLICATE KEY UPDATE
		readNum = readNum + VALUES(readNum),
		readUidList = CONCAT_WS(',', NULLIF(readUidList, ''), NULLIF(VALUES(readUidList), '')),
		commentNum = commentNum + VALUES(commentNum),
		commentUidList = CONCAT_WS(',', NULLIF(commentUidList, ''), NULLIF(VALUES(commentUidList), '')),
		agreeNum = agreeNum + VALUES(agreeNum),
		agreeUidList = CONCAT_WS(',', NULLIF(agreeUidList, ''), NULLIF(VALUES(agreeUidList), '')),
		shareNum = shareNum + VALUES(shareNum),
		shareUidList = CONCAT_WS(',', NULLIF(shareUidList, ''), NULLIF(VALUES(shareUidList), ''));
END`

// installProcedures (re-)installs insert_be_read, dropping any
// previous definition first so Init stays idempotent across process
// restarts against an already-initialized database.
func (e *Executor) installProcedures(ctx context.Context) error {
	if _, err := e.db.ExecContext(ctx, "DROP PROCEDURE IF EXISTS insert_be_read"); err != nil {
		return ddbserrors.Wrap(ddbserrors.DbInternal, "drop insert_be_read procedure", err)
	}
	if _, err := e.db.ExecContext(ctx, insertBeReadProcedure); err != nil {
		return ddbserrors.Wrap(ddbserrors.DbInternal, "install insert_be_read procedure", err)
	}
	return nil
}
