// Package backend: see backend.go for the Executor type and its RPC
// surface (ExecSQL, ExecSqlFirst, ExecSqlDrop, ExecSqlBatch,
// StreamExecSql), scan.go for row decoding, and procedures.go for the
// be_read merge stored procedure installed at Init time.
package backend
