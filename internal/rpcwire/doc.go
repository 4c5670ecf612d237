// Package rpcwire implements the bespoke framed TCP protocol that
// carries both RPC surfaces of §6: the control node's Register /
// ListServerStatus / ClusterInit / GenerateBeReadTable /
// GeneratePopularTable / Exec / GetArticle, and a backend's
// Init / BulkLoad / ExecSql / ExecSqlFirst / ExecSqlDrop /
// ExecSqlBatch / StreamExecSql. Every call is one length-prefixed
// frame out and one or more length-prefixed frames back over a
// plain net.Conn, following the teacher's own hand-rolled protocols
// in internal/server/localserver and internal/server/redisserver
// rather than pulling in a general-purpose RPC framework for an
// internal-only channel.
package rpcwire
