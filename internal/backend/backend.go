// Package backend implements the backend node's SQL executor: a
// pooled database/sql connection to MySQL, guarded by a weighted
// semaphore, exposing the fixed RPC surface the control node drives
// over internal/rpcwire (§4.7, §6.2).
package backend

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	"github.com/go-sql-driver/mysql"
	"golang.org/x/sync/semaphore"

	"github.com/ddbsgo/ddbs/internal/config"
	"github.com/ddbsgo/ddbs/internal/ddbserrors"
	"github.com/ddbsgo/ddbs/internal/rowcodec"
)

// Executor runs SQL against one backend's MySQL instance. A single
// Executor is created per process; concurrency is bounded by sem, not
// by one lock per table (§9: no fine-grained locking).
type Executor struct {
	db       *sql.DB
	sem      *semaphore.Weighted
	procOnce sync.Once
	procErr  error
	loadCfg  config.BulkLoadSection

	initMu    sync.Mutex
	initShard int // 0 means not yet initialized
}

// Open connects to cfg.Dsn and configures the pool per cfg.Pool.
func Open(cfg *config.BackendConfig) (*Executor, error) {
	db, err := sql.Open("mysql", cfg.Dsn)
	if err != nil {
		return nil, ddbserrors.Wrap(ddbserrors.DbInternal, "open mysql connection", err)
	}
	db.SetMaxOpenConns(cfg.Pool.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Pool.MaxIdleConns)

	weight := int64(cfg.Pool.MaxOpenConns)
	if weight < 1 {
		weight = 1
	}

	return &Executor{
		db:      db,
		sem:     semaphore.NewWeighted(weight),
		loadCfg: cfg.Load,
	}, nil
}

// Close releases the underlying connection pool.
func (e *Executor) Close() error {
	return e.db.Close()
}

// Init installs the be_read merge stored procedure and records which
// shard this backend serves. It is idempotent when called again with
// the same shard; called with a different one, it fails with
// Initialized (§4.7).
func (e *Executor) Init(ctx context.Context, shard int) error {
	e.initMu.Lock()
	defer e.initMu.Unlock()

	if e.initShard != 0 {
		if e.initShard != shard {
			return ddbserrors.Newf(ddbserrors.Initialized, "backend already initialized for shard %d", e.initShard)
		}
		return e.procErr
	}

	e.procOnce.Do(func() {
		e.procErr = e.installProcedures(ctx)
	})
	if e.procErr == nil {
		e.initShard = shard
	}
	return e.procErr
}

// bulkFile maps a base table name to its configured CSV load path.
func (e *Executor) bulkFile(table string) (string, error) {
	switch table {
	case "user":
		return e.loadCfg.UserFile, nil
	case "article":
		return e.loadCfg.ArticleFile, nil
	case "user_read":
		return e.loadCfg.UserReadFile, nil
	default:
		return "", ddbserrors.Newf(ddbserrors.InvalidArg, "no bulk load file configured for table %q", table)
	}
}

// BulkLoad loads table's configured CSV file via MySQL's LOAD DATA
// LOCAL INFILE, registering the path with the driver's local-file
// allowlist for the duration of the load.
func (e *Executor) BulkLoad(ctx context.Context, table string) error {
	path, err := e.bulkFile(table)
	if err != nil {
		return err
	}
	if path == "" {
		return ddbserrors.Newf(ddbserrors.ConfigError, "bulk load file for table %q is not configured", table)
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return ddbserrors.Wrap(ddbserrors.Io, "acquire executor semaphore", err)
	}
	defer e.sem.Release(1)

	mysql.RegisterLocalFile(path)
	defer mysql.DeregisterLocalFile(path)

	if _, err := os.Stat(path); err != nil {
		return ddbserrors.Wrap(ddbserrors.Io, fmt.Sprintf("stat bulk load file %s", path), err)
	}

	query := fmt.Sprintf("LOAD DATA LOCAL INFILE '%s' INTO TABLE %s FIELDS TERMINATED BY ',' ENCLOSED BY '\"' LINES TERMINATED BY '\\n'", path, table)
	if _, err := e.db.ExecContext(ctx, query); err != nil {
		return ddbserrors.Wrap(ddbserrors.DbInternal, fmt.Sprintf("bulk load table %s", table), err)
	}
	return nil
}

// ExecSQL runs sql against the backend, returning the rows it
// produced (empty for statements with no result set) encoded as
// rowcodec rows.
func (e *Executor) ExecSQL(ctx context.Context, sql string) ([]rowcodec.Row, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, ddbserrors.Wrap(ddbserrors.Io, "acquire executor semaphore", err)
	}
	defer e.sem.Release(1)
	return e.execLocked(ctx, sql)
}

// ExecSqlFirst runs sql and returns only its first row, or nil if the
// result set is empty.
func (e *Executor) ExecSqlFirst(ctx context.Context, query string) (rowcodec.Row, error) {
	rows, err := e.ExecSQL(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ExecSqlDrop runs sql for its side effect only (DDL, DML with no
// interesting result set).
func (e *Executor) ExecSqlDrop(ctx context.Context, sql string) error {
	_, err := e.ExecSQL(ctx, sql)
	return err
}

// ExecSqlBatch runs query and streams its rows grouped into batches of
// up to batchSize, used by the derived-table builders so a large scan
// (e.g. be_read's per-shard aggregation) crosses the RPC boundary in
// fixed-size chunks instead of one row or one giant payload at a time
// (§4.5, §4.6). The channel is closed when the scan ends; a non-nil
// error is sent on errc exactly once, if any.
func (e *Executor) ExecSqlBatch(ctx context.Context, query string, batchSize int) (<-chan []rowcodec.Row, <-chan error) {
	out := make(chan []rowcodec.Row, 4)
	errc := make(chan error, 1)

	rows, errs := e.StreamExecSql(ctx, query)

	go func() {
		defer close(out)
		defer close(errc)

		batch := make([]rowcodec.Row, 0, batchSize)
		flush := func() bool {
			if len(batch) == 0 {
				return true
			}
			select {
			case out <- batch:
				batch = make([]rowcodec.Row, 0, batchSize)
				return true
			case <-ctx.Done():
				errc <- ctx.Err()
				return false
			}
		}

		for row := range rows {
			batch = append(batch, row)
			if len(batch) >= batchSize {
				if !flush() {
					return
				}
			}
		}
		if !flush() {
			return
		}
		if err := <-errs; err != nil {
			errc <- err
		}
	}()

	return out, errc
}

// StreamExecSql runs query and streams its rows over the returned
// channel with a small bound, so a large scan (e.g. popular_rank's
// per-date cursor) never buffers its full result set in memory. The
// channel is closed when the scan ends or ctx is canceled; a non-nil
// error is sent on errc exactly once, if any.
func (e *Executor) StreamExecSql(ctx context.Context, query string) (<-chan rowcodec.Row, <-chan error) {
	out := make(chan rowcodec.Row, 64)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		if err := e.sem.Acquire(ctx, 1); err != nil {
			errc <- ddbserrors.Wrap(ddbserrors.Io, "acquire executor semaphore", err)
			return
		}
		defer e.sem.Release(1)

		rows, err := e.db.QueryContext(ctx, query)
		if err != nil {
			errc <- ddbserrors.Wrap(ddbserrors.DbInternal, "stream query", err)
			return
		}
		defer rows.Close()

		cols, err := rows.ColumnTypes()
		if err != nil {
			errc <- ddbserrors.Wrap(ddbserrors.DbInternal, "read column types", err)
			return
		}

		for rows.Next() {
			row, err := scanRow(rows, cols)
			if err != nil {
				errc <- err
				return
			}
			select {
			case out <- row:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		if err := rows.Err(); err != nil {
			errc <- ddbserrors.Wrap(ddbserrors.DbInternal, "row iteration", err)
		}
	}()

	return out, errc
}

func (e *Executor) execLocked(ctx context.Context, query string) ([]rowcodec.Row, error) {
	if !isQuery(query) {
		if _, err := e.db.ExecContext(ctx, query); err != nil {
			return nil, ddbserrors.Wrap(ddbserrors.DbInternal, "execute statement", err)
		}
		return nil, nil
	}

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, ddbserrors.Wrap(ddbserrors.DbInternal, "execute query", err)
	}
	defer rows.Close()

	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, ddbserrors.Wrap(ddbserrors.DbInternal, "read column types", err)
	}

	var out []rowcodec.Row
	for rows.Next() {
		row, err := scanRow(rows, cols)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, ddbserrors.Wrap(ddbserrors.DbInternal, "row iteration", err)
	}
	return out, nil
}

func isQuery(sql string) bool {
	for _, c := range sql {
		switch c {
		case ' ', '\t', '\n', '\r', '(':
			continue
		case 'S', 's':
			return true
		default:
			return false
		}
	}
	return false
}
