// Package sqlserver provides the SQL Server implementation of
// database.Connector on top of github.com/microsoft/go-mssqldb.
//
// Each connect opens exactly one TDS connection and pins it, so the
// returned handle is a single exclusive session rather than a pool.
//
// Usage:
//
//	connector := sqlserver.NewConnector(sqlserver.WithLogger(log))
//	conn, err := connector.Connect(ctx, descriptor)
//	if err != nil { ... }
//	defer conn.Close()
package sqlserver

import (
	"context"
	"database/sql"
	"time"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/logger"
)

const defaultDialTimeout = 15 * time.Second

// Connector opens SQL Server connections. It is safe for concurrent use.
type Connector struct {
	log         *logger.Logger
	dialTimeout time.Duration
}

// Option configures a Connector.
type Option func(*Connector)

// WithLogger sets the logger used for connect diagnostics.
func WithLogger(l *logger.Logger) Option {
	return func(c *Connector) { c.log = l }
}

// WithDialTimeout bounds each TCP dial. Zero keeps the default.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Connector) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

// NewConnector returns a Connector with the given options applied.
func NewConnector(opts ...Option) *Connector {
	c := &Connector{log: logger.Nop(), dialTimeout: defaultDialTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect opens a connection described by d.
func (c *Connector) Connect(ctx context.Context, d database.Descriptor) (database.Conn, error) {
	cfg, err := FromDescriptor(d)
	if err != nil {
		return nil, err
	}
	return c.open(ctx, cfg, "descriptor")
}

// ConnectString opens a connection from a JDBC- or ADO-style string.
func (c *Connector) ConnectString(ctx context.Context, connString string) (database.Conn, error) {
	cfg, style, err := ParseOverride(connString)
	if err != nil {
		return nil, err
	}
	return c.open(ctx, cfg, style.String())
}

func (c *Connector) open(ctx context.Context, cfg msdsn.Config, source string) (database.Conn, error) {
	log := c.log.With().
		Str("host", cfg.Host).
		Str("instance", cfg.Instance).
		Str("database", cfg.Database).
		Str("source", source).
		Logger()

	dialer := &recordingDialer{}
	dialer.Timeout = c.dialTimeout

	connector := mssql.NewConnectorConfig(cfg)
	connector.Dialer = dialer

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	start := time.Now()

	// Conn dials and logs in; the session keeps this one connection.
	sc, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		mapped := mapConnectError(err, dialer.err())
		// Reported at warn level by the session that asked for it.
		log.With().Err(mapped).Logger().Debug("connect attempt failed")
		return nil, mapped
	}

	log.With().Dur("elapsed", time.Since(start)).Logger().Debug("connected")
	return &conn{db: db, conn: sc}, nil
}

// conn pins one *sql.Conn of a single-connection *sql.DB.
type conn struct {
	db   *sql.DB
	conn *sql.Conn
}

// Query sends text as a single batch without parameters.
func (c *conn) Query(ctx context.Context, text string) (database.Rows, error) {
	rows, err := c.conn.QueryContext(ctx, text)
	if err != nil {
		return nil, mapError(err)
	}
	return &sqlRows{rows: rows}, nil
}

func (c *conn) Close() error {
	err := c.conn.Close()
	if dbErr := c.db.Close(); err == nil {
		err = dbErr
	}
	return err
}

// --- sql.Rows wrapper ---

type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Columns() ([]database.Column, error) {
	types, err := r.rows.ColumnTypes()
	if err != nil {
		return nil, mapError(err)
	}
	cols := make([]database.Column, len(types))
	for i, t := range types {
		cols[i] = database.Column{
			Name:         t.Name(),
			Kind:         KindOf(t.DatabaseTypeName()),
			DatabaseType: t.DatabaseTypeName(),
		}
	}
	return cols, nil
}

func (r *sqlRows) Next() bool { return r.rows.Next() }

func (r *sqlRows) Scan(dest ...any) error { return mapError(r.rows.Scan(dest...)) }

func (r *sqlRows) NextResultSet() bool { return r.rows.NextResultSet() }

func (r *sqlRows) Close() { _ = r.rows.Close() }

func (r *sqlRows) Err() error { return mapError(r.rows.Err()) }
