// Package dbtest provides in-memory implementations of the database
// interfaces for tests.
//
// Usage:
//
//	conn := dbtest.NewConn()
//	conn.Respond("SELECT 1", dbtest.Result(dbtest.Set([]database.Column{{Name: "n", Kind: database.KindInt32}}, []any{int64(1)})))
//	connector := &dbtest.Connector{Conn: conn}
package dbtest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/koustreak/sqlgate/internal/database"
)

// Connector is a database.Connector that hands out a preconfigured Conn.
type Connector struct {
	// Conn is returned by every successful connect. When nil, a fresh
	// NewConn is created per call.
	Conn *Conn

	// Err, when set, is returned instead of a connection.
	Err error

	// Block, when set, is waited on before a connect returns.
	Block chan struct{}

	mu          sync.Mutex
	descriptors []database.Descriptor
	strings     []string
}

func (c *Connector) Connect(ctx context.Context, d database.Descriptor) (database.Conn, error) {
	c.mu.Lock()
	c.descriptors = append(c.descriptors, d)
	c.mu.Unlock()
	return c.open(ctx)
}

func (c *Connector) ConnectString(ctx context.Context, s string) (database.Conn, error) {
	c.mu.Lock()
	c.strings = append(c.strings, s)
	c.mu.Unlock()
	return c.open(ctx)
}

func (c *Connector) open(ctx context.Context) (database.Conn, error) {
	if c.Block != nil {
		select {
		case <-c.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.Err != nil {
		return nil, c.Err
	}
	if c.Conn != nil {
		c.Conn.closed.Store(false)
		return c.Conn, nil
	}
	return NewConn(), nil
}

// Descriptors returns every descriptor passed to Connect.
func (c *Connector) Descriptors() []database.Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]database.Descriptor(nil), c.descriptors...)
}

// Strings returns every connection string passed to ConnectString.
func (c *Connector) Strings() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.strings...)
}

// Response is the canned outcome of one query text.
type Response struct {
	Sets []database.RawResultSet
	Err  error

	// Hook runs while the query is in flight, before results are returned.
	Hook func(ctx context.Context) error
}

// Result builds a successful Response.
func Result(sets ...database.RawResultSet) Response {
	return Response{Sets: sets}
}

// Set builds a RawResultSet from columns and rows.
func Set(columns []database.Column, rows ...[]any) database.RawResultSet {
	if rows == nil {
		rows = [][]any{}
	}
	return database.RawResultSet{Columns: columns, Rows: rows}
}

// ErrUnknownQuery is returned for query texts without a canned response.
var ErrUnknownQuery = errors.New("dbtest: no response for query")

// Conn is an in-memory database.Conn.
type Conn struct {
	mu        sync.Mutex
	responses map[string]Response
	queries   []string

	closed   atomic.Bool
	closes   atomic.Int32
	CloseErr error
}

func NewConn() *Conn {
	return &Conn{responses: make(map[string]Response)}
}

// Respond registers the response for text.
func (c *Conn) Respond(text string, r Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses[text] = r
}

func (c *Conn) Query(ctx context.Context, text string) (database.Rows, error) {
	if c.closed.Load() {
		return nil, errors.New("dbtest: connection closed")
	}

	c.mu.Lock()
	c.queries = append(c.queries, text)
	r, ok := c.responses[text]
	c.mu.Unlock()

	if !ok {
		return nil, ErrUnknownQuery
	}
	if r.Hook != nil {
		if err := r.Hook(ctx); err != nil {
			return nil, err
		}
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return NewRows(r.Sets...), nil
}

func (c *Conn) Close() error {
	c.closed.Store(true)
	c.closes.Add(1)
	return c.CloseErr
}

// Closed reports whether Close was called since the last connect.
func (c *Conn) Closed() bool { return c.closed.Load() }

// Closes returns how many times Close was called.
func (c *Conn) Closes() int { return int(c.closes.Load()) }

// Queries returns every query text received, in order.
func (c *Conn) Queries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queries...)
}

// Rows is an in-memory database.Rows over a fixed list of result sets.
type Rows struct {
	sets   []database.RawResultSet
	set    int
	row    int
	closed bool

	// ScanErr, when set, is returned by every Scan.
	ScanErr error
	// IterErr, when set, is returned by Err.
	IterErr error
}

func NewRows(sets ...database.RawResultSet) *Rows {
	return &Rows{sets: sets, row: -1}
}

func (r *Rows) Columns() ([]database.Column, error) {
	if r.set >= len(r.sets) {
		return nil, nil
	}
	return r.sets[r.set].Columns, nil
}

func (r *Rows) Next() bool {
	if r.closed || r.set >= len(r.sets) {
		return false
	}
	r.row++
	return r.row < len(r.sets[r.set].Rows)
}

func (r *Rows) Scan(dest ...any) error {
	if r.ScanErr != nil {
		return r.ScanErr
	}
	if r.set >= len(r.sets) || r.row < 0 || r.row >= len(r.sets[r.set].Rows) {
		return errors.New("dbtest: scan without row")
	}
	row := r.sets[r.set].Rows[r.row]
	if len(dest) != len(row) {
		return errors.New("dbtest: column count mismatch")
	}
	for i, d := range dest {
		p, ok := d.(*any)
		if !ok {
			return errors.New("dbtest: destination must be *any")
		}
		*p = row[i]
	}
	return nil
}

func (r *Rows) NextResultSet() bool {
	if r.closed || r.set+1 >= len(r.sets) {
		return false
	}
	r.set++
	r.row = -1
	return true
}

func (r *Rows) Close() { r.closed = true }

// IsClosed reports whether Close was called.
func (r *Rows) IsClosed() bool { return r.closed }

func (r *Rows) Err() error { return r.IterErr }
