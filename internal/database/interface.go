package database

import "context"

// Connector turns connection settings into a live, exclusively owned Conn.
// It performs the network connect and the login handshake.
type Connector interface {
	// Connect opens a connection described by d.
	Connect(ctx context.Context, d Descriptor) (Conn, error)

	// ConnectString opens a connection from a raw JDBC- or ADO-style
	// connection string that replaces the default descriptor.
	ConnectString(ctx context.Context, connString string) (Conn, error)
}

// Conn is a single live connection handle. It is not safe for concurrent
// use; the session package serializes every call.
type Conn interface {
	// Query sends text as one batch and returns its result sets.
	Query(ctx context.Context, text string) (Rows, error)

	// Close releases the connection.
	Close() error
}

// Rows is an abstraction over the result sets of one batch.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Columns describes the columns of the current result set.
	// A statement that produced no table reports zero columns.
	Columns() ([]Column, error)

	// Next advances to the next row of the current result set.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// NextResultSet advances to the next result set of the batch.
	NextResultSet() bool

	// Close releases resources held by the result sets.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}

// ColumnKind is the provider-neutral class of a column type. It decides how
// cells of that column are normalized.
type ColumnKind int

const (
	KindUnsupported ColumnKind = iota
	KindBinary
	KindBool
	KindInt16
	KindInt32
	KindInt64
	KindDecimal
	KindFloat32
	KindFloat64
	KindString
)

func (k ColumnKind) String() string {
	switch k {
	case KindBinary:
		return "binary"
	case KindBool:
		return "bool"
	case KindInt16:
		return "int16"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindDecimal:
		return "decimal"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	default:
		return "unsupported"
	}
}

// Column describes one column of a result set.
type Column struct {
	Name string
	Kind ColumnKind

	// DatabaseType is the provider type name, e.g. "NVARCHAR".
	DatabaseType string
}
