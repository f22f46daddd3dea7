package sqlserver

import (
	"strings"

	"github.com/koustreak/sqlgate/internal/database"
)

// columnKinds maps SQL Server type names, as reported by the driver's
// DatabaseTypeName, to normalization classes. Types not listed here
// (dates, times, GUIDs, XML, sql_variant, …) are unsupported.
var columnKinds = map[string]database.ColumnKind{
	"BIT": database.KindBool,

	"TINYINT":  database.KindInt16,
	"SMALLINT": database.KindInt16,
	"INT":      database.KindInt32,
	"BIGINT":   database.KindInt64,

	"DECIMAL": database.KindDecimal,
	"NUMERIC": database.KindDecimal,

	"REAL":       database.KindFloat32,
	"FLOAT":      database.KindFloat64,
	"MONEY":      database.KindFloat64,
	"SMALLMONEY": database.KindFloat64,

	"CHAR":     database.KindString,
	"VARCHAR":  database.KindString,
	"NCHAR":    database.KindString,
	"NVARCHAR": database.KindString,
	"TEXT":     database.KindString,
	"NTEXT":    database.KindString,

	"BINARY":    database.KindBinary,
	"VARBINARY": database.KindBinary,
	"IMAGE":     database.KindBinary,
}

// KindOf returns the normalization class for a SQL Server type name.
func KindOf(typeName string) database.ColumnKind {
	name := strings.ToUpper(strings.TrimSpace(typeName))
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	if k, ok := columnKinds[name]; ok {
		return k
	}
	return database.KindUnsupported
}
