package database

import "github.com/koustreak/sqlgate/internal/errs"

// RawResultSet is one tabular result of a batch, exactly as the driver
// produced it.
type RawResultSet struct {
	Columns []Column
	Rows    [][]any
}

// ScanResultSets reads every result set from rows into memory. Result sets
// without columns (from INSERT, SET, …) are skipped.
//
// The returned slice is always non-nil. ScanResultSets always closes the
// Rows; callers do not need to call Close().
func ScanResultSets(rows Rows) ([]RawResultSet, error) {
	defer rows.Close()

	sets := make([]RawResultSet, 0)

	for {
		columns, err := rows.Columns()
		if err != nil {
			return nil, errs.Classify(errs.ErrKindQueryFailed, err)
		}

		if len(columns) > 0 {
			set, err := scanRows(rows, columns)
			if err != nil {
				return nil, err
			}
			sets = append(sets, set)
		}

		if !rows.NextResultSet() {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, errs.Classify(errs.ErrKindQueryFailed, err)
	}

	return sets, nil
}

func scanRows(rows Rows, columns []Column) (RawResultSet, error) {
	set := RawResultSet{Columns: columns, Rows: make([][]any, 0)}

	for rows.Next() {
		// Allocate scan targets as *any so the driver can write any type.
		dest := make([]any, len(columns))
		destPtrs := make([]any, len(columns))
		for i := range dest {
			destPtrs[i] = &dest[i]
		}

		if err := rows.Scan(destPtrs...); err != nil {
			return RawResultSet{}, errs.Classify(errs.ErrKindQueryFailed, err)
		}
		set.Rows = append(set.Rows, dest)
	}

	if err := rows.Err(); err != nil {
		return RawResultSet{}, errs.Classify(errs.ErrKindQueryFailed, err)
	}
	return set, nil
}
