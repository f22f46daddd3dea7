package database

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/koustreak/sqlgate/internal/errs"
)

// Sentinel texts for cells that are flagged rather than rendered.
const (
	BinarySentinel      = "<binary data>"
	UnsupportedSentinel = "<unsupported type>"
)

// Record is one normalized row. Column names keep the order in which they
// first appeared; a repeated name overwrites the earlier value in place.
type Record struct {
	keys   []string
	values map[string]string
}

// NewRecord returns an empty record sized for n columns.
func NewRecord(n int) Record {
	return Record{keys: make([]string, 0, n), values: make(map[string]string, n)}
}

// Set stores value under name.
func (r *Record) Set(name, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[name]; !ok {
		r.keys = append(r.keys, name)
	}
	r.values[name] = value
}

// Get returns the value stored under name.
func (r Record) Get(name string) (string, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Keys returns the column names in first-occurrence order.
func (r Record) Keys() []string {
	return append([]string(nil), r.keys...)
}

func (r Record) Len() int { return len(r.keys) }

// Map returns a copy of the record as a plain map.
func (r Record) Map() map[string]string {
	m := make(map[string]string, len(r.values))
	for k, v := range r.values {
		m[k] = v
	}
	return m
}

// MarshalJSON encodes the record as a JSON object with keys in column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of strings, keeping key order.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("record: expected object, got %v", tok)
	}
	*r = NewRecord(0)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var val string
		if err := dec.Decode(&val); err != nil {
			return err
		}
		r.Set(key, val)
	}
	_, err = dec.Token()
	return err
}

// ResultSet is one normalized tabular result: an ordered list of records.
type ResultSet []Record

// Normalize converts raw result sets into their text form, preserving the
// order of result sets, rows and columns.
func Normalize(sets []RawResultSet) ([]ResultSet, error) {
	out := make([]ResultSet, 0, len(sets))
	for _, set := range sets {
		rs := make(ResultSet, 0, len(set.Rows))
		for _, row := range set.Rows {
			rec := NewRecord(len(set.Columns))
			for i, col := range set.Columns {
				var v any
				if i < len(row) {
					v = row[i]
				}
				text, err := NormalizeValue(col.Kind, v)
				if err != nil {
					return nil, errs.Wrap(errs.ErrKindNormalization,
						fmt.Sprintf("column %q: %s", col.Name, errs.Message(err)), err)
				}
				rec.Set(col.Name, text)
			}
			rs = append(rs, rec)
		}
		out = append(out, rs)
	}
	return out, nil
}

// NormalizeValue converts one cell to text. v is nil for SQL NULL.
//
// Binary cells are never rendered, only flagged. NULL becomes the zero
// value of its kind, except for decimals where NULL is an error. A value
// whose Go type does not fit its column kind degrades to
// UnsupportedSentinel instead of failing the result.
func NormalizeValue(kind ColumnKind, v any) (string, error) {
	switch kind {
	case KindBinary:
		return BinarySentinel, nil
	case KindBool:
		if v == nil {
			return "false", nil
		}
		if b, ok := v.(bool); ok {
			return strconv.FormatBool(b), nil
		}
	case KindInt16, KindInt32, KindInt64:
		if v == nil {
			return "0", nil
		}
		if s, ok := formatInt(v); ok {
			return s, nil
		}
	case KindDecimal:
		if v == nil {
			return "", errs.New(errs.ErrKindNormalization, "NULL is not a valid decimal value")
		}
		if s, ok := formatDecimal(v); ok {
			return s, nil
		}
	case KindFloat32:
		if v == nil {
			return "0", nil
		}
		if s, ok := formatFloat(v, 32); ok {
			return s, nil
		}
	case KindFloat64:
		if v == nil {
			return "0", nil
		}
		if s, ok := formatFloat(v, 64); ok {
			return s, nil
		}
	case KindString:
		switch s := v.(type) {
		case nil:
			return "", nil
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
	}
	return UnsupportedSentinel, nil
}

func formatInt(v any) (string, bool) {
	switch n := v.(type) {
	case int64:
		return strconv.FormatInt(n, 10), true
	case int32:
		return strconv.FormatInt(int64(n), 10), true
	case int16:
		return strconv.FormatInt(int64(n), 10), true
	case int8:
		return strconv.FormatInt(int64(n), 10), true
	case int:
		return strconv.Itoa(n), true
	case uint8:
		return strconv.FormatUint(uint64(n), 10), true
	}
	return "", false
}

// formatDecimal keeps the provider's decimal text, which carries the
// column scale (e.g. "12.3400").
func formatDecimal(v any) (string, bool) {
	switch d := v.(type) {
	case []byte:
		return string(d), true
	case string:
		return d, true
	case float64:
		return strconv.FormatFloat(d, 'f', -1, 64), true
	case fmt.Stringer:
		return d.String(), true
	}
	return formatInt(v)
}

// formatFloat renders the shortest decimal text that round-trips, never
// in exponent form. Money columns arrive as decimal text.
func formatFloat(v any, bits int) (string, bool) {
	switch f := v.(type) {
	case float64:
		return strconv.FormatFloat(f, 'f', -1, bits), true
	case float32:
		return strconv.FormatFloat(float64(f), 'f', -1, 32), true
	case []byte:
		return parseFloatText(string(f), bits)
	case string:
		return parseFloatText(f, bits)
	}
	return "", false
}

func parseFloatText(s string, bits int) (string, bool) {
	f, err := strconv.ParseFloat(s, bits)
	if err != nil {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, bits), true
}

// EncodeRecordsets renders result sets as {"recordsets": [[{...}, …], …]}.
func EncodeRecordsets(sets []ResultSet) ([]byte, error) {
	out := make([]ResultSet, len(sets))
	for i, rs := range sets {
		if rs == nil {
			rs = ResultSet{}
		}
		out[i] = rs
	}
	return json.Marshal(struct {
		Recordsets []ResultSet `json:"recordsets"`
	}{Recordsets: out})
}
