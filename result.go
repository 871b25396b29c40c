package pgwire

import (
	"strings"

	"github.com/pgwireclient/pgwire/internal/protocol"
	"github.com/pgwireclient/pgwire/internal/types"
	"github.com/pgwireclient/pgwire/internal/wire"
)

// ColumnFormat mirrors the RowDescription format code (spec.md §3).
type ColumnFormat int16

const (
	FormatText   ColumnFormat = 0
	FormatBinary ColumnFormat = 1
)

// Column describes one field of a result set's RowDescription.
type Column struct {
	Name      string
	TableOID  int32
	AttrIndex int16
	TypeOID   int32
	TypeSize  int16
	TypeMod   int32
	Format    ColumnFormat
}

func columnsFromWire(cols []wire.Column) []Column {
	out := make([]Column, len(cols))
	for i, c := range cols {
		out[i] = Column{
			Name: c.Name, TableOID: c.TableOID, AttrIndex: c.AttrIndex,
			TypeOID: c.TypeOID, TypeSize: c.TypeSize, TypeMod: c.TypeMod,
			Format: ColumnFormat(c.Format),
		}
	}
	return out
}

// Notice is the public form of a backend Notice/ErrorResponse payload.
type Notice = wire.Notice

// QueryResult is the materialized outcome of one query, per spec.md §3.
// Exactly one of Rows (ResultArray) or ObjectRows (ResultObject) is
// populated, matching the Query's ResultMode.
type QueryResult struct {
	Command        string
	RowCount       int64
	HasRowCount    bool
	Warnings       []Notice
	RowDescription []Column
	Columns        []string // resolved object-mode column names

	Rows       [][]any          // ResultArray
	ObjectRows []map[string]any // ResultObject
}

// materializeResult converts a protocol.QueryOutcome into a QueryResult
// using the value codec, per the query's requested ResultMode.
func materializeResult(outcome *protocol.QueryOutcome, q Query) (*QueryResult, error) {
	cols := columnsFromWire(outcome.RowDescription)
	res := &QueryResult{
		Command:        outcome.Command.Command,
		RowCount:       outcome.Command.RowCount,
		HasRowCount:    outcome.Command.HasCount,
		Warnings:       outcome.Warnings,
		RowDescription: cols,
	}

	decoded := make([][]any, len(outcome.Rows))
	for i, row := range outcome.Rows {
		vals := make([]any, len(row))
		for j, raw := range row {
			if raw == nil {
				continue
			}
			if j >= len(cols) {
				return nil, &ResultShapeError{Reason: "data row has more columns than RowDescription"}
			}
			v, err := types.Decode(cols[j].TypeOID, raw)
			if err != nil {
				return nil, err
			}
			vals[j] = v
		}
		decoded[i] = vals
	}

	switch q.ResultMode {
	case ResultArray:
		res.Rows = decoded
		return res, nil
	case ResultObject:
		names, err := resolveObjectColumns(q, cols)
		if err != nil {
			return nil, err
		}
		res.Columns = names
		res.ObjectRows = make([]map[string]any, len(decoded))
		for i, vals := range decoded {
			m := make(map[string]any, len(names))
			for j, name := range names {
				if j < len(vals) {
					m[name] = vals[j]
				}
			}
			res.ObjectRows[i] = m
		}
		return res, nil
	default:
		res.Rows = decoded
		return res, nil
	}
}

// resolveObjectColumns implements spec.md §4.8: explicit Fields override
// RowDescription; otherwise use RowDescription names, optionally
// snake→camel translated; duplicate names raise ResultShapeError.
func resolveObjectColumns(q Query, cols []Column) ([]string, error) {
	var names []string
	if len(q.Fields) > 0 {
		if len(q.Fields) != len(cols) {
			return nil, &ResultShapeError{Reason: "fields length does not match RowDescription column count"}
		}
		names = append([]string(nil), q.Fields...)
	} else {
		names = make([]string, len(cols))
		for i, c := range cols {
			if q.Camelcase {
				names[i] = SnakeToCamel(c.Name)
			} else {
				names[i] = c.Name
			}
		}
	}
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			return nil, &ResultShapeError{Reason: "duplicate column name " + n}
		}
		seen[n] = struct{}{}
	}
	return names, nil
}

// SnakeToCamel converts a snake_case identifier to lowerCamelCase. It is
// idempotent: SnakeToCamel(SnakeToCamel(x)) == SnakeToCamel(x), since a
// string with no underscores is returned unchanged.
func SnakeToCamel(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}
	parts := strings.Split(s, "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
