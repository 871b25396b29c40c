package pgwire

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pgwireclient/pgwire/internal/types"
)

// ResultMode selects how QueryResult materializes rows (spec.md §3).
type ResultMode int

const (
	ResultArray ResultMode = iota
	ResultObject
)

var fieldNameRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Query is one request: text with `$n` placeholders, already-ordered
// argument values, and the result-materialization mode. Construct one
// with NewQuery or QueryFromTemplate.
type Query struct {
	Text       string
	Args       []any
	ResultMode ResultMode

	// Fields, when non-empty, overrides the object-mode column names
	// instead of using RowDescription (spec.md §4.8).
	Fields []string

	// Camelcase converts snake_case RowDescription column names to
	// camelCase when Fields is not set.
	Camelcase bool
}

// NewQuery builds a Query in array mode. Use WithFields/WithObjectMode to
// switch to object mode.
func NewQuery(text string, args ...any) Query {
	return Query{Text: text, Args: args, ResultMode: ResultArray}
}

// WithObjectMode returns a copy of q configured for object-mode results,
// optionally snake→camel translating RowDescription column names.
func (q Query) WithObjectMode(camelcase bool) Query {
	q.ResultMode = ResultObject
	q.Camelcase = camelcase
	return q
}

// WithFields returns a copy of q whose object-mode column names are taken
// from fields instead of RowDescription. Each entry must match the
// identifier rule in spec.md §3 and the set must be unique.
func (q Query) WithFields(fields ...string) (Query, error) {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if !fieldNameRE.MatchString(f) {
			return Query{}, &ResultShapeError{Reason: fmt.Sprintf("invalid field name %q", f)}
		}
		if _, dup := seen[f]; dup {
			return Query{}, &ResultShapeError{Reason: fmt.Sprintf("duplicate field name %q", f)}
		}
		seen[f] = struct{}{}
	}
	q.ResultMode = ResultObject
	q.Fields = fields
	return q, nil
}

// QueryFromTemplate builds a Query from a text/template-style string using
// named placeholders `{{name}}` resolved from binds, rewriting them to
// dense 1-based `$n` positional placeholders in first-occurrence order.
// This mirrors the "template form" named in spec.md §4.8.
func QueryFromTemplate(template string, binds map[string]any) (Query, error) {
	var out strings.Builder
	var args []any
	index := map[string]int{}
	i := 0
	for i < len(template) {
		start := strings.Index(template[i:], "{{")
		if start < 0 {
			out.WriteString(template[i:])
			break
		}
		start += i
		out.WriteString(template[i:start])
		end := strings.Index(template[start:], "}}")
		if end < 0 {
			return Query{}, &ConfigError{Reason: "unterminated template placeholder"}
		}
		end += start
		name := strings.TrimSpace(template[start+2 : end])
		pos, ok := index[name]
		if !ok {
			v, ok := binds[name]
			if !ok {
				return Query{}, &ConfigError{Reason: fmt.Sprintf("template placeholder %q has no bound value", name)}
			}
			args = append(args, v)
			pos = len(args)
			index[name] = pos
		}
		fmt.Fprintf(&out, "$%d", pos)
		i = end + 2
	}
	return NewQuery(out.String(), args...), nil
}

// encodeArgs runs the value codec's Encode over q.Args, preserving order.
func (q Query) encodeArgs() ([]types.EncodedArg, error) {
	if len(q.Args) == 0 {
		return nil, nil
	}
	out := make([]types.EncodedArg, len(q.Args))
	for i, a := range q.Args {
		enc, err := types.Encode(a)
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}
