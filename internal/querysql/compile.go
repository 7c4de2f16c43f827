// Package querysql compiles queryir specs to parameterized SQLite over the
// sqlitestore documents table.
//
// Documents are stored as canonical JSON in documents.archive; fields are
// read with json_extract and kind-checked with json_type so SQL matches
// exactly what queryir.Match accepts. The uid field maps to the id column.
//
// CRITICAL: values and JSON paths are always parameters, never interpolated.
// CRITICAL: every statement ends with id ASC COLLATE BINARY as tiebreaker.
package querysql

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/roach88/livedoc/internal/queryir"
	"github.com/roach88/livedoc/internal/record"
)

// ErrNotPushable means the query needs Go-side evaluation: a field name that
// is not a plain identifier or an ordering that uses a collation.
var ErrNotPushable = errors.New("query cannot be pushed down to SQL")

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Plan is a compiled statement selecting (id, archive) rows.
type Plan struct {
	SQL  string
	Args []any
}

// Compile builds the statement for s, which must already be valid.
// Returns ErrNotPushable (wrapped) when SQLite cannot reproduce the
// ordering or address a field.
func Compile(s *queryir.Spec) (Plan, error) {
	c := &compiler{}

	where := "collection = ?"
	c.args = append(c.args, s.Collection)
	if s.Where != nil {
		pred, err := c.predicate(s.Where)
		if err != nil {
			return Plan{}, fmt.Errorf("compile %s: %w", s.Name, err)
		}
		where += " AND " + pred
	}

	order, err := c.orderBy(s.Order)
	if err != nil {
		return Plan{}, fmt.Errorf("compile %s: %w", s.Name, err)
	}

	sql := "SELECT id, archive FROM documents WHERE " + where + " ORDER BY " + order
	if s.Window != nil {
		sql += " LIMIT ? OFFSET ?"
		c.args = append(c.args, s.Window.Length, s.Window.Start)
	}
	return Plan{SQL: sql, Args: c.args}, nil
}

type compiler struct {
	args []any
}

func (c *compiler) path(field string) (string, error) {
	if !identRe.MatchString(field) {
		return "", fmt.Errorf("field %q: %w", field, ErrNotPushable)
	}
	return "$." + field, nil
}

func (c *compiler) predicate(p queryir.Predicate) (string, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return c.equals(pred)
	case queryir.Compare:
		return c.compare(pred)
	case queryir.Prefix:
		return c.prefix(pred)
	case queryir.Exists:
		return c.exists(pred)
	case queryir.And:
		return c.and(pred)
	default:
		return "", fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *compiler) and(and queryir.And) (string, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil
	}
	parts := make([]string, 0, len(and.Predicates))
	for _, sub := range and.Predicates {
		sql, err := c.predicate(sub)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	return "(" + strings.Join(parts, " AND ") + ")", nil
}

func (c *compiler) equals(eq queryir.Equals) (string, error) {
	return c.compare(queryir.Compare{Field: eq.Field, Op: "eq", Value: eq.Value})
}

var sqlOps = map[queryir.CompareOp]string{
	"eq":          "=",
	queryir.OpLT: "<",
	queryir.OpLE: "<=",
	queryir.OpGT: ">",
	queryir.OpGE: ">=",
	queryir.OpNE: "<>",
}

func (c *compiler) compare(cmp queryir.Compare) (string, error) {
	op, ok := sqlOps[cmp.Op]
	if !ok {
		return "", fmt.Errorf("unknown operator %q", cmp.Op)
	}

	if cmp.Field == record.UIDField {
		s, isString := cmp.Value.(record.String)
		if !isString {
			return "1 = 0", nil
		}
		c.args = append(c.args, string(s))
		return "id " + op + " ? COLLATE BINARY", nil
	}

	path, err := c.path(cmp.Field)
	if err != nil {
		return "", err
	}

	switch v := cmp.Value.(type) {
	case record.String:
		c.args = append(c.args, path, path, string(v))
		return "(json_type(archive, ?) = 'text' AND json_extract(archive, ?) " + op + " ? COLLATE BINARY)", nil
	case record.Int:
		c.args = append(c.args, path, path, int64(v))
		return "(json_type(archive, ?) = 'integer' AND json_extract(archive, ?) " + op + " ?)", nil
	case record.Bool:
		n := 0
		if v {
			n = 1
		}
		c.args = append(c.args, path, path, n)
		return "(json_type(archive, ?) IN ('true', 'false') AND " +
			"(CASE json_type(archive, ?) WHEN 'true' THEN 1 ELSE 0 END) " + op + " ?)", nil
	default:
		return "", fmt.Errorf("unsupported value type %T", cmp.Value)
	}
}

func (c *compiler) prefix(p queryir.Prefix) (string, error) {
	n := utf8.RuneCountInString(p.Prefix)
	if p.Field == record.UIDField {
		c.args = append(c.args, n, p.Prefix)
		return "substr(id, 1, ?) = ?", nil
	}
	path, err := c.path(p.Field)
	if err != nil {
		return "", err
	}
	c.args = append(c.args, path, path, n, p.Prefix)
	return "(json_type(archive, ?) = 'text' AND substr(json_extract(archive, ?), 1, ?) = ?)", nil
}

func (c *compiler) exists(e queryir.Exists) (string, error) {
	if e.Field == record.UIDField {
		return "1 = 1", nil
	}
	path, err := c.path(e.Field)
	if err != nil {
		return "", err
	}
	c.args = append(c.args, path)
	return "json_type(archive, ?) IS NOT NULL", nil
}

// orderBy mirrors record.Compare: missing values first, then bool < int <
// string by kind, then by value. Always ends with the id tiebreaker.
func (c *compiler) orderBy(keys []queryir.OrderKey) (string, error) {
	var parts []string
	for _, k := range keys {
		if k.Collation != "" {
			return "", fmt.Errorf("order by %s with collation %s: %w", k.Field, k.Collation, ErrNotPushable)
		}
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		if k.Field == record.UIDField {
			parts = append(parts, "id "+dir+" COLLATE BINARY")
			continue
		}
		path, err := c.path(k.Field)
		if err != nil {
			return "", err
		}
		c.args = append(c.args, path, path)
		parts = append(parts,
			"(CASE json_type(archive, ?) WHEN 'true' THEN 1 WHEN 'false' THEN 1 WHEN 'integer' THEN 2 WHEN 'text' THEN 3 ELSE 0 END) "+dir,
			"json_extract(archive, ?) COLLATE BINARY "+dir,
		)
	}
	parts = append(parts, "id ASC COLLATE BINARY")
	return strings.Join(parts, ", "), nil
}
