package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/livedoc/internal/queryir"
	"github.com/roach88/livedoc/internal/record"
)

// CompileQuery parses a CUE value into a queryir.Spec. The result is not
// validated; callers run queryir.Validate (LoadQueries does).
//
// The CUE value should be the query struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`query: recent: { collection: "messages" }`)
//	spec, err := CompileQuery(v.LookupPath(cue.ParsePath("query.recent")))
func CompileQuery(v cue.Value) (*queryir.Spec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &queryir.Spec{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		sel := labels[len(labels)-1]
		if sel.LabelType() == cue.StringLabel {
			spec.Name = sel.Unquoted()
		} else {
			spec.Name = sel.String()
		}
	}

	collVal := v.LookupPath(cue.ParsePath("collection"))
	if !collVal.Exists() {
		return nil, &CompileError{
			Field:   "collection",
			Message: "collection is required",
			Pos:     v.Pos(),
		}
	}
	coll, err := collVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	spec.Collection = coll

	if whereVal := v.LookupPath(cue.ParsePath("where")); whereVal.Exists() {
		spec.Where, err = parseWhere(whereVal)
		if err != nil {
			return nil, err
		}
	}

	if orderVal := v.LookupPath(cue.ParsePath("order")); orderVal.Exists() {
		spec.Order, err = parseOrder(orderVal)
		if err != nil {
			return nil, err
		}
	}

	if windowVal := v.LookupPath(cue.ParsePath("window")); windowVal.Exists() {
		spec.Window, err = parseWindow(windowVal)
		if err != nil {
			return nil, err
		}
	}

	return spec, nil
}

// parseWhere accepts a single clause or a list of clauses. A list of one
// compiles to the clause itself.
func parseWhere(v cue.Value) (queryir.Predicate, error) {
	if v.IncompleteKind() == cue.StructKind {
		return parseClause(v)
	}

	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{
			Field:   "where",
			Message: "must be a clause or a list of clauses",
			Pos:     v.Pos(),
		}
	}

	var preds []queryir.Predicate
	for iter.Next() {
		p, err := parseClause(iter.Value())
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}

	switch len(preds) {
	case 0:
		return nil, nil
	case 1:
		return preds[0], nil
	default:
		return queryir.And{Predicates: preds}, nil
	}
}

var compareOps = []struct {
	label string
	op    queryir.CompareOp
}{
	{"ne", queryir.OpNE},
	{"lt", queryir.OpLT},
	{"le", queryir.OpLE},
	{"gt", queryir.OpGT},
	{"ge", queryir.OpGE},
}

// parseClause compiles {field: ..., <op>: ...}.
func parseClause(v cue.Value) (queryir.Predicate, error) {
	fieldVal := v.LookupPath(cue.ParsePath("field"))
	if !fieldVal.Exists() {
		return nil, &CompileError{
			Field:   "where.field",
			Message: "clause must name a field",
			Pos:     v.Pos(),
		}
	}
	field, err := fieldVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var found []queryir.Predicate
	if eq := v.LookupPath(cue.ParsePath("eq")); eq.Exists() {
		val, err := parseValue(eq)
		if err != nil {
			return nil, err
		}
		found = append(found, queryir.Equals{Field: field, Value: val})
	}
	for _, c := range compareOps {
		opVal := v.LookupPath(cue.ParsePath(c.label))
		if !opVal.Exists() {
			continue
		}
		val, err := parseValue(opVal)
		if err != nil {
			return nil, err
		}
		found = append(found, queryir.Compare{Field: field, Op: c.op, Value: val})
	}
	if pre := v.LookupPath(cue.ParsePath("prefix")); pre.Exists() {
		s, err := pre.String()
		if err != nil {
			return nil, &CompileError{
				Field:   "where.prefix",
				Message: "prefix must be a string",
				Pos:     pre.Pos(),
			}
		}
		found = append(found, queryir.Prefix{Field: field, Prefix: s})
	}
	if ex := v.LookupPath(cue.ParsePath("exists")); ex.Exists() {
		b, err := ex.Bool()
		if err != nil || !b {
			return nil, &CompileError{
				Field:   "where.exists",
				Message: "exists must be true",
				Pos:     ex.Pos(),
			}
		}
		found = append(found, queryir.Exists{Field: field})
	}

	if len(found) != 1 {
		return nil, &CompileError{
			Field:   "where.op",
			Message: fmt.Sprintf("clause on %q must have exactly one operator, found %d", field, len(found)),
			Pos:     v.Pos(),
		}
	}
	return found[0], nil
}

// parseValue converts a concrete CUE scalar to a record value. Floats are
// forbidden; use int instead.
func parseValue(v cue.Value) (record.Value, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return record.String(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return record.Int(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return record.Bool(b), nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   "where.value",
			Message: "float values are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   "where.value",
			Message: fmt.Sprintf("value must be a concrete string, int or bool, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func parseOrder(v cue.Value) ([]queryir.OrderKey, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{
			Field:   "order",
			Message: "order must be a list of keys",
			Pos:     v.Pos(),
		}
	}

	var keys []queryir.OrderKey
	for iter.Next() {
		kv := iter.Value()
		var key queryir.OrderKey

		fieldVal := kv.LookupPath(cue.ParsePath("field"))
		if !fieldVal.Exists() {
			return nil, &CompileError{
				Field:   "order.field",
				Message: "order key must name a field",
				Pos:     kv.Pos(),
			}
		}
		if key.Field, err = fieldVal.String(); err != nil {
			return nil, formatCUEError(err)
		}

		if desc := kv.LookupPath(cue.ParsePath("desc")); desc.Exists() {
			if key.Desc, err = desc.Bool(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		if coll := kv.LookupPath(cue.ParsePath("collation")); coll.Exists() {
			if key.Collation, err = coll.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func parseWindow(v cue.Value) (*queryir.Window, error) {
	w := &queryir.Window{}

	if start := v.LookupPath(cue.ParsePath("start")); start.Exists() {
		n, err := start.Int64()
		if err != nil {
			return nil, &CompileError{Field: "window.start", Message: "start must be an int", Pos: start.Pos()}
		}
		w.Start = int(n)
	}
	length := v.LookupPath(cue.ParsePath("length"))
	if !length.Exists() {
		return nil, &CompileError{Field: "window.length", Message: "length is required", Pos: v.Pos()}
	}
	n, err := length.Int64()
	if err != nil {
		return nil, &CompileError{Field: "window.length", Message: "length must be an int", Pos: length.Pos()}
	}
	w.Length = int(n)
	return w, nil
}
