package queryir

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/roach88/livedoc/internal/query"
	"github.com/roach88/livedoc/internal/record"
)

// Build validates s and turns it into a query over documents.
// Each call returns independent collators, so the result can be used by
// one live view without sharing state with others.
func Build(s *Spec) (query.Query[record.Document], error) {
	if errs := Validate(s); len(errs) > 0 {
		return query.Query[record.Document]{}, joinValidation(s.Name, errs)
	}

	var opts []query.Option[record.Document]
	if s.Where != nil {
		where := s.Where
		opts = append(opts, query.Where(func(d record.Document) bool {
			return Match(where, d)
		}))
	}
	opts = append(opts, query.OrderBy(newOrdering(s.Order).less))
	if s.Window != nil {
		opts = append(opts, query.Limit[record.Document](s.Window.Start, s.Window.Length))
	}
	return query.New(opts...), nil
}

// Match evaluates p against d. A nil predicate matches.
func Match(p Predicate, d record.Document) bool {
	switch pred := p.(type) {
	case nil:
		return true
	case Equals:
		v, ok := d.Get(pred.Field)
		return ok && record.Equal(v, pred.Value)
	case Compare:
		v, ok := d.Get(pred.Field)
		if !ok || pred.Value == nil || v.Kind() != pred.Value.Kind() {
			return false
		}
		c := record.Compare(v, pred.Value)
		switch pred.Op {
		case OpLT:
			return c < 0
		case OpLE:
			return c <= 0
		case OpGT:
			return c > 0
		case OpGE:
			return c >= 0
		case OpNE:
			return c != 0
		}
		return false
	case Prefix:
		v, ok := d.Get(pred.Field)
		s, isString := v.(record.String)
		return ok && isString && strings.HasPrefix(string(s), pred.Prefix)
	case Exists:
		_, ok := d.Get(pred.Field)
		return ok
	case And:
		for _, sub := range pred.Predicates {
			if !Match(sub, d) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

type ordering struct {
	keys      []OrderKey
	collators []*lockedCollator
}

// lockedCollator serializes a collate.Collator, which keeps internal
// buffers and is not safe for concurrent use.
type lockedCollator struct {
	mu sync.Mutex
	c  *collate.Collator
}

func (l *lockedCollator) compare(a, b string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.c.CompareString(a, b)
}

func newOrdering(keys []OrderKey) *ordering {
	o := &ordering{keys: keys, collators: make([]*lockedCollator, len(keys))}
	for i, k := range keys {
		if k.Collation == "" {
			continue
		}
		// Validate already rejected unparseable tags.
		tag := language.MustParse(k.Collation)
		o.collators[i] = &lockedCollator{c: collate.New(tag)}
	}
	return o
}

func (o *ordering) less(a, b record.Document) bool {
	for i, k := range o.keys {
		av, _ := a.Get(k.Field)
		bv, _ := b.Get(k.Field)

		c := o.compare(i, av, bv)
		if k.Desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
	}
	return a.UID() < b.UID()
}

func (o *ordering) compare(i int, a, b record.Value) int {
	if col := o.collators[i]; col != nil {
		as, aok := a.(record.String)
		bs, bok := b.(record.String)
		if aok && bok {
			return col.compare(string(as), string(bs))
		}
	}
	return record.Compare(a, b)
}

func joinValidation(name string, errs []ValidationError) error {
	all := make([]error, len(errs))
	for i, e := range errs {
		all[i] = e
	}
	return fmt.Errorf("query %q: %w", name, errors.Join(all...))
}
