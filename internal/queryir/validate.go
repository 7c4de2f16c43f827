package queryir

import (
	"fmt"

	"golang.org/x/text/language"
)

// Validation error codes (E200-E299)
const (
	ErrSpecNameEmpty       = "E201" // name is required
	ErrSpecCollectionEmpty = "E202" // collection is required
	ErrPredicateField      = "E203" // predicate field is empty
	ErrPredicateOp         = "E204" // unknown compare operator
	ErrPredicateValue      = "E205" // equals/compare value missing
	ErrPredicateNil        = "E206" // nil predicate inside and
	ErrPredicateType       = "E207" // unknown predicate type
	ErrOrderField          = "E208" // order key field is empty
	ErrOrderCollation      = "E209" // unknown collation tag
	ErrWindowNegative      = "E210" // window start or length negative
)

// ValidationError describes one problem in a Spec.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a Spec and returns every problem found (it does not stop
// at the first one).
func Validate(s *Spec) []ValidationError {
	v := &validator{}

	if s.Name == "" {
		v.add("name", ErrSpecNameEmpty, "name is required")
	}
	if s.Collection == "" {
		v.add("collection", ErrSpecCollectionEmpty, "collection is required")
	}
	if s.Where != nil {
		v.predicate("where", s.Where)
	}
	for i, key := range s.Order {
		path := fmt.Sprintf("order[%d]", i)
		if key.Field == "" {
			v.add(path+".field", ErrOrderField, "order field is required")
		}
		if key.Collation != "" {
			if _, err := language.Parse(key.Collation); err != nil {
				v.add(path+".collation", ErrOrderCollation, fmt.Sprintf("unknown collation %q: %v", key.Collation, err))
			}
		}
	}
	if s.Window != nil && (s.Window.Start < 0 || s.Window.Length < 0) {
		v.add("window", ErrWindowNegative, fmt.Sprintf("start and length must be >= 0, got [%d, %d)", s.Window.Start, s.Window.Length))
	}
	return v.errs
}

type validator struct {
	errs []ValidationError
}

func (v *validator) add(field, code, msg string) {
	v.errs = append(v.errs, ValidationError{Field: field, Message: msg, Code: code})
}

func (v *validator) predicate(path string, p Predicate) {
	switch pred := p.(type) {
	case nil:
		v.add(path, ErrPredicateNil, "predicate is nil")
	case Equals:
		v.field(path, pred.Field)
		if pred.Value == nil {
			v.add(path+".value", ErrPredicateValue, "equals requires a value")
		}
	case Compare:
		v.field(path, pred.Field)
		if !pred.Op.Valid() {
			v.add(path+".op", ErrPredicateOp, fmt.Sprintf("unknown operator %q (want lt, le, gt, ge or ne)", pred.Op))
		}
		if pred.Value == nil {
			v.add(path+".value", ErrPredicateValue, "compare requires a value")
		}
	case Prefix:
		v.field(path, pred.Field)
	case Exists:
		v.field(path, pred.Field)
	case And:
		for i, sub := range pred.Predicates {
			v.predicate(fmt.Sprintf("%s.and[%d]", path, i), sub)
		}
	default:
		v.add(path, ErrPredicateType, fmt.Sprintf("unknown predicate type %T", p))
	}
}

func (v *validator) field(path, field string) {
	if field == "" {
		v.add(path+".field", ErrPredicateField, "field is required")
	}
}
