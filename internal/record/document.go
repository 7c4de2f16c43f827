package record

import (
	"fmt"
)

// UIDField is the archive field carrying a document's identifier.
const UIDField = "uid"

// Document is the schemaless record used where no Go type is known ahead of
// time: the CLI, the websocket server and scenario files.
type Document struct {
	ID     string
	Fields Archive
}

// NewDocument builds a document from plain Go values.
func NewDocument(id string, fields map[string]any) (Document, error) {
	a, err := ArchiveFrom(fields)
	if err != nil {
		return Document{}, fmt.Errorf("document %s: %w", id, err)
	}
	delete(a, UIDField)
	return Document{ID: id, Fields: a}, nil
}

// UID implements Model.
func (d Document) UID() string { return d.ID }

// Archive implements Model. The identifier is carried in the uid field.
func (d Document) Archive() Archive {
	a := make(Archive, len(d.Fields)+1)
	for k, v := range d.Fields {
		a[k] = v
	}
	a[UIDField] = String(d.ID)
	return a
}

// Get returns a field value; the uid field resolves to the identifier.
func (d Document) Get(field string) (Value, bool) {
	if field == UIDField {
		return String(d.ID), true
	}
	v, ok := d.Fields[field]
	return v, ok
}

// DecodeDocument rebuilds a Document. A uid field, when present, must agree
// with the storage key.
func DecodeDocument(id string, a Archive) (Document, error) {
	if v, ok := a[UIDField]; ok {
		s, isString := v.(String)
		if !isString {
			return Document{}, fmt.Errorf("uid field is %s, want string", v.Kind())
		}
		if string(s) != id {
			return Document{}, fmt.Errorf("uid field %q does not match key %q", s, id)
		}
	}
	fields := a.Clone()
	delete(fields, UIDField)
	return Document{ID: id, Fields: fields}, nil
}

// DocumentType returns the Type for documents stored in the named collection.
func DocumentType(collection string) Type[Document] {
	return Type[Document]{Name: collection, Decode: DecodeDocument}
}
