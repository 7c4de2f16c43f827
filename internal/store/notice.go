package store

import (
	"encoding/json"
	"fmt"
)

// Notice is the wire form of a Change exchanged between nodes, used by the
// Postgres NOTIFY channel and the Redis relay. Seq is not carried: each
// receiving hub stamps its own.
type Notice struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Origin     string `json:"origin"`
}

// EncodeNotice renders c as a notice from node origin.
func EncodeNotice(c Change, origin string) ([]byte, error) {
	return json.Marshal(Notice{
		Collection: c.Collection,
		ID:         c.ID,
		Kind:       c.Kind.String(),
		Origin:     origin,
	})
}

// DecodeNotice parses a notice into a Change with Origin set and Seq zero.
func DecodeNotice(data []byte) (Change, error) {
	var n Notice
	if err := json.Unmarshal(data, &n); err != nil {
		return Change{}, fmt.Errorf("decode notice: %w", err)
	}
	if n.Collection == "" || n.ID == "" || n.Origin == "" {
		return Change{}, fmt.Errorf("decode notice: missing collection, id or origin")
	}
	kind, err := ParseKind(n.Kind)
	if err != nil {
		return Change{}, fmt.Errorf("decode notice: %w", err)
	}
	return Change{Collection: n.Collection, ID: n.ID, Kind: kind, Origin: n.Origin}, nil
}
