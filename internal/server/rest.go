package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/roach88/livedoc/internal/queryir"
	"github.com/roach88/livedoc/internal/record"
	"github.com/roach88/livedoc/internal/view"
)

// maxBody bounds PUT bodies.
const maxBody = 1 << 20

// Error codes in JSON error bodies.
const (
	CodeBadRequest = "BAD_REQUEST"
	CodeNotFound   = "NOT_FOUND"
	CodeMalformed  = "MALFORMED_RECORD"
	CodeInternal   = "INTERNAL"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) listQueries(w http.ResponseWriter, r *http.Request) {
	type queryInfo struct {
		Name       string `json:"name"`
		Collection string `json:"collection"`
	}
	out := make([]queryInfo, 0, len(s.queries))
	for _, name := range s.queryNames() {
		out = append(out, queryInfo{Name: name, Collection: s.queries[name].Collection})
	}
	s.writeJSON(w, http.StatusOK, out)
}

// listRecords returns the collection in id order, or the result of a named
// query over it.
func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]
	ctx := r.Context()

	name := r.URL.Query().Get("query")
	if name == "" {
		docs, err := s.collection(collection).ReadAll(ctx)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, CodeInternal, err)
			return
		}
		s.writeJSON(w, http.StatusOK, archives(docs))
		return
	}

	spec, ok := s.queries[name]
	if !ok {
		s.writeError(w, http.StatusNotFound, CodeNotFound, fmt.Errorf("query %q not defined", name))
		return
	}
	if spec.Collection != collection {
		s.writeError(w, http.StatusBadRequest, CodeBadRequest,
			fmt.Errorf("query %q reads collection %q, not %q", name, spec.Collection, collection))
		return
	}

	docs, err := s.runQuery(r, spec)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, CodeInternal, err)
		return
	}
	s.writeJSON(w, http.StatusOK, archives(docs))
}

func (s *Server) runQuery(r *http.Request, spec *queryir.Spec) ([]record.Document, error) {
	coll := s.collection(spec.Collection)
	if f, ok := s.backend.(Finder); ok {
		entries, err := f.Find(r.Context(), spec)
		if err != nil {
			return nil, err
		}
		return coll.Decode(entries), nil
	}

	q, err := queryir.Build(spec)
	if err != nil {
		return nil, err
	}
	docs, err := coll.ReadAll(r.Context())
	if err != nil {
		return nil, err
	}
	return q.Apply(docs), nil
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	doc, err := s.collection(vars["collection"]).ReadByID(r.Context(), vars["id"])
	switch {
	case view.IsNotFound(err):
		s.writeError(w, http.StatusNotFound, CodeNotFound, err)
	case view.IsMalformed(err):
		s.writeError(w, http.StatusInternalServerError, CodeMalformed, err)
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, CodeInternal, err)
	default:
		s.writeJSON(w, http.StatusOK, doc.Archive())
	}
}

// putRecord upserts the JSON object in the body. A uid field, when
// present, must match the path.
func (s *Server) putRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, CodeBadRequest, err)
		return
	}

	var a record.Archive
	if err := json.Unmarshal(body, &a); err != nil {
		s.writeError(w, http.StatusBadRequest, CodeBadRequest, err)
		return
	}
	doc, err := record.DecodeDocument(vars["id"], a)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, CodeBadRequest, err)
		return
	}

	if err := s.collection(vars["collection"]).Write(r.Context(), doc); err != nil {
		s.writeError(w, http.StatusInternalServerError, CodeInternal, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc.Archive())
}

func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.collection(vars["collection"]).DeleteID(r.Context(), vars["id"]); err != nil {
		s.writeError(w, http.StatusInternalServerError, CodeInternal, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func archives(docs []record.Document) []record.Archive {
	out := make([]record.Archive, len(docs))
	for i, d := range docs {
		out[i] = d.Archive()
	}
	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code string, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "code", code, "error", err)
	}
	s.writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: err.Error()}})
}
