package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/roach88/livedoc/internal/queryir"
	"github.com/roach88/livedoc/internal/record"
	"github.com/roach88/livedoc/internal/view"
)

// Message types sent to websocket clients.
const (
	MsgSnapshot = "snapshot"
	MsgBegin    = "begin"
	MsgEnd      = "end"
	MsgAdd      = "add"
	MsgRemove   = "remove"
	MsgUpdate   = "update"
	MsgResult   = "result"
	MsgError    = "error"
)

// Command ops accepted from websocket clients.
const (
	CmdAppend   = "append"
	CmdRemoveAt = "remove_at"
	CmdUpdate   = "update"
)

// Message is one server-to-client frame. Records are present on snapshot,
// add and update, aligned with Positions.
type Message struct {
	Type      string           `json:"type"`
	Query     string           `json:"query,omitempty"`
	Positions []view.Position  `json:"positions,omitempty"`
	Records   []record.Archive `json:"records,omitempty"`
	Ref       string           `json:"ref,omitempty"`
	Code      string           `json:"code,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// Command is one client-to-server frame. Ref is echoed in the reply.
type Command struct {
	Op     string         `json:"op"`
	Ref    string         `json:"ref,omitempty"`
	Index  int            `json:"index,omitempty"`
	Record record.Archive `json:"record,omitempty"`
}

// outboxSize bounds queued frames per connection; a full outbox stalls the
// view until the client catches up or disconnects.
const outboxSize = 256

// session is one websocket connection and the live view it owns.
type session struct {
	conn *websocket.Conn
	view *view.LiveView[record.Document]
	out  chan Message

	// done is closed when the client is gone; stopped when writeLoop exits.
	done    chan struct{}
	stopped chan struct{}

	logger *slog.Logger
}

// watch upgrades to a websocket, sends a snapshot of the named query and
// then one frame per delegate event until the client disconnects.
func (s *Server) watch(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["query"]
	spec, ok := s.queries[name]
	if !ok {
		s.writeError(w, http.StatusNotFound, CodeNotFound, fmt.Errorf("query %q not defined", name))
		return
	}
	q, err := queryir.Build(spec)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, CodeInternal, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	logger := s.logger.With("query", name, "remote", r.RemoteAddr)
	v, err := view.New(ctx, q, s.collection(spec.Collection), view.WithLogger(logger))
	if err != nil {
		logger.Error("open view failed", "error", err)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "open view failed"))
		return
	}

	sess := &session{
		conn:    conn,
		view:    v,
		out:     make(chan Message, outboxSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  logger,
	}

	go sess.writeLoop(s.writeTimeout)
	go func() {
		// Server shutdown cancels ctx; closing the conn ends readLoop.
		select {
		case <-ctx.Done():
			conn.Close()
		case <-sess.done:
		}
	}()

	v.Attach(sess, func(records []record.Document) {
		sess.send(Message{Type: MsgSnapshot, Query: name, Records: archives(records)})
	})
	logger.Info("watch opened")

	sess.readLoop(ctx)

	close(sess.done)
	v.Close()
	<-sess.stopped
	logger.Info("watch closed")
}

func (s *session) writeLoop(timeout time.Duration) {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		case m := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
			if err := s.conn.WriteJSON(m); err != nil {
				s.logger.Debug("write failed", "error", err)
				// Unblocks readLoop so the session tears down.
				s.conn.Close()
				return
			}
		}
	}
}

func (s *session) readLoop(ctx context.Context) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("read ended", "error", err)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.send(Message{Type: MsgError, Code: CodeBadRequest, Message: err.Error()})
			continue
		}
		s.execute(ctx, cmd)
	}
}

// execute runs one client command through the view. Events it causes are
// queued before the reply.
func (s *session) execute(ctx context.Context, cmd Command) {
	var err error
	switch cmd.Op {
	case CmdAppend, CmdUpdate:
		var doc record.Document
		doc, err = documentFromCommand(cmd)
		if err == nil {
			if cmd.Op == CmdAppend {
				err = s.view.Append(ctx, doc)
			} else {
				err = s.view.Update(ctx, doc)
			}
		}
	case CmdRemoveAt:
		_, err = s.view.RemoveAt(ctx, cmd.Index)
	default:
		err = fmt.Errorf("unknown op %q", cmd.Op)
	}

	if err != nil {
		code := string(view.CodeOf(err))
		if code == "" {
			code = CodeBadRequest
		}
		s.send(Message{Type: MsgError, Ref: cmd.Ref, Code: code, Message: err.Error()})
		return
	}
	s.send(Message{Type: MsgResult, Ref: cmd.Ref})
}

func documentFromCommand(cmd Command) (record.Document, error) {
	uid, ok := cmd.Record.String(record.UIDField)
	if !ok || uid == "" {
		return record.Document{}, fmt.Errorf("record.uid must be a non-empty string")
	}
	return record.DecodeDocument(uid, cmd.Record)
}

func (s *session) send(m Message) {
	select {
	case s.out <- m:
	case <-s.done:
	case <-s.stopped:
	}
}

// Delegate implementation. Called under the view's pass lock, so reads of
// the view here see the post-batch state.

func (s *session) BeginBatch() { s.send(Message{Type: MsgBegin}) }
func (s *session) EndBatch()   { s.send(Message{Type: MsgEnd}) }

func (s *session) Added(p []view.Position) {
	s.send(Message{Type: MsgAdd, Positions: p, Records: s.recordsAt(p)})
}

func (s *session) Removed(p []view.Position) {
	s.send(Message{Type: MsgRemove, Positions: p})
}

func (s *session) Updated(p []view.Position) {
	s.send(Message{Type: MsgUpdate, Positions: p, Records: s.recordsAt(p)})
}

func (s *session) recordsAt(ps []view.Position) []record.Archive {
	out := make([]record.Archive, 0, len(ps))
	for _, p := range ps {
		r, err := s.view.At(p.Row)
		if err != nil {
			s.logger.Warn("position out of range", "row", p.Row, "error", err)
			continue
		}
		out = append(out, r.Archive())
	}
	return out
}

var _ view.Delegate = (*session)(nil)
