package api

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ae-archive/vae/internal/store"
)

const listenWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// listenMessage is the JSON frame sent to live-tail clients.
type listenMessage struct {
	Type   string `json:"type"` // "record", "end" or "error"
	Store  string `json:"store"`
	Record any    `json:"record,omitempty"`
	Error  string `json:"error,omitempty"`
}

func anySeq[T any](seq iter.Seq2[T, error]) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		for v, err := range seq {
			if !yield(v, err) {
				return
			}
		}
	}
}

func (s *Server) listenSeq(ctx context.Context, name string, opts store.TailOptions, raw bool) (iter.Seq2[any, error], bool, error) {
	switch {
	case name == store.PriDB.Name && s.stores.Pri != nil:
		seq, err := s.stores.Pri.Listen(ctx, opts, "")
		return anySeq(seq), true, err
	case name == store.TraDB.Name && s.stores.Tra != nil:
		seq, err := s.stores.Tra.Listen(ctx, opts, raw, "")
		return anySeq(seq), true, err
	case name == store.TrfDB.Name && s.stores.Trf != nil:
		seq, err := s.stores.Trf.Listen(ctx, opts)
		return anySeq(seq), true, err
	}
	return nil, false, nil
}

// @Summary Live tail
// @Description Upgrades to a websocket and pushes every new record of a store as a JSON frame.
// @Description The stream ends with an "end" frame once the store's writer goes offline,
// @Description unless wait is set.
// @Param store path string true "pridb, tradb or trfdb"
// @Param existing query bool false "Send records already in the store first"
// @Param wait query bool false "Keep waiting while no writer is active" default(true)
// @Param raw query bool false "Send ADC values instead of volts (tradb)"
// @Success 101 {object} listenMessage
// @Failure 404 {string} string "Store not configured"
// @Router /api/listen/{store} [get]
func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("store")
	opts := s.tail
	opts.Existing, _ = strconv.ParseBool(r.URL.Query().Get("existing"))
	opts.Wait = true
	if v := r.URL.Query().Get("wait"); v != "" {
		opts.Wait, _ = strconv.ParseBool(v)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	seq, ok, err := s.listenSeq(ctx, name, opts, parseRaw(r))
	if !ok {
		http.Error(w, "unknown store "+name, http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()
	// The server's request read deadline still applies to the hijacked conn.
	_ = conn.SetReadDeadline(time.Time{})

	// Drain client frames; a read error means the client went away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(msg listenMessage) bool {
		data, err := json.Marshal(msg)
		if err != nil {
			slog.Error("encoding listen frame", "store", name, "error", err)
			return false
		}
		_ = conn.SetWriteDeadline(time.Now().Add(listenWriteTimeout))
		return conn.WriteMessage(websocket.TextMessage, data) == nil
	}

	slog.Info("listen client connected", "store", name, "remote", r.RemoteAddr)
	var sent int
	for rec, err := range seq {
		if err != nil {
			if ctx.Err() == nil {
				send(listenMessage{Type: "error", Store: name, Error: err.Error()})
			}
			slog.Info("listen client disconnected", "store", name, "sent", sent, "error", err)
			return
		}
		if !send(listenMessage{Type: "record", Store: name, Record: rec}) {
			slog.Info("listen client disconnected", "store", name, "sent", sent)
			return
		}
		sent++
	}

	send(listenMessage{Type: "end", Store: name})
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	slog.Info("listen finished", "store", name, "sent", sent)
}
