package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/misli/misli-go/internal/auth"
	"github.com/misli/misli-go/internal/library"
	"github.com/misli/misli-go/internal/metric"
	"github.com/tidwall/gjson"
)

const (
	eventWriteTimeout = 10 * time.Second

	// Server to client ops. Library events carry their own op
	// ("updated" or "removed").
	opSnapshot = "snapshot"
	opFiltered = "filtered"
	opPong     = "pong"
	opError    = "error"

	// Client to server ops.
	opFilter = "filter"
	opPing   = "ping"
)

type snapshotMessage struct {
	Op        string            `json:"op"`
	NoteFiles []library.Summary `json:"note_files"`
}

type controlMessage struct {
	Op      string `json:"op"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message,omitempty"`
}

// eventStream is one websocket subscriber. Writes from the event loop and
// from replies to client ops go through send.
type eventStream struct {
	conn   *websocket.Conn
	logger *slog.Logger

	mu     sync.Mutex
	filter string
}

// HandleEvents upgrades to a websocket and streams library events as JSON
// text messages. The first message is a snapshot of every indexed note
// file. Clients may send {"op":"filter","name":"..."} to only receive
// events for one note file (an empty name clears the filter) and
// {"op":"ping"} to get a pong.
func HandleEvents(src Source, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			logger.Debug("events: websocket accept failed", slog.String("error", err.Error()))
			return
		}
		defer conn.CloseNow()

		events, unsubscribe := src.Subscribe()
		defer unsubscribe()
		defer metric.SubscriberConnected()()

		s := &eventStream{conn: conn, logger: logger}
		logger.Debug("events: subscriber connected",
			slog.String("user", auth.RequestUser(r.Context())),
			slog.String("remote", r.RemoteAddr),
		)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		summaries := src.List()
		if summaries == nil {
			summaries = []library.Summary{}
		}
		if err := s.send(ctx, snapshotMessage{Op: opSnapshot, NoteFiles: summaries}); err != nil {
			return
		}

		go func() {
			defer cancel()
			s.readLoop(ctx)
		}()

		err = s.writeLoop(ctx, events)

		var ce websocket.CloseError
		switch {
		case err == nil, errors.Is(err, context.Canceled), errors.As(err, &ce):
			conn.Close(websocket.StatusNormalClosure, "bye")
		default:
			logger.Debug("events: stream ended", slog.String("error", err.Error()))
		}
	}
}

func (s *eventStream) writeLoop(ctx context.Context, events <-chan library.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !s.wants(ev.Name) {
				continue
			}
			if err := s.send(ctx, ev); err != nil {
				return err
			}
		}
	}
}

// readLoop handles client ops until the connection fails or closes.
func (s *eventStream) readLoop(ctx context.Context) {
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			return
		}

		if typ != websocket.MessageText {
			_ = s.send(ctx, controlMessage{Op: opError, Message: "expected a text message"})
			continue
		}

		switch op := gjson.GetBytes(data, "op").Str; op {
		case opFilter:
			name := gjson.GetBytes(data, "name").Str
			s.setFilter(name)
			err = s.send(ctx, controlMessage{Op: opFiltered, Name: name})
		case opPing:
			err = s.send(ctx, controlMessage{Op: opPong})
		default:
			err = s.send(ctx, controlMessage{Op: opError, Message: "unknown op: " + op})
		}

		if err != nil {
			return
		}
	}
}

func (s *eventStream) setFilter(name string) {
	s.mu.Lock()
	s.filter = name
	s.mu.Unlock()
}

func (s *eventStream) wants(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter == "" || s.filter == name
}

// send marshals v and writes it as a single text message.
func (s *eventStream) send(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()

	return s.conn.Write(ctx, websocket.MessageText, data)
}
