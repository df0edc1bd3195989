package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/tightfive/stagetrack/internal/observe"
	"github.com/tightfive/stagetrack/internal/stage"
	"github.com/tightfive/stagetrack/pkg/audio"
)

const (
	// readLimit bounds one inbound message. Audio frames are tens of
	// kilobytes; setlists stay well under this.
	readLimit = 1 << 20

	// setlistTimeout is how long a client has to upload its setlist
	// after connecting.
	setlistTimeout = 30 * time.Second

	// writeTimeout bounds one outbound event write so a stalled client
	// cannot wedge the session run loop behind the socket.
	writeTimeout = 10 * time.Second
)

// handleStage upgrades the connection and runs one performance session
// over it.
func (s *Server) handleStage(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("server: websocket accept failed", "err", err)
		return
	}
	conn.SetReadLimit(readLimit)

	ws := &wsSession{conn: conn, srv: s}
	ws.run(r.Context())
}

// wsSession binds one WebSocket connection to one stage.
type wsSession struct {
	conn *websocket.Conn
	srv  *Server

	writeMu sync.Mutex

	st         *stage.Stage
	started    time.Time
	sampleRate int
	channels   int
}

func (ws *wsSession) run(ctx context.Context) {
	defer ws.conn.Close(websocket.StatusInternalError, "session aborted")

	if err := ws.openStage(ctx); err != nil {
		observe.Logger(ctx).Warn("server: stage setup failed", "err", err)
		_ = ws.writeJSON(ctx, newErrorMessage(err))
		ws.conn.Close(websocket.StatusPolicyViolation, "setup failed")
		return
	}
	// The report still gets computed when the client vanishes mid-show;
	// there is just nobody left to send it to.
	defer ws.st.End(context.WithoutCancel(ctx))

	for {
		typ, data, err := ws.conn.Read(ctx)
		if err != nil {
			observe.Logger(ctx).Info("server: stage socket closed", "stage_id", ws.st.ID(), "err", err)
			return
		}

		switch typ {
		case websocket.MessageBinary:
			ws.st.PushAudio(audio.Frame{
				PCM:        data,
				SampleRate: ws.sampleRate,
				Channels:   ws.channels,
				Timestamp:  time.Since(ws.started),
			})

		case websocket.MessageText:
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				_ = ws.writeJSON(ctx, newErrorMessage(fmt.Errorf("bad control message: %w", err)))
				continue
			}
			if ws.dispatch(ctx, msg) {
				report := ws.st.End(context.WithoutCancel(ctx))
				_ = ws.writeJSON(ctx, newReportMessage(report))
				ws.conn.Close(websocket.StatusNormalClosure, "set complete")
				return
			}
		}
	}
}

// openStage reads the setlist message and brings a stage up around it.
func (ws *wsSession) openStage(ctx context.Context) error {
	readCtx, cancel := context.WithTimeout(ctx, setlistTimeout)
	defer cancel()
	typ, data, err := ws.conn.Read(readCtx)
	if err != nil {
		return fmt.Errorf("read setlist: %w", err)
	}
	if typ != websocket.MessageText {
		return errors.New("first message must be a setlist, got binary audio")
	}
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode setlist: %w", err)
	}
	scr, err := buildScript(msg)
	if err != nil {
		return err
	}

	ws.sampleRate = msg.SampleRate
	if ws.sampleRate <= 0 {
		ws.sampleRate = ws.srv.cfg.Audio.SampleRate
	}
	if ws.sampleRate <= 0 {
		ws.sampleRate = 48000
	}
	ws.channels = msg.Channels
	if ws.channels <= 0 {
		ws.channels = 1
	}

	st, err := stage.New(ctx, scr, stage.Options{
		Config:  ws.srv.cfg,
		STT:     ws.srv.stt,
		Metrics: ws.srv.metrics,
		Sink: func(e stage.Event) {
			if err := ws.writeJSON(ctx, e); err != nil {
				slog.Debug("server: event write failed", "err", err)
			}
		},
	})
	if err != nil {
		return err
	}
	ws.st = st
	ws.started = time.Now()
	return nil
}

// dispatch applies one control message. Returns true for the end
// message, which hands teardown back to run.
func (ws *wsSession) dispatch(ctx context.Context, msg clientMessage) bool {
	switch msg.Type {
	case msgStart:
		ws.st.Start()
	case msgPause:
		ws.st.Pause()
	case msgResume:
		ws.st.Resume()
	case msgStop:
		ws.st.Stop()
	case msgJump:
		ws.st.JumpToBlock(msg.BlockID)
	case msgJumpLine:
		ws.st.JumpToLine(msg.Line)
	case msgNext:
		ws.st.Next()
	case msgPrevious:
		ws.st.Previous()
	case msgTranscript:
		ws.st.PushTranscript(msg.Text, msg.Final)
	case msgEnd:
		return true
	case msgSetlist:
		_ = ws.writeJSON(ctx, newErrorMessage(errors.New("setlist already uploaded")))
	default:
		_ = ws.writeJSON(ctx, newErrorMessage(fmt.Errorf("unknown message type %q", msg.Type)))
	}
	return false
}

// writeJSON serializes all socket writes: the session run loop (events)
// and the read loop (errors, report) share the connection.
func (ws *wsSession) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	return ws.conn.Write(writeCtx, websocket.MessageText, data)
}
