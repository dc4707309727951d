package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flynn-ai/agentcore/internal/agent"
	"github.com/flynn-ai/agentcore/internal/classifier"
	"github.com/flynn-ai/agentcore/pkg/protocol"
)

const (
	firstFrameTimeout = 30 * time.Second
	frameWriteTimeout = 10 * time.Second
)

// handleTurnStream runs one turn over a websocket. The client sends a
// TurnRequest as its first frame; the server answers with StreamEvents and
// closes after the terminal event. Closing the socket cancels the turn.
func (s *Server) handleTurnStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var wire protocol.TurnRequest
	_ = conn.SetReadDeadline(time.Now().Add(firstFrameTimeout))
	if err := conn.ReadJSON(&wire); err != nil {
		s.sendFault(conn, classifier.Classify(badRequest("first frame must be a turn request")))
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	req, err := agent.RequestFromWire(wire)
	if err != nil {
		s.sendFault(conn, classifier.Classify(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client has nothing more to say; any read result means it left.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	_, err = s.orch.RunTurnStream(ctx, req, func(ev protocol.StreamEvent) error {
		_ = conn.SetWriteDeadline(time.Now().Add(frameWriteTimeout))
		return conn.WriteJSON(ev)
	})
	if err != nil {
		s.logger.Debug("streamed turn ended with error", "thread", req.ThreadID, "error", err)
	}
	s.close(conn)
}

func (s *Server) sendFault(conn *websocket.Conn, fc classifier.FaultContext) {
	_ = conn.SetWriteDeadline(time.Now().Add(frameWriteTimeout))
	_ = conn.WriteJSON(protocol.StreamEvent{Type: protocol.EventError, Fault: fc.Wire()})
	s.close(conn)
}

func (s *Server) close(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
