package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/victornm/proctorquiz/internal/auth"
	"github.com/victornm/proctorquiz/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type (
	selectAnswerPayload struct {
		QuestionID string `json:"question_id"`
		Option     string `json:"option"`
	}

	navigatePayload struct {
		Direction string `json:"direction"` // next, previous, goto
		Index     int    `json:"index"`
	}

	signalPayload struct {
		Signal string `json:"signal"`
	}

	submitPayload struct {
		Confirm string `json:"confirm"`
	}

	errorPayload struct {
		Message string `json:"message"`
	}
)

var knownSignals = map[session.Signal]struct{}{
	session.SignalFullscreenExited:  {},
	session.SignalFullscreenEntered: {},
	session.SignalHidden:            {},
	session.SignalVisible:           {},
	session.SignalBackNavigation:    {},
	session.SignalUnloadAttempt:     {},
}

// SessionStream is the live channel for one quiz attempt: the client reports
// answers, navigation and proctoring signals inbound; the session pushes
// state snapshots (remaining time, violations, termination) outbound.
func (a *API) SessionStream(c *gin.Context) {
	ctrl, err := a.sessions.Get(c.Param("sessionID"), auth.UserID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(c.Request.Context(), "api: ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := ctrl.Subscribe()
	defer cancel()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					// Session terminated: flush a close frame and
					// unblock the read loop.
					deadline := time.Now().Add(time.Second)
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "terminated"), deadline)
					conn.Close()
					return
				}
				select {
				case send <- outboundMessage{Type: "state", Payload: snap}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var in inboundMessage
		if err := conn.ReadJSON(&in); err != nil {
			break
		}
		a.handleSessionMessage(c, ctrl, send, in)
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (a *API) handleSessionMessage(c *gin.Context, ctrl *session.Controller, send chan<- outboundMessage, in inboundMessage) {
	fail := func(msg string) {
		send <- outboundMessage{Type: "error", Payload: errorPayload{Message: msg}}
	}

	switch in.Type {
	case "select_answer":
		var p selectAnswerPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			fail("invalid select_answer payload")
			return
		}
		if err := ctrl.SelectAnswer(p.QuestionID, p.Option); err != nil {
			fail(err.Error())
		}

	case "navigate":
		var p navigatePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			fail("invalid navigate payload")
			return
		}
		switch p.Direction {
		case "next":
			ctrl.Next()
		case "previous":
			ctrl.Previous()
		case "goto":
			ctrl.Goto(p.Index)
		default:
			fail("invalid navigate direction")
		}

	case "signal":
		var p signalPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			fail("invalid signal payload")
			return
		}
		sig := session.Signal(p.Signal)
		if _, ok := knownSignals[sig]; !ok {
			fail("unknown signal")
			return
		}
		ctrl.Signal(c.Request.Context(), sig)

	case "submit":
		var p submitPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			fail("invalid submit payload")
			return
		}
		res, err := ctrl.Submit(c.Request.Context(), p.Confirm)
		if err != nil {
			fail(err.Error())
			return
		}
		send <- outboundMessage{Type: "submitted", Payload: SubmitSessionResponse{
			AttemptID:   res.AttemptID,
			QuizTitle:   res.QuizTitle,
			TopicName:   res.TopicName,
			Score:       res.Score,
			CoinsEarned: res.CoinsEarned,
		}}

	default:
		fail("unknown message type")
	}
}
