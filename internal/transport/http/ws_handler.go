package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/attempt"
	"quiz-attempt-service/internal/domain"
)

// Inbound message types.
const (
	msgSelect = "select"
	msgToggle = "toggle"
	msgText   = "text"
	msgGoTo   = "goto"
	msgState  = "state"
	msgSubmit = "submit"
)

type WSHandler struct {
	service  *app.AttemptService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.AttemptService) *WSHandler {
	return &WSHandler{
		service:  service,
		upgrader: newUpgrader(),
	}
}

func newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type optionPayload struct {
	QuestionID string `json:"questionId" validate:"required"`
	OptionID   string `json:"optionId" validate:"required"`
}

type textPayload struct {
	QuestionID string `json:"questionId" validate:"required"`
	Value      string `json:"value"`
}

type goToPayload struct {
	Index *int `json:"index" validate:"required"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type startedPayload struct {
	Attempt   attempt.View            `json:"attempt"`
	Questions []domain.PublicQuestion `json:"questions"`
}

type statePayload struct {
	Attempt attempt.View `json:"attempt"`
	Moved   *bool        `json:"moved,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and runs one quiz attempt per connection.
// The attempt is discarded when the connection ends.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	principal, quizID, ok := principalFrom(r)
	if !ok {
		http.Error(w, "missing quizId, userId, or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	rec, err := h.service.Start(ctx, principal, quizID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	attemptID := rec.ID()
	defer h.service.Discard(context.WithoutCancel(ctx), attemptID)

	events, cancel := rec.Events()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Str("attemptId", attemptID).Msg("ws write error")
				return
			}
		}
	}()

	questions, err := h.service.Questions(ctx, attemptID)
	if err != nil {
		questions = []domain.PublicQuestion{}
	}
	send <- outboundMessage[any]{Type: "started", Payload: startedPayload{
		Attempt:   rec.Session.View(),
		Questions: questions,
	}}

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: ev.Type, Payload: ev.Payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		send <- h.handle(ctx, attemptID, inbound)
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

// handle applies one client message and returns the reply.
func (h *WSHandler) handle(ctx context.Context, attemptID string, inbound inboundMessage) outboundMessage[any] {
	var err error
	switch inbound.Type {
	case msgSelect, msgToggle:
		var payload optionPayload
		if err = decode(inbound.Payload, &payload); err != nil {
			return errorMessage(err)
		}
		if inbound.Type == msgSelect {
			err = h.service.SelectSingle(ctx, attemptID, payload.QuestionID, payload.OptionID)
		} else {
			err = h.service.ToggleMulti(ctx, attemptID, payload.QuestionID, payload.OptionID)
		}
	case msgText:
		var payload textPayload
		if err = decode(inbound.Payload, &payload); err != nil {
			return errorMessage(err)
		}
		err = h.service.SetText(ctx, attemptID, payload.QuestionID, payload.Value)
	case msgGoTo:
		var payload goToPayload
		if err = decode(inbound.Payload, &payload); err != nil {
			return errorMessage(err)
		}
		moved, err := h.service.GoTo(ctx, attemptID, *payload.Index)
		if err != nil {
			return errorMessage(err)
		}
		return h.state(ctx, attemptID, &moved)
	case msgState:
	case msgSubmit:
		result, err := h.service.Submit(ctx, attemptID)
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage[any]{Type: app.EventResult, Payload: result}
	default:
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
	}
	if err != nil {
		return errorMessage(err)
	}
	return h.state(ctx, attemptID, nil)
}

func (h *WSHandler) state(ctx context.Context, attemptID string, moved *bool) outboundMessage[any] {
	view, err := h.service.View(ctx, attemptID)
	if err != nil {
		return errorMessage(err)
	}
	return outboundMessage[any]{Type: msgState, Payload: statePayload{Attempt: view, Moved: moved}}
}

// decode unmarshals and validates a message payload.
func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errInvalidPayload
	}
	if res := domain.ValidateStruct(dst); !res.Valid() {
		return payloadError(res)
	}
	return nil
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
}

// principalFrom reads the caller from the query string. The bearer token, if any,
// comes from the Authorization header or the token query parameter.
func principalFrom(r *http.Request) (domain.Principal, string, bool) {
	q := r.URL.Query()
	principal := domain.Principal{
		UserID:      q.Get("userId"),
		DisplayName: q.Get("name"),
		Token:       q.Get("token"),
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		principal.Token = strings.TrimPrefix(auth, "Bearer ")
	}
	quizID := q.Get("quizId")
	if quizID == "" || !domain.ValidateStruct(principal).Valid() {
		return domain.Principal{}, "", false
	}
	return principal, quizID, true
}
