package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"quiz-reward-service/internal/app"
	"quiz-reward-service/internal/domain"
	"quiz-reward-service/internal/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventSource streams reward events for one user.
type EventSource interface {
	Subscribe(ctx context.Context, userID string) (<-chan domain.RewardEvent, func(), error)
}

type WSHandler struct {
	service  *app.QuizService
	events   EventSource
	upgrader websocket.Upgrader
}

// NewWSHandler wires the quiz use cases to websockets. events may be nil, in
// which case reward notifications are not pushed to clients.
func NewWSHandler(service *app.QuizService, events EventSource) *WSHandler {
	return &WSHandler{
		service: service,
		events:  events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPayload struct {
	QuestionIndex int `json:"questionIndex"`
	OptionIndex   int `json:"optionIndex"`
}

type navigatePayload struct {
	QuestionIndex int `json:"questionIndex"`
}

type validationPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	Message       string `json:"message"`
}

type reconciledPayload struct {
	Outcome string `json:"outcome"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string               `json:"code"`
	Message string               `json:"message"`
	Prior   *domain.RewardResult `json:"prior,omitempty"`
}

func errorMessage(err error) outboundMessage[any] {
	payload := errorPayload{Code: errorCode(err), Message: err.Error()}
	var exists *domain.AttemptExistsError
	if errors.As(err, &exists) {
		payload.Prior = exists.Prior
	}
	return outboundMessage[any]{Type: "error", Payload: payload}
}

func stateMessage(session *app.Session) outboundMessage[any] {
	return outboundMessage[any]{Type: "state", Payload: session.Snapshot()}
}

// errorCode maps domain errors to stable client codes.
func errorCode(err error) string {
	var perr *domain.PersistenceError
	switch {
	case errors.As(err, &perr):
		return "persistence"
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrQuizUnavailable), errors.Is(err, domain.ErrInvalidQuiz):
		return "quiz_unavailable"
	case errors.Is(err, domain.ErrSubmitInFlight):
		return "submit_in_flight"
	case errors.Is(err, domain.ErrAttemptExists):
		return "already_attempted"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrQuestionOutOfRange), errors.Is(err, domain.ErrOptionOutOfRange):
		return "out_of_range"
	case errors.Is(err, domain.ErrSessionNotFound):
		return "session_not_found"
	}
	return "internal"
}

// ServeWS upgrades HTTP requests to websockets and runs one quiz session per connection.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	contentID := r.URL.Query().Get("contentId")
	userID := r.URL.Query().Get("userId")
	if contentID == "" || userID == "" {
		http.Error(w, "missing contentId or userId", http.StatusBadRequest)
		return
	}
	wallet, _ := strconv.ParseBool(r.URL.Query().Get("wallet"))
	user := domain.UserSession{UserID: userID, WalletConnected: wallet}
	log := logger.Get().With(zap.String("userID", userID), zap.String("contentID", contentID))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	session, err := h.service.Open(r.Context(), user, contentID)
	if err != nil {
		_ = conn.WriteJSON(stateMessage(session))
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer h.service.Release(session)

	var events <-chan domain.RewardEvent
	if h.events != nil {
		ch, cancel, err := h.events.Subscribe(r.Context(), userID)
		if err != nil {
			log.Warn("reward subscription failed", zap.Error(err))
		} else {
			events = ch
			defer cancel()
		}
	}

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	// A single writer goroutine owns the connection's write side. Closing the
	// connection on a write error unblocks the read loop.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write error", zap.Error(err))
				_ = conn.Close()
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				if !deliver(send, closeSignals, outboundMessage[any]{Type: "reward", Payload: event}) {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	open := deliver(send, writerDone, stateMessage(session))
	for open {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		open = deliver(send, writerDone, h.handle(r.Context(), session, user, inbound)...)
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

// deliver queues msgs for the writer. It returns false once done is closed.
func deliver(send chan<- outboundMessage[any], done <-chan struct{}, msgs ...outboundMessage[any]) bool {
	for _, msg := range msgs {
		select {
		case send <- msg:
		case <-done:
			return false
		}
	}
	return true
}

func (h *WSHandler) handle(ctx context.Context, session *app.Session, user domain.UserSession, inbound inboundMessage) []outboundMessage[any] {
	switch inbound.Type {
	case "select":
		var payload selectPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return []outboundMessage[any]{badPayload("select")}
		}
		if err := session.SelectAnswer(payload.QuestionIndex, payload.OptionIndex); err != nil {
			return []outboundMessage[any]{errorMessage(err)}
		}
		return []outboundMessage[any]{stateMessage(session)}

	case "navigate":
		var payload navigatePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return []outboundMessage[any]{badPayload("navigate")}
		}
		if err := session.Navigate(payload.QuestionIndex); err != nil {
			return []outboundMessage[any]{errorMessage(err)}
		}
		return []outboundMessage[any]{stateMessage(session)}

	case "submit":
		result, err := h.service.SubmitSession(ctx, session)
		var verr *domain.ValidationError
		switch {
		case errors.As(err, &verr):
			return []outboundMessage[any]{
				{Type: "validationError", Payload: validationPayload{QuestionIndex: verr.QuestionIndex, Message: verr.Error()}},
				stateMessage(session),
			}
		case err != nil:
			return []outboundMessage[any]{errorMessage(err)}
		}
		return []outboundMessage[any]{
			{Type: "result", Payload: result},
			stateMessage(session),
		}

	case "review":
		if _, err := session.ToggleReview(); err != nil {
			return []outboundMessage[any]{errorMessage(err)}
		}
		return []outboundMessage[any]{stateMessage(session)}

	case "reconcile":
		outcome, err := h.service.Reconcile(ctx, user.UserID)
		if err != nil {
			return []outboundMessage[any]{errorMessage(err)}
		}
		return []outboundMessage[any]{{Type: "reconciled", Payload: reconciledPayload{Outcome: outcome.String()}}}
	}
	return []outboundMessage[any]{{Type: "error", Payload: errorPayload{Code: "bad_request", Message: "unsupported message type"}}}
}

func badPayload(kind string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "bad_request", Message: "invalid " + kind + " payload"}}
}
