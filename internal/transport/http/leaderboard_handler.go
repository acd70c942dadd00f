package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"quiz-attempt-service/internal/app"
)

// LeaderboardHandler exposes quiz standings over plain HTTP and as a websocket stream.
type LeaderboardHandler struct {
	service  *app.AttemptService
	upgrader websocket.Upgrader
}

func NewLeaderboardHandler(service *app.AttemptService) *LeaderboardHandler {
	return &LeaderboardHandler{service: service, upgrader: newUpgrader()}
}

// ServeHTTP returns the current standings of ?quizId= as JSON.
func (h *LeaderboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	quizID := r.URL.Query().Get("quizId")
	if quizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.service.Leaderboard(r.Context(), quizID)); err != nil {
		log.Warn().Err(err).Str("quizId", quizID).Msg("leaderboard encode failed")
	}
}

// ServeWS pushes every standings change of ?quizId= until the client goes away.
func (h *LeaderboardHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	if quizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	updates, cancel := h.service.SubscribeLeaderboard(r.Context(), quizID)
	defer cancel()

	// The read loop only notices the client closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case lb, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(outboundMessage[any]{Type: "leaderboard", Payload: lb}); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}
