package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// PredictStream answers one prediction per websocket text frame.
type PredictStream struct {
	api      *API
	upgrader websocket.Upgrader
	maxFrame int64
}

// NewPredictStream accepts connections from the given origins; "*" accepts any.
func NewPredictStream(api *API, origins []string, maxFrame int64) *PredictStream {
	anyOrigin := lo.Contains(origins, "*")
	return &PredictStream{
		api:      api,
		maxFrame: maxFrame,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return anyOrigin || origin == "" || lo.Contains(origins, origin)
			},
		},
	}
}

func (s *PredictStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		s.api.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	if s.maxFrame > 0 {
		conn.SetReadLimit(s.maxFrame)
	}

	requestID := GetRequestID(r.Context())
	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.api.logger.Info("websocket closed", zap.String("request_id", requestID), zap.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		if err := conn.WriteJSON(s.reply(r, payload)); err != nil {
			return
		}
	}
}

func (s *PredictStream) reply(r *http.Request, payload []byte) interface{} {
	var req PredictRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.api.metrics.RecordFailure(http.StatusBadRequest)
		return errorResponse{Error: errInvalidBody.Error()}
	}
	resp, err := s.api.predict(r.Context(), req)
	if err != nil {
		_, msg := errorMessage(err)
		return errorResponse{Error: msg}
	}
	return resp
}
