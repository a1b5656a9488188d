package ml

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	streamReadLimit  = 64 * 1024
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 30 * time.Second
	streamWriteWait  = 10 * time.Second
)

// StreamRequest is one prediction request on the websocket stream.
type StreamRequest struct {
	Pipeline  string            `json:"pipeline"`
	Features  []json.RawMessage `json:"features"`
	RequestID string            `json:"request_id,omitempty"`
}

// StreamResponse answers exactly one StreamRequest.
type StreamResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Pipeline  string `json:"pipeline,omitempty"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (ms *ModelServer) upgrader() websocket.Upgrader {
	allowed := ms.config.AllowedOrigins
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowed) == 0 {
				return true
			}
			for _, o := range allowed {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
}

func (ms *ModelServer) handleStream(w http.ResponseWriter, r *http.Request) {
	up := ms.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	if ms.metrics != nil {
		ms.metrics.StreamSessionsAdd(1)
		defer ms.metrics.StreamSessionsAdd(-1)
	}
	log.Info().Str("remote", r.RemoteAddr).Msg("prediction stream opened")

	conn.SetReadLimit(streamReadLimit)
	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	// gorilla connections allow one concurrent writer.
	var writeMu sync.Mutex
	write := func(messageType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		return conn.WriteMessage(messageType, data)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(streamPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := write(websocket.PingMessage, nil); err != nil {
					log.Debug().Err(err).Msg("stream ping failed")
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("prediction stream closed unexpectedly")
			} else {
				log.Info().Str("remote", r.RemoteAddr).Msg("prediction stream closed")
			}
			return
		}

		resp := ms.streamPredict(msg)
		data, err := json.Marshal(resp)
		if err != nil {
			log.Error().Err(err).Msg("failed to marshal stream response")
			return
		}
		if err := write(websocket.TextMessage, data); err != nil {
			log.Debug().Err(err).Msg("stream write failed")
			return
		}
	}
}

func (ms *ModelServer) streamPredict(msg []byte) StreamResponse {
	var req StreamRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return StreamResponse{Error: fmt.Sprintf("invalid request: %v", err)}
	}

	resp := StreamResponse{RequestID: req.RequestID, Pipeline: req.Pipeline}
	p, ok := ms.byName[req.Pipeline]
	if !ok {
		resp.Error = fmt.Sprintf("unknown pipeline %q", req.Pipeline)
		return resp
	}

	res, err := p.RunJSON(req.Features)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Result = res.Payload
	return resp
}
