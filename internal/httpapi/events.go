package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	eventsBuffer = 64
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS handled by middleware
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// events godoc
// @Summary  Live stream of deltas, refresh status, progress and mutation results
// @Description WebSocket; each text message is one JSON Event.
// @Router   /events [get]
func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	// Subscribe before the handshake completes so a client that acts right
	// after connecting sees the resulting events.
	events, cancel := h.svc.Subscribe(eventsBuffer)
	defer cancel()

	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		zlog.Debug().Err(err).Msg("events upgrade failed")
		return
	}
	defer ws.Close()

	ctx, stop := handlerContext(r)
	defer stop()

	// Client messages are ignored; reading keeps pongs and close frames flowing.
	readDone := make(chan struct{})
	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteJSON(ev); err != nil {
				zlog.Debug().Err(err).Msg("events write failed")
				return
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-readDone:
			return
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
			_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
			return
		}
	}
}
