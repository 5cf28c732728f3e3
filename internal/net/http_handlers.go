package net

import (
	"encoding/json"
	nethttp "net/http"
	"time"

	"github.com/sirupsen/logrus"

	"hollowgrove/bot/internal/net/ws"
)

type HTTPHandlerConfig struct {
	Logger *logrus.Entry
}

// NewHTTPHandler builds the process mux: health probe, board snapshot, and
// the websocket gateway.
func NewHTTPHandler(svc ws.RaidService, board *ws.Board, wsHandler *ws.Handler, cfg HTTPHandlerConfig) nethttp.Handler {
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/healthz", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/status", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		boss := svc.Snapshot()
		payload := struct {
			ServerTime int64 `json:"server_time"`
			Sessions   int   `json:"sessions"`
			Boss       any   `json:"boss"`
		}{
			ServerTime: time.Now().UnixMilli(),
			Sessions:   board.Count(),
			Boss:       boss,
		}
		data, err := json.Marshal(payload)
		if err != nil {
			log.WithError(err).Error("status encode failed")
			nethttp.Error(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("/ws", wsHandler.Handle)

	return mux
}
