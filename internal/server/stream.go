package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dorolabs/novelverse/backend/internal/novels"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamTokenParam   = "token"
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

type streamMessage struct {
	Novels []novelPayload `json:"novels"`
}

// handleStream upgrades the connection and pushes the viewer-relative
// projected set on every full-collection emission. The viewer is fixed at
// connection time from the token query parameter; anonymous connections are
// allowed.
func (h *httpHandler) handleStream(c *gin.Context) {
	var viewer novels.Viewer
	if token := c.Query(streamTokenParam); token != "" {
		validated, err := h.tokens.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		viewer = validated
	}

	conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	snapshots, snapshotCancel, err := h.store.Subscribe(ctx, h.collection)
	if err != nil {
		h.logger.Error("stream subscription failed", zap.Error(err))
		return
	}
	defer snapshotCancel()

	// Drain the read side so client close frames terminate the stream.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-snapshots:
			if !ok {
				return
			}

			entries := make([]novels.Entry, 0, len(snapshot.Entries))
			for _, raw := range snapshot.Entries {
				var record novels.Record
				if err := json.Unmarshal(raw.Value, &record); err != nil {
					h.logger.Warn("skipping malformed record in stream",
						zap.String("key", raw.Key), zap.Error(err))
					continue
				}
				entries = append(entries, novels.Entry{Key: raw.Key, Record: record})
			}

			projector := novels.NewProjector()
			projector.Apply(entries, viewer)

			records := projector.Records()
			message := streamMessage{Novels: make([]novelPayload, 0, len(records))}
			for _, record := range records {
				message.Novels = append(message.Novels, toNovelPayload(record))
			}

			if err := conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteJSON(message); err != nil {
				return
			}
		}
	}
}
