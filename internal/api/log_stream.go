// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/oscaromsn/harvest/internal/session"
)

// logStreamPollInterval bounds how often streamLog checks a session's
// log for new entries; the Session Manager has no append notification
// channel, so this polls the same slice HandleLog reads synchronously.
const logStreamPollInterval = 500 * time.Millisecond

var logStreamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamLog upgrades the connection and tails sess.Logs, pushing any
// entry appended after the stream opens, following
// gorilla/websocket's own idiomatic read/write-pump split.
func (h *Handlers) streamLog(c *gin.Context, sess *session.Session) {
	conn, err := logStreamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("log stream upgrade failed", "session_id", sess.ID, "error", err)
		return
	}
	defer conn.Close()

	sent := 0
	ticker := time.NewTicker(logStreamPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			entries := sess.Logs
			for _, e := range entries[sent:] {
				msg := LogEntryResponse{At: e.At, Level: string(e.Level), Message: e.Message, Data: e.Data}
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			}
			sent = len(entries)
		}
	}
}
