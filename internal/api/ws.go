/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/openhome/internal/events"
	"github.com/friendsincode/openhome/internal/telemetry"
)

const (
	snapshotEvery = time.Second
	wsWriteTimeout = 5 * time.Second
)

type wsMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// handleWebSocket streams the controller snapshot once a second and every
// controller event as it happens.
func (a *API) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	// The client never sends; CloseRead cancels ctx when it goes away.
	ctx := conn.CloseRead(r.Context())

	merged := make(chan wsMessage, 16)
	var wg sync.WaitGroup
	types := events.Types()
	subs := make([]events.Subscriber, len(types))
	for i, t := range types {
		subs[i] = a.deps.Bus.Subscribe(t)
		wg.Add(1)
		go func(t events.EventType, ch events.Subscriber) {
			defer wg.Done()
			for p := range ch {
				select {
				case merged <- wsMessage{Type: string(t), Payload: p}:
				default:
				}
			}
		}(t, subs[i])
	}
	defer func() {
		for i, t := range types {
			a.deps.Bus.Unsubscribe(t, subs[i])
		}
		wg.Wait()
	}()

	send := func(m wsMessage) error {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
		defer cancel()
		return conn.Write(wctx, ws.MessageText, data)
	}
	sendSnapshot := func() error {
		snap := a.deps.Controller.Snapshot()
		if snap == nil {
			return nil
		}
		return send(wsMessage{Type: "snapshot", Payload: snap})
	}

	if err := sendSnapshot(); err != nil {
		return
	}
	ticker := time.NewTicker(snapshotEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := sendSnapshot(); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case m := <-merged:
			if err := send(m); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}
