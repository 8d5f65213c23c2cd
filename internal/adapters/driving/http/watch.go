package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driving"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Watch message types
const (
	MessageWindow = "window"
	MessageChange = "change"
	MessageError  = "error"
)

// WatchMessage is one frame of the watch stream
type WatchMessage struct {
	Type   string              `json:"type"`
	Window any                 `json:"window,omitempty"`
	Event  *domain.ChangeEvent `json:"event,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// handleWatch godoc
// @Summary      Watch a window
// @Description  Upgrades to a websocket. Sends the loaded window, then a change frame
// @Description  followed by the re-read window after every committed load of the domain.
// @Tags         Catalog
// @Param        domain  path   string  true   "characters, episodes or locations"
// @Param        q       query  string  false  "Case-insensitive name substring"
// @Param        offset  query  int     false  "Window offset"
// @Param        limit   query  int     false  "Window size"
// @Success      101
// @Router       /api/v1/{domain}/watch [get]
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	d, ok := s.pathDomain(w, r)
	if !ok {
		return
	}
	filter, params, err := s.parseList(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	switch d {
	case domain.DomainCharacter:
		serveWatch(s, w, r, s.catalog.Characters(), filter, params)
	case domain.DomainEpisode:
		serveWatch(s, w, r, s.catalog.Episodes(), filter, params)
	case domain.DomainLocation:
		serveWatch(s, w, r, s.catalog.Locations(), filter, params)
	}
}

func serveWatch[T domain.Entity](s *Server, w http.ResponseWriter, r *http.Request, svc driving.EntityService[T], filter domain.Filter, p listParams) {
	view, err := svc.Watch(r.Context(), filter, p.Offset, p.Limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer view.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already wrote the error response
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	logger := s.logger.With("domain", svc.Domain(), "request_id", RequestID(r.Context()))
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer cancel()
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug("watch closed", "error", err)
				}
				return
			}
		}
	}()

	send := func(msg WatchMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debug("watch write failed", "error", err)
			return false
		}
		return true
	}
	sendWindow := func(win *domain.Window[T], err error) bool {
		if err != nil {
			return send(WatchMessage{Type: MessageError, Error: err.Error()})
		}
		return send(WatchMessage{Type: MessageWindow, Window: win})
	}

	if !sendWindow(view.Load(ctx)) {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case ev, ok := <-view.Changes():
			if !ok {
				return
			}
			if !send(WatchMessage{Type: MessageChange, Event: &ev}) || !sendWindow(view.Snapshot(ctx)) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
