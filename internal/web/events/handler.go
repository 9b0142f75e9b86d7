package events

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/conduit-lang/restgen/internal/web/response"
)

// EntityParam narrows a subscription to a comma separated list of entities
const EntityParam = "entity"

// Handler upgrades requests to websocket subscriptions on a hub
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler creates the subscription endpoint of hub. A nil checkOrigin
// accepts same-origin requests only.
func NewHandler(hub *Hub, checkOrigin func(r *http.Request) bool) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// ServeHTTP validates the entity filter and upgrades the connection
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	entities, err := h.entities(r)
	if err != nil {
		response.Error(w, r, nil, response.NewHTTPError(http.StatusBadRequest, err.Error()))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already wrote the error response
		h.hub.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(uuid.NewString(), conn, h.hub, entities)
	select {
	case <-h.hub.done:
		conn.Close()
		return
	default:
	}
	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *Handler) entities(r *http.Request) ([]string, error) {
	raw := r.URL.Query().Get(EntityParam)
	if raw == "" {
		return nil, nil
	}

	var out []string
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := h.hub.registry.Get(name); !ok {
			return nil, fmt.Errorf("unknown entity %q", name)
		}
		out = append(out, name)
	}
	return out, nil
}
