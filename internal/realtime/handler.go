package realtime

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Authenticator resolves a connection token to claims. Returning an error
// closes the socket with code 4001.
type Authenticator func(token string) (Claims, error)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The gateway fronts browser clients on other origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades WebSocket connections and attaches them to the hub.
type Handler struct {
	hub        *Hub
	auth       Authenticator
	sendBuffer int
}

// NewHandler creates the WebSocket handler.
func NewHandler(hub *Hub, auth Authenticator, sendBuffer int) *Handler {
	return &Handler{hub: hub, auth: auth, sendBuffer: sendBuffer}
}

// Serve handles GET /ws?token=... The token is validated after the upgrade
// so the client receives a proper close frame instead of an HTTP error.
func (h *Handler) Serve(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	token := c.QueryParam("token")
	claims, authErr := Claims{}, error(nil)
	if token == "" {
		authErr = echo.ErrUnauthorized
	} else {
		claims, authErr = h.auth(token)
	}
	if authErr != nil {
		h.hub.logger.Debug(c.Request().Context(), "websocket auth rejected", zap.Error(authErr))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseUnauthorized, "invalid token"))
		conn.Close()
		return nil
	}

	client := newClient(h.hub, conn, claims, h.sendBuffer)
	h.hub.register(client)

	go client.writePump()
	go client.readPump()
	return nil
}
