package api

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	domrepo "QuantBridge/internal/domain/repository"
	"QuantBridge/internal/protocol"
	"QuantBridge/internal/usecase"
	xlogger "QuantBridge/pkg/logger"
)

const wsReadLimit = 4 << 20

// SessionWSHandler speaks the session protocol over WebSocket: one text frame
// per request, one text frame per response.
type SessionWSHandler struct {
	service  *usecase.SignalService
	metrics  domrepo.Metrics
	logger   *xlogger.Logger
	upgrader websocket.Upgrader
}

func NewSessionWSHandler(service *usecase.SignalService, metrics domrepo.Metrics, logger *xlogger.Logger) *SessionWSHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &SessionWSHandler{
		service: service,
		metrics: metrics,
		logger:  logger.With(xlogger.String("component", "session_ws")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *SessionWSHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Serve)
}

func (h *SessionWSHandler) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	log := h.logger.With(xlogger.String("remote", c.RealIP()))
	h.metrics.SessionOpened(usecase.TransportWS)
	log.Info("session opened")
	defer func() {
		h.metrics.SessionClosed(usecase.TransportWS)
		log.Info("session closed")
	}()

	ctx := c.Request().Context()
	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("session read failed", xlogger.Error(err))
			}
			return nil
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		res := h.service.Handle(ctx, usecase.TransportWS, msg)
		if err := conn.WriteMessage(websocket.TextMessage, protocol.Encode(res)); err != nil {
			log.Warn("session write failed", xlogger.Error(err))
			return nil
		}
	}
}
