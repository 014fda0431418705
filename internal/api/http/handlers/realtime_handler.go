package handlers

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/station-helpdesk/internal/auth"
	"github.com/spec-kit/station-helpdesk/internal/realtime"
	"github.com/spec-kit/station-helpdesk/internal/service"
	apperrors "github.com/spec-kit/station-helpdesk/pkg/util/errorutil"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsMaxMessage = 4096
)

// RealtimeHandler upgrades authenticated requests to websocket connections
// and manages ticket room membership.
type RealtimeHandler struct {
	hub     *realtime.Hub
	tickets *service.TicketService
	logger  *zap.Logger
}

// NewRealtimeHandler constructs handler.
func NewRealtimeHandler(hub *realtime.Hub, tickets *service.TicketService, logger *zap.Logger) *RealtimeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeHandler{hub: hub, tickets: tickets, logger: logger}
}

// RequireUpgrade rejects plain HTTP requests on the websocket route.
func (h *RealtimeHandler) RequireUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

// Serve returns the websocket handler for GET /ws.
func (h *RealtimeHandler) Serve() fiber.Handler {
	return websocket.New(h.serve)
}

func (h *RealtimeHandler) serve(conn *websocket.Conn) {
	principal, ok := auth.PrincipalFromValue(conn.Locals(auth.PrincipalLocalsKey))
	if !ok {
		_ = conn.Close()
		return
	}
	client := h.hub.Register(principal.ID(), principal.Role())
	logger := h.logger.With(zap.String("client_id", client.ID()), zap.String("user_id", client.UserID()))
	logger.Debug("realtime client connected")

	done := make(chan struct{})
	go h.writePump(conn, client, done)

	defer func() {
		h.hub.Unregister(client)
		<-done
		_ = conn.Close()
		logger.Debug("realtime client disconnected")
	}()

	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleFrame(principal, client, raw)
	}
}

// writePump drains the client's queue until the hub closes it.
func (h *RealtimeHandler) writePump(conn *websocket.Conn, client *realtime.Client, done chan<- struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	for {
		select {
		case frame, open := <-client.Messages():
			if !open {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.hub.Unregister(client)
				drain(client)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.hub.Unregister(client)
				drain(client)
				return
			}
		}
	}
}

func drain(client *realtime.Client) {
	for range client.Messages() {
	}
}

type roomAck struct {
	TicketID string `json:"ticket_id"`
}

type errorFrame struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *RealtimeHandler) handleFrame(principal *auth.Principal, client *realtime.Client, raw []byte) {
	var frame realtime.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.hub.SendTo(client, realtime.EventError, errorFrame{Code: apperrors.CodeValidation, Message: "malformed frame"})
		return
	}
	var ticketID string
	if err := json.Unmarshal(frame.Data, &ticketID); err != nil || strings.TrimSpace(ticketID) == "" {
		h.hub.SendTo(client, realtime.EventError, errorFrame{Code: apperrors.CodeValidation, Message: "data must be a ticket id"})
		return
	}

	switch frame.Event {
	case realtime.EventJoinTicket:
		ctx, cancel := context.WithTimeout(context.Background(), wsWriteWait)
		defer cancel()
		if _, err := h.tickets.GetTicket(ctx, principal.User, ticketID); err != nil {
			domainErr := apperrors.ToDomainError(err)
			h.hub.SendTo(client, realtime.EventError, errorFrame{Code: domainErr.Code, Message: domainErr.Message})
			return
		}
		h.hub.Join(client, ticketID)
		h.hub.SendTo(client, realtime.EventJoined, roomAck{TicketID: ticketID})
	case realtime.EventLeaveTicket:
		h.hub.Leave(client, ticketID)
		h.hub.SendTo(client, realtime.EventLeft, roomAck{TicketID: ticketID})
	default:
		h.hub.SendTo(client, realtime.EventError, errorFrame{Code: apperrors.CodeValidation, Message: "unknown event " + frame.Event})
	}
}
