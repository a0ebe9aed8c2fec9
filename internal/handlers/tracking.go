package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"orderflow/internal/lifecycle"
	"orderflow/internal/models"
	"orderflow/internal/notify"
	"orderflow/internal/tracking"
)

const (
	DefaultTrackingRefresh = 5 * time.Second
	writeWait              = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func GetTracking(svc *lifecycle.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/orders/:id/tracking"
		defer handlePanic(c, route)

		actor, ok := requireActor(c, route)
		if !ok {
			return
		}
		id, ok := objectIDParam(c, route, "id")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		view, err := svc.Track(ctx, id, actor)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// TrackingStream pushes a fresh projection over a websocket whenever the
// order changes and every refresh interval so the courier keeps moving. The
// socket is closed once the order is delivered or cancelled.
func TrackingStream(svc *lifecycle.Service, events notify.Subscriber, refresh time.Duration) gin.HandlerFunc {
	if refresh <= 0 {
		refresh = DefaultTrackingRefresh
	}
	return func(c *gin.Context) {
		const route = "GET /api/orders/:id/tracking/ws"
		defer handlePanic(c, route)

		actor, ok := requireActor(c, route)
		if !ok {
			return
		}
		id, ok := objectIDParam(c, route, "id")
		if !ok {
			return
		}

		// authorise before upgrading so errors are plain HTTP responses
		view, err := trackOnce(c.Request.Context(), svc, id, actor)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[TRACKING] [ERROR] websocket upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		updates, unsubscribe, err := events.Subscribe(ctx, id.Hex())
		if err != nil {
			log.Printf("[TRACKING] [ERROR] order %s: subscribe failed: %v", id.Hex(), err)
			closeSocket(conn, websocket.CloseInternalServerErr, "updates unavailable")
			return
		}
		defer unsubscribe()

		// the client never sends anything; reading detects when it goes away
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(refresh)
		defer ticker.Stop()

		for {
			if err := writeView(conn, view); err != nil {
				log.Printf("[TRACKING] [INFO] order %s: client gone: %v", id.Hex(), err)
				return
			}
			if view.Status.Terminal() {
				closeSocket(conn, websocket.CloseNormalClosure, "order "+string(view.Status))
				return
			}

			select {
			case <-ctx.Done():
				return
			case _, open := <-updates:
				if !open {
					return
				}
			case <-ticker.C:
			}

			view, err = trackOnce(ctx, svc, id, actor)
			if err != nil {
				log.Printf("[TRACKING] [ERROR] order %s: %v", id.Hex(), err)
				closeSocket(conn, websocket.CloseInternalServerErr, "tracking unavailable")
				return
			}
		}
	}
}

func trackOnce(parent context.Context, svc *lifecycle.Service, id primitive.ObjectID, actor models.Actor) (tracking.View, error) {
	ctx, cancel := context.WithTimeout(parent, requestTimeout)
	defer cancel()
	return svc.Track(ctx, id, actor)
}

func writeView(conn *websocket.Conn, view tracking.View) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(gin.H{"type": "tracking", "view": view})
}

func closeSocket(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
