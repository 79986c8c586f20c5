package api

import (
	"context"
	"net/http"

	"github.com/coder/websocket"

	"github.com/banshee-data/navmap/internal/telemetry"
)

// wsConn adapts a WebSocket connection to telemetry.Conn.
type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Send(ctx context.Context, msg []byte) error {
	return w.c.Write(ctx, websocket.MessageText, msg)
}

func (w *wsConn) Ping(ctx context.Context) error {
	return w.c.Ping(ctx)
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) handleTelemetryStream(w http.ResponseWriter, r *http.Request) {
	s.serveStream(w, r, telemetry.KindTelemetry)
}

func (s *Server) handleNotifyStream(w http.ResponseWriter, r *http.Request) {
	s.serveStream(w, r, telemetry.KindNotify)
}

// serveStream upgrades the request and hands the connection to the hub. It
// returns once the client disconnects or the hub drops the subscriber.
func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, kind telemetry.Kind) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		logf("%s upgrade failed: %v", kind, err)
		return
	}
	// clients never send data; the read loop only handles control frames
	ctx := c.CloseRead(r.Context())

	id, err := s.hub.Subscribe(&wsConn{c: c}, kind)
	if err != nil {
		c.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	select {
	case <-ctx.Done():
		s.hub.Unsubscribe(id)
	case <-s.hub.Done(id):
	}
}
