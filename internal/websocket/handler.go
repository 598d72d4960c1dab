package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"
	"github.com/dukerupert/curtaincall/internal/auth"
)

// HandleWebSocket returns an HTTP handler that upgrades connections to
// WebSocket and runs them as Hub clients. It must run behind the session
// middleware. Members start subscribed to their own topic.
func HandleWebSocket(hub *Hub, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := auth.FromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			hub.logger.Warn("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, conn, session)
		client.Subscribe(AnnouncementTopic(session.Audience()))
		if !session.IsStaff() {
			client.Subscribe(MemberTopic(session.UserID))
		}
		for _, id := range session.Children {
			client.Subscribe(MemberTopic(id))
		}
		client.Run(r.Context())
	}
}
