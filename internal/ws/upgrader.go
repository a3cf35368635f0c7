package ws

import (
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
)

// NewUpgrader разрешает только перечисленные origins; в development - все
func NewUpgrader(allowedOrigins []string, development bool) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if development {
				return true
			}

			origin := r.Header.Get("Origin")
			// не браузер
			if origin == "" {
				return true
			}

			return slices.Contains(allowedOrigins, origin)
		},
	}
}
