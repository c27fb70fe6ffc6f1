package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	// readTimeout bounds how long a connection may stay silent. The exam
	// page pings every 30 seconds, so 90 seconds of silence means the tab
	// is gone.
	readTimeout = 90 * time.Second
)

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func WriteError(conn *websocket.Conn, code, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{Event: EventError, Code: code, Error: errMsg})
}

// ReadJSON reads one request with the idle deadline applied.
func ReadJSON(conn *websocket.Conn, dst *RequestPayload) error {
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	return conn.ReadJSON(dst)
}
