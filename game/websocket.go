package game

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/zond/mudcore"
	"github.com/zond/mudcore/message"
)

const (
	WebSocketTransport = "websocket"
	writeTimeout       = 5 * time.Second
)

type wsInput struct {
	Command string `json:"command"`
}

// wsConn speaks the structured json terminal: every rendered message is one
// text frame, and every frame read is one line, either raw or as
// {"command": line}.
type wsConn struct {
	conn *websocket.Conn

	mutex sync.Mutex
}

func (w *wsConn) Write(b []byte) (int, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if err := w.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return 0, mudcore.WithStack(err)
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return 0, mudcore.WithStack(err)
	}
	return len(b), nil
}

func (w *wsConn) WritePrompt(b []byte) error {
	_, err := w.Write(b)
	return err
}

// ReadNext ignores noEcho, the client decides how to show input.
func (w *wsConn) ReadNext(bool) (string, error) {
	_, data, err := w.conn.ReadMessage()
	if err != nil {
		return "", mudcore.WithStack(err)
	}
	input := &wsInput{}
	if strings.HasPrefix(strings.TrimSpace(string(data)), "{") && json.Unmarshal(data, input) == nil {
		return input.Command, nil
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func (w *wsConn) Close() error {
	return w.conn.Close()
}

// WebSocketHandler serves connections upgraded to websockets. The user
// query parameter is trusted as the user name.
func (g *Game) WebSocketHandler() http.Handler {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := r.URL.Query().Get("user")
		if user == "" {
			http.Error(w, "user required", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			g.log.Infow("websocket upgrade", "error", err)
			return
		}
		wc := &wsConn{conn: conn}
		defer wc.Close()
		err = g.Serve(r.Context(), wc, Login{
			User:      user,
			Transport: WebSocketTransport,
			Terminal:  message.JSONTerminal,
		})
		var closeErr *websocket.CloseError
		if err != nil && !errors.As(err, &closeErr) {
			g.log.Infow("serving websocket", "user", user, "error", err)
		}
	})
}
