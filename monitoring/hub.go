package monitoring

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

const clientBufferSize = 16

// hub pushes frames to the connected websocket clients. A slow client misses
// frames instead of slowing the simulation down.
type hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	// current encodes the frame a new client starts with.
	current func() ([]byte, error)

	lock    sync.Mutex
	clients map[*websocket.Conn]chan []byte
	closed  bool
	wg      sync.WaitGroup
}

func newHub(logger *slog.Logger, current func() ([]byte, error)) *hub {
	return &hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger,
		current: current,
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

func (h *hub) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	send := make(chan []byte, clientBufferSize)

	first, err := h.current()
	if err != nil {
		h.logger.Warn("cannot encode frame", "error", err)
	}

	h.lock.Lock()
	if h.closed {
		h.lock.Unlock()
		conn.Close()

		return
	}

	h.clients[conn] = send
	if first != nil {
		send <- first
	}

	h.wg.Add(2)
	h.lock.Unlock()

	go h.write(conn, send)
	go h.read(conn)
}

func (h *hub) write(conn *websocket.Conn, send <-chan []byte) {
	defer h.wg.Done()

	for msg := range send {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug("cannot send frame", "error", err)
			h.remove(conn)

			return
		}
	}
}

func (h *hub) read(conn *websocket.Conn) {
	defer h.wg.Done()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed", "error", err)
			}

			h.remove(conn)

			return
		}
	}
}

func (h *hub) remove(conn *websocket.Conn) {
	h.lock.Lock()
	defer h.lock.Unlock()

	send, ok := h.clients[conn]
	if !ok {
		return
	}

	delete(h.clients, conn)
	close(send)
	conn.Close()
}

func (h *hub) broadcast(msg []byte) {
	h.lock.Lock()
	defer h.lock.Unlock()

	for _, send := range h.clients {
		select {
		case send <- msg:
		default:
		}
	}
}

func (h *hub) numClients() int {
	h.lock.Lock()
	defer h.lock.Unlock()

	return len(h.clients)
}

func (h *hub) close() {
	h.lock.Lock()
	h.closed = true

	for conn, send := range h.clients {
		delete(h.clients, conn)
		close(send)
		conn.Close()
	}
	h.lock.Unlock()

	h.wg.Wait()
}
