package transport

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"tsgraph/internal/notify"
)

// hub fans out notify.Events to every connected websocket client:
// register/unregister/broadcast over channels, guarded by a mutex.
type hub struct {
	mu         sync.Mutex
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newHub() *hub {
	return &hub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan []byte),
	}
}

func (h *hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// feedFromBus subscribes the hub to bus and broadcasts every Event as JSON.
// Bus.Close does not close subscriber channels, so the loop does not end
// when the bus is closed; it runs for the life of the process.
func (h *hub) feedFromBus(bus *notify.Bus) {
	ch := make(chan notify.Event, 256)
	bus.Subscribe(ch)
	for evt := range ch {
		data, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		h.broadcast <- data
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleWebSocket streams notify.Events for the lifetime of the
// connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("[transport] websocket upgrade error:", err)
		return
	}

	s.wsHubOnce.Do(func() {
		s.wsHub = newHub()
		go s.wsHub.run()
		if s.Bus != nil {
			go s.wsHub.feedFromBus(s.Bus)
		}
	})

	client := &wsClient{conn: conn, send: make(chan []byte, 256)}
	s.wsHub.register <- client

	go func() {
		defer func() {
			s.wsHub.unregister <- client
			conn.Close()
		}()
		for msg := range client.send {
			w, err := conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			w.Close()
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
