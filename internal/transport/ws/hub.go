package ws

import (
	"encoding/json"
	"log"
	"sync"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MsgReportUpdated MessageType = "report_updated"
	MsgActivity      MessageType = "activity"
	MsgError         MessageType = "error"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub manages viewer connections per report. Delivery is best effort: a
// slow viewer gets dropped messages, never a stalled pipeline.
type Hub struct {
	// reportID -> connections
	viewers map[string]map[*Connection]bool

	mu sync.RWMutex

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
}

// Connection represents one viewer's WebSocket connection
type Connection struct {
	ReportID string
	Send     chan []byte
	Hub      *Hub
}

// BroadcastMessage is a message to broadcast to a report's viewers
type BroadcastMessage struct {
	ReportID string
	Message  *Message
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	h := &Hub{
		viewers:    make(map[string]map[*Connection]bool),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if h.viewers[conn.ReportID] == nil {
				h.viewers[conn.ReportID] = make(map[*Connection]bool)
			}
			h.viewers[conn.ReportID][conn] = true
			h.mu.Unlock()
			log.Printf("Viewer connected to report %s", conn.ReportID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.viewers[conn.ReportID]; ok {
				if conns[conn] {
					delete(conns, conn)
					close(conn.Send)
					if len(conns) == 0 {
						delete(h.viewers, conn.ReportID)
					}
					log.Printf("Viewer disconnected from report %s", conn.ReportID)
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			data, _ := json.Marshal(msg.Message)
			for conn := range h.viewers[msg.ReportID] {
				select {
				case conn.Send <- data:
				default:
					// Drop message if buffer full
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// BroadcastToReport sends a message to every viewer of a report
// (implements service.Broadcaster)
func (h *Hub) BroadcastToReport(reportID string, msgType string, payload interface{}) {
	data, _ := json.Marshal(payload)
	h.broadcast <- &BroadcastMessage{
		ReportID: reportID,
		Message: &Message{
			Type:    MessageType(msgType),
			Payload: data,
		},
	}
}
