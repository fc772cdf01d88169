package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"quizz/internal/auth"
	"quizz/internal/models"
)

// Message represents the standard message format exchanged over WebSocket.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
	requestTimeout = 5 * time.Second
)

type UserInfo struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
}

// QuizService is the part of the quiz service driven from client messages.
type QuizService interface {
	Exists(ctx context.Context, quizCode string) (bool, error)
	CheckAnswer(ctx context.Context, quizCode string, userID uint, answer string) (models.AnswerResult, error)
	NextQuestion(ctx context.Context, quizCode string, userID uint) (bool, error)
}

type Hub struct {
	quizRooms   map[string]map[*Client]bool
	register    chan *Client
	unregister  chan *Client
	done        chan struct{}
	mu          sync.RWMutex
	quizService QuizService
	upgrader    websocket.Upgrader
}

// NewHub builds a hub accepting upgrades from allowedOrigins. A "*" entry
// or an empty list allows any origin.
func NewHub(allowedOrigins []string) *Hub {
	h := &Hub{
		quizRooms:  make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		log.Printf("Rejected websocket origin %s", origin)
		return false
	}
}

func (h *Hub) SetQuizService(service QuizService) {
	h.quizService = service
}

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	quizCode string
	user     UserInfo
}

// NewClient creates a new Client instance.
func NewClient(hub *Hub, conn *websocket.Conn, quizCode string, user UserInfo) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		quizCode: quizCode,
		user:     user,
	}
}

// Run owns room membership until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return
		}
	}
}

// join and leave give up once Run has stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	room, ok := h.quizRooms[client.quizCode]
	if !ok {
		room = make(map[*Client]bool)
		h.quizRooms[client.quizCode] = room
		log.Printf("Created room for quiz %s", client.quizCode)
	}
	room[client] = true
	h.mu.Unlock()

	log.Printf("User %d joined quiz %s", client.user.UserID, client.quizCode)
	h.SendParticipantList(client.quizCode)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	room, ok := h.quizRooms[client.quizCode]
	if !ok || !room[client] {
		h.mu.Unlock()
		return
	}
	delete(room, client)
	if len(room) == 0 {
		delete(h.quizRooms, client.quizCode)
	}
	close(client.send)
	h.mu.Unlock()

	log.Printf("User %d left quiz %s", client.user.UserID, client.quizCode)
	h.SendParticipantList(client.quizCode)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for code, room := range h.quizRooms {
		for client := range room {
			close(client.send)
		}
		delete(h.quizRooms, code)
	}
}

func (h *Hub) participants(quizCode string) []UserInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]UserInfo, 0, len(h.quizRooms[quizCode]))
	for c := range h.quizRooms[quizCode] {
		out = append(out, c.user)
	}
	return out
}

func (h *Hub) SendParticipantList(quizCode string) {
	participants := h.participants(quizCode)
	h.BroadcastMessage(quizCode, "participant_update", map[string]interface{}{
		"participants": participants,
		"count":        len(participants),
	})
}

func (h *Hub) BroadcastToQuiz(quizCode string, message []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.quizRooms[quizCode]))
	for c := range h.quizRooms[quizCode] {
		clients = append(clients, c)
	}

	for _, c := range clients {
		select {
		case c.send <- message:
		default:
			log.Printf("Send channel full for user %d; dropping client", c.user.UserID)
			// Run may be the caller, so hand off instead of blocking on it.
			go h.leave(c)
		}
	}
	h.mu.RUnlock()
}

// BroadcastMessage marshals the message and then broadcasts it.
func (h *Hub) BroadcastMessage(quizCode string, messageType string, data interface{}) {
	messageBytes, err := json.Marshal(Message{Type: messageType, Data: data})
	if err != nil {
		log.Printf("Error marshaling %s message: %v", messageType, err)
		return
	}
	h.BroadcastToQuiz(quizCode, messageBytes)
}

// HandleWebSocket upgrades an authenticated request and joins the client to
// the quiz room named in the path. Unknown quizzes get a 404 before the
// upgrade.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	quizCode := mux.Vars(r)["quizCode"]
	if quizCode == "" {
		http.Error(w, "Missing quiz code", http.StatusBadRequest)
		return
	}
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if h.quizService != nil {
		exists, err := h.quizService.Exists(r.Context(), quizCode)
		if err != nil {
			log.Printf("Error looking up quiz %s: %v", quizCode, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if !exists {
			http.Error(w, "Quiz not found", http.StatusNotFound)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := NewClient(h, conn, quizCode, UserInfo{
		UserID:   userID,
		Username: auth.UsernameFromContext(r.Context()),
	})
	if !h.join(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump continuously reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Unexpected close: %v", err)
			}
			break
		}
		c.handleMessage(message)
	}
}

type answerPayload struct {
	Answer string `json:"answer"`
}

func (c *Client) handleMessage(message []byte) {
	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		c.sendError(errors.New("malformed message"))
		return
	}

	if c.hub.quizService == nil {
		log.Printf("Quiz service not initialized")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch msg.Type {
	case "answer_submitted":
		var data answerPayload
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(errors.New("answer_submitted needs an answer"))
			return
		}
		result, err := c.hub.quizService.CheckAnswer(ctx, c.quizCode, c.user.UserID, data.Answer)
		if err != nil {
			c.sendError(err)
			return
		}
		c.sendMessage("answer_result", result)

	case "next_question":
		if _, err := c.hub.quizService.NextQuestion(ctx, c.quizCode, c.user.UserID); err != nil {
			c.sendError(err)
		}

	default:
		log.Printf("Unknown message type %q from user %d", msg.Type, c.user.UserID)
		c.sendError(errors.New("unknown message type " + msg.Type))
	}
}

func (c *Client) sendError(err error) {
	c.sendMessage("error", map[string]string{"message": err.Error()})
}

// sendMessage queues a message for this client only.
func (c *Client) sendMessage(messageType string, data interface{}) {
	messageBytes, err := json.Marshal(Message{Type: messageType, Data: data})
	if err != nil {
		log.Printf("Error marshaling %s message: %v", messageType, err)
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.quizRooms[c.quizCode][c] {
		return
	}
	select {
	case c.send <- messageBytes:
	default:
		log.Printf("Send channel full for user %d", c.user.UserID)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				log.Printf("Error getting writer for user %d: %v", c.user.UserID, err)
				return
			}
			if _, err := w.Write(message); err != nil {
				log.Printf("Error writing message to user %d: %v", c.user.UserID, err)
				return
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
