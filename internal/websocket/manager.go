package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

// Manager tracks connected operator clients and fans notification
// messages out to all of them.
type Manager struct {
	clients        map[string]*Client
	operatorIndex  map[string]map[string]bool
	clientsMutex   sync.RWMutex
	Register       chan *Client
	Unregister     chan *Client
	HandleMessage  chan *ClientMessage
	maxConnPerUser int
	maxMessageSize int64
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
}

func NewManager(maxConnPerUser int, maxMessageSize int64, writeWait, pongWait, pingPeriod time.Duration) *Manager {
	return &Manager{
		clients:        make(map[string]*Client),
		operatorIndex:  make(map[string]map[string]bool),
		Register:       make(chan *Client),
		Unregister:     make(chan *Client),
		HandleMessage:  make(chan *ClientMessage),
		maxConnPerUser: maxConnPerUser,
		maxMessageSize: maxMessageSize,
		writeWait:      writeWait,
		pongWait:       pongWait,
		pingPeriod:     pingPeriod,
	}
}

func (m *Manager) Run() {
	for {
		select {
		case client := <-m.Register:
			m.registerClient(client)

		case client := <-m.Unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.HandleMessage:
			m.processMessage(clientMsg)
		}
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.operatorIndex[client.OperatorID] == nil {
		m.operatorIndex[client.OperatorID] = make(map[string]bool)
	}

	if len(m.operatorIndex[client.OperatorID]) >= m.maxConnPerUser {
		log.Printf("max connections reached for operator %s", client.OperatorID)
		close(client.Send)
		return
	}

	m.clients[client.ID] = client
	m.operatorIndex[client.OperatorID][client.ID] = true

	log.Printf("subscriber registered: %s (operator: %s)", client.ID, client.OperatorID)
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		delete(m.operatorIndex[client.OperatorID], client.ID)

		if len(m.operatorIndex[client.OperatorID]) == 0 {
			delete(m.operatorIndex, client.OperatorID)
		}

		close(client.Send)
		log.Printf("subscriber unregistered: %s", client.ID)
	}
}

// processMessage answers client pings; notification traffic is one-way
// otherwise.
func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		log.Printf("error unmarshaling message: %v", err)
		return
	}

	if msg.Type == TypePing {
		pong, err := NewMessage(TypePong, nil)
		if err != nil {
			return
		}
		m.SendToClient(clientMsg.Client.ID, pong)
	}
}

// Broadcast delivers a message to every connected subscriber.
// Best-effort: a client with a full buffer is dropped, never waited on.
func (m *Manager) Broadcast(message *Message) error {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	for clientID, client := range m.clients {
		select {
		case client.Send <- messageBytes:
		default:
			log.Printf("subscriber %s send buffer full, closing connection", clientID)
			go func(c *Client) { m.Unregister <- c }(client)
		}
	}

	return nil
}

func (m *Manager) SendToClient(clientID string, message *Message) error {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return nil
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case client.Send <- messageBytes:
	default:
		log.Printf("subscriber %s send buffer full", clientID)
	}

	return nil
}

func (m *Manager) SubscriberCount() int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.clients)
}
