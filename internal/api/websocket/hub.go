package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omron-sinicx/robotiq-cri/internal/action"
	"github.com/omron-sinicx/robotiq-cri/internal/auth"
	"github.com/omron-sinicx/robotiq-cri/internal/gripper"
)

// TokenValidator checks the token sent in the first client message.
// *auth.JWTHandler implements it.
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
}

// Hub maintains active WebSocket clients and broadcasts messages.
// It is an action.Observer and a gripper.TelemetrySink.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	mu sync.RWMutex

	logger *zap.Logger

	// nil disables the authentication handshake
	tokens TokenValidator
}

// NewHub creates a new Hub instance. tokens may be nil.
func NewHub(logger *zap.Logger, tokens TokenValidator) *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		logger:     logger,
		tokens:     tokens,
	}
}

// Run starts the hub's main event loop and blocks until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket Hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("WebSocket client registered",
				zap.String("remote_addr", client.remoteAddr),
				zap.Int("total_clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("WebSocket client unregistered",
					zap.String("remote_addr", client.remoteAddr),
					zap.Int("total_clients", len(h.clients)))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.Error("Failed to marshal broadcast message",
					zap.Error(err))
				continue
			}

			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Client send channel full - unregister slow/dead client
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("Client send buffer full, unregistering",
						zap.String("remote_addr", client.remoteAddr))
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Hub broadcast channel full, message dropped",
			zap.String("message_type", string(msg.Type)))
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) GoalFeedback(id uuid.UUID, kind action.Kind, fb gripper.Feedback) {
	h.Broadcast(NewMessage(MessageTypeGoalFeedback, GoalFeedbackData{
		GoalID:      id.String(),
		API:         string(kind),
		Position:    fb.Position,
		Velocity:    fb.Velocity,
		Stalled:     fb.Stalled,
		ReachedGoal: fb.ReachedGoal,
	}))
}

func (h *Hub) GoalFinished(rec action.Record) {
	h.Broadcast(NewMessage(MessageTypeGoalResult, GoalResultData{
		GoalID:        rec.ID.String(),
		API:           string(rec.Kind),
		Status:        string(rec.Outcome.Status),
		FinalPosition: rec.Outcome.FinalPosition,
		Stalled:       rec.Outcome.Stalled,
		ReachedGoal:   rec.Outcome.ReachedGoal,
		DurationMS:    rec.FinishedAt.Sub(rec.StartedAt).Milliseconds(),
	}))
}

// ActivationChanged matches gripper.StateListener.
func (h *Hub) ActivationChanged(previous, current gripper.ActivationState) {
	h.Broadcast(NewActivationStateMessage(current.String(), previous.String()))
}

func (h *Hub) PublishJointState(js gripper.JointState) error {
	h.Broadcast(NewMessage(MessageTypeJointState, js))
	return nil
}

func (h *Hub) PublishGripperStatus(gs gripper.GripperStatus) error {
	h.Broadcast(NewMessage(MessageTypeGripperStatus, gs))
	return nil
}
