package widget

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Vovarama1992/chatra-widget-engine/internal/logging"
)

// Hub hosts the widget sessions of one agent.
type Hub struct {
	base Options
	log  *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewHub creates a hub. base is copied into every session. Sessions get their own
// timer queue unless base carries a Scheduler, which is then shared and outlives them.
func NewHub(base Options) *Hub {
	log := base.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Hub{
		base:     base,
		log:      log.Named("hub"),
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session for visitorID.
func (h *Hub) Create(ctx context.Context, visitorID string) (*Session, error) {
	if visitorID == "" {
		visitorID = uuid.New().String()
	}
	opts := h.base
	opts.VisitorID = visitorID

	id := uuid.New().String()
	s := NewSession(id, opts)

	h.mu.Lock()
	h.sessions[id] = s
	h.mu.Unlock()
	h.base.Metrics.sessions(1)

	if err := s.Start(logging.WithSessionID(ctx, id)); err != nil {
		h.Remove(id)
		return nil, fmt.Errorf("start session: %w", err)
	}
	h.log.Debug(ctx, "session created", zap.String("session.id", id), zap.String("visitor_id", visitorID))
	return s, nil
}

func (h *Hub) Get(id string) (*Session, error) {
	h.mu.RLock()
	s, ok := h.sessions[id]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s, nil
}

// Remove tears a session down.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if ok {
		s.Close()
		h.base.Metrics.sessions(-1)
	}
}

// ForConversation returns the sessions whose active conversation is id.
func (h *Hub) ForConversation(id string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*Session
	for _, s := range h.sessions {
		if s.Identity().ID == id {
			out = append(out, s)
		}
	}
	return out
}

// Refresh runs a guarded background refresh on every session showing conversationID.
func (h *Hub) Refresh(ctx context.Context, conversationID string) {
	for _, s := range h.ForConversation(conversationID) {
		if err := s.Refresh(logging.WithSessionID(ctx, s.ID()), conversationID); err != nil {
			h.log.Warn(ctx, "refresh failed", zap.String("session.id", s.ID()), zap.Error(err))
		}
	}
}

// AgentClosed shows the rating prompt for sessions on a conversation a human agent closed.
func (h *Hub) AgentClosed(_ context.Context, conversationID string) {
	for _, s := range h.ForConversation(conversationID) {
		s.TriggerRating(RatingAgentClosed)
	}
}

// Takeover flips the human-takeover indicator for sessions on conversationID.
func (h *Hub) Takeover(_ context.Context, conversationID string, agent *Agent) {
	for _, s := range h.ForConversation(conversationID) {
		s.SetHumanTakeover(agent)
	}
}

// Close tears every session down.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*Session)
	h.mu.Unlock()
	for _, s := range sessions {
		s.Close()
		h.base.Metrics.sessions(-1)
	}
}
