// Package realtime feeds conversation updates published on NATS into the widget hub.
//
// Events are published to subjects:
//   - widget.{agent_id}.conversations.{conversation_id}
//
// with a JSON body {"type": "message" | "closed" | "takeover", "agent": {...}}.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Vovarama1992/chatra-widget-engine/internal/logging"
	"github.com/Vovarama1992/chatra-widget-engine/internal/widget"
)

const (
	EventMessage  = "message"
	EventClosed   = "closed"
	EventTakeover = "takeover"
)

type Event struct {
	Type           string        `json:"type"`
	ConversationID string        `json:"conversationId,omitempty"`
	Agent          *widget.Agent `json:"agent,omitempty"`
}

// Sink receives decoded events. *widget.Hub implements it.
type Sink interface {
	Refresh(ctx context.Context, conversationID string)
	AgentClosed(ctx context.Context, conversationID string)
	Takeover(ctx context.Context, conversationID string, agent *widget.Agent)
}

type Subscriber struct {
	nc      *nats.Conn
	agentID string
	sink    Sink
	log     *logging.Logger
	timeout time.Duration
	sub     *nats.Subscription
}

func NewSubscriber(nc *nats.Conn, agentID string, sink Sink, log *logging.Logger) *Subscriber {
	if log == nil {
		log = logging.Nop()
	}
	return &Subscriber{
		nc:      nc,
		agentID: agentID,
		sink:    sink,
		log:     log.Named("realtime"),
		timeout: 10 * time.Second,
	}
}

// Subject returns the wildcard subject for every conversation of agentID.
func Subject(agentID string) string {
	return fmt.Sprintf("widget.%s.conversations.*", agentID)
}

// ConversationSubject returns the subject events for one conversation go to.
func ConversationSubject(agentID, conversationID string) string {
	return fmt.Sprintf("widget.%s.conversations.%s", agentID, conversationID)
}

func (s *Subscriber) Start() error {
	sub, err := s.nc.Subscribe(Subject(s.agentID), func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.Handle(ctx, msg.Subject, msg.Data); err != nil {
			s.log.Warn(ctx, "realtime event dropped", zap.String("subject", msg.Subject), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", Subject(s.agentID), err)
	}
	s.sub = sub
	s.log.Info(context.Background(), "realtime subscribed", zap.String("subject", sub.Subject))
	return nil
}

// Handle decodes one event and routes it to the sink.
func (s *Subscriber) Handle(ctx context.Context, subject string, data []byte) error {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	if ev.ConversationID == "" {
		ev.ConversationID = conversationFromSubject(subject)
	}
	if ev.ConversationID == "" {
		return errors.New("event without conversation id")
	}

	switch ev.Type {
	case EventMessage:
		s.sink.Refresh(ctx, ev.ConversationID)
	case EventClosed:
		s.sink.AgentClosed(ctx, ev.ConversationID)
	case EventTakeover:
		s.sink.Takeover(ctx, ev.ConversationID, ev.Agent)
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	return nil
}

func (s *Subscriber) Close() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}

// Publish sends ev for conversationID. It is used by companion services and tests.
func Publish(nc *nats.Conn, agentID, conversationID string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := nc.Publish(ConversationSubject(agentID, conversationID), data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func conversationFromSubject(subject string) string {
	parts := strings.Split(subject, ".")
	if len(parts) != 4 || parts[2] != "conversations" {
		return ""
	}
	return parts[3]
}
