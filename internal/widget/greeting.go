package widget

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

const staticGreeting = "Hi there! How can we help you today?"

func returningGreeting(firstName string) string {
	if firstName == "" {
		return "Welcome back! How can we help you today?"
	}
	return "Welcome back, " + firstName + "! How can we help you today?"
}

// Start loads the known-user record and seeds the opening greeting. Returning
// visitors are greeted locally; new visitors get the generated first-contact
// greeting, or the static one when generation fails.
func (s *Session) Start(ctx context.Context) error {
	var known *KnownUser
	if s.profiles != nil {
		u, err := s.profiles.Load(ctx, s.agentID, s.visitor)
		if err != nil {
			s.log.Warn(ctx, "known user load failed", zap.Error(err))
		}
		known = u
	}

	if known != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return ErrSessionClosed
		}
		s.user = *known
		s.known = true
		s.appendGreetingLocked(returningGreeting(known.FirstName))
		return nil
	}

	text := s.firstContactGreeting(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.appendGreetingLocked(text)
	return nil
}

func (s *Session) firstContactGreeting(ctx context.Context) string {
	if s.greeter == nil {
		return staticGreeting
	}
	text, err := s.greeter.Greeting(ctx, s.agentID, s.locale)
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		s.log.Warn(ctx, "greeting generation failed, using static greeting", zap.Error(err))
		return staticGreeting
	}
	return text
}

// Identify records visitor identity and persists the known-user record.
func (s *Session) Identify(ctx context.Context, firstName, leadID string) {
	if firstName == "" && leadID == "" {
		return
	}
	s.mu.Lock()
	if firstName != "" {
		s.user.FirstName = firstName
	}
	if leadID != "" {
		s.user.LeadID = leadID
	}
	s.known = true
	u := s.user
	s.mu.Unlock()

	s.saveProfile(ctx, u)
}

func (s *Session) appendGreetingLocked(text string) {
	s.transcript.Append(Message{
		ClientRef: s.newID(),
		Role:      RoleAssistant,
		Content:   text,
		CreatedAt: s.now(),
		Delivery:  DeliveryDelivered,
		Read:      s.open,
	})
	s.touchLocked()
}
