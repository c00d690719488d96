package widget

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

type QuickAction string

const (
	QuickActionChat QuickAction = "chat"
	QuickActionHelp QuickAction = "help"
)

type Surface string

const (
	SurfaceMessages Surface = "messages"
	SurfaceHelp     Surface = "help"
)

// Route tells the presentation layer where a quick action leads.
type Route struct {
	Surface        Surface `json:"surface"`
	ConversationID string  `json:"conversationId,omitempty"`
}

var ErrUnknownAction = errors.New("widget: unknown quick action")

// StartNewConversation clears the transcript under a fresh placeholder identity.
// Visitors with prior identity get a local greeting, no backend round trip.
func (s *Session) StartNewConversation(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.phase != PhaseIdle {
		return ErrBusy
	}

	s.newPlaceholderLocked()
	s.resetViewLocked()
	if s.known {
		s.appendGreetingLocked(returningGreeting(s.user.FirstName))
	}
	s.log.Debug(ctx, "new conversation", zap.String("conversation_id", s.identity.ID))
	return nil
}

// OpenConversation switches to a persisted conversation and loads its history.
// The open guard is lowered when the fetch completes, whatever its outcome.
func (s *Session) OpenConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.phase != PhaseIdle {
		s.mu.Unlock()
		return ErrBusy
	}
	s.phase = PhaseOpening
	s.identity = Identity{Kind: IdentityDurable, ID: id}
	s.user.ConversationID = id
	s.resetViewLocked()
	profile, save := s.knownUserLocked()
	s.mu.Unlock()

	msgs, err := s.fetch(ctx, id)

	s.mu.Lock()
	s.phase = PhaseIdle
	if err != nil {
		s.mu.Unlock()
		s.log.Warn(ctx, "history fetch failed", zap.String("conversation_id", id), zap.Error(err))
		return fmt.Errorf("open conversation %s: %w", id, err)
	}
	if s.identity.ID == id {
		s.replaceLocked(msgs)
	}
	s.mu.Unlock()

	if save {
		s.saveProfile(ctx, profile)
	}
	return nil
}

// HandleQuickAction routes a launcher action. A chat action reuses the current or
// remembered conversation and never disturbs a send in flight.
func (s *Session) HandleQuickAction(ctx context.Context, kind QuickAction) (Route, error) {
	switch kind {
	case QuickActionHelp:
		return Route{Surface: SurfaceHelp}, nil
	case QuickActionChat:
	default:
		return Route{}, fmt.Errorf("%q: %w", kind, ErrUnknownAction)
	}

	s.mu.Lock()
	current := s.identity
	busy := s.phase != PhaseIdle
	remembered := s.user.ConversationID
	s.mu.Unlock()

	if busy || current.Kind != IdentityNone {
		return Route{Surface: SurfaceMessages, ConversationID: current.ID}, nil
	}
	if remembered != "" {
		if err := s.OpenConversation(ctx, remembered); err != nil && !errors.Is(err, ErrBusy) {
			s.log.Warn(ctx, "quick action open failed", zap.Error(err))
		}
		return Route{Surface: SurfaceMessages, ConversationID: remembered}, nil
	}
	if err := s.StartNewConversation(ctx); err != nil && !errors.Is(err, ErrBusy) {
		return Route{}, err
	}
	return Route{Surface: SurfaceMessages, ConversationID: s.Identity().ID}, nil
}

// Refresh is the background fetch-and-replace driven by realtime updates or polling.
// It does nothing while a send or switch is in flight, for any conversation other
// than the active durable one, or when the transcript changed during the fetch.
func (s *Session) Refresh(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	if skip := s.refreshSkipLocked(conversationID); skip != "" {
		s.mu.Unlock()
		s.metrics.refresh(skip)
		return nil
	}
	rev := s.rev
	s.mu.Unlock()

	msgs, err := s.fetch(ctx, conversationID)
	if err != nil {
		s.metrics.refresh("error")
		s.log.Warn(ctx, "background refresh failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if skip := s.refreshSkipLocked(conversationID); skip != "" {
		s.metrics.refresh(skip)
		return nil
	}
	if s.rev != rev {
		s.metrics.refresh("stale")
		return nil
	}
	s.replaceLocked(msgs)
	s.metrics.refresh("applied")
	return nil
}

func (s *Session) refreshSkipLocked(conversationID string) string {
	switch {
	case s.closed:
		return "closed"
	case s.phase != PhaseIdle:
		return "guarded"
	case s.identity.Kind != IdentityDurable || s.identity.ID != conversationID:
		return "inactive"
	}
	return ""
}

// conversationChanged is the reactive fetch that follows an identity change. An id
// already marked fresh skips it once, keeping the locally built transcript.
func (s *Session) conversationChanged(ctx context.Context, id string) {
	s.mu.Lock()
	if _, ok := s.fresh[id]; ok {
		delete(s.fresh, id)
		s.mu.Unlock()
		s.metrics.refresh("fresh")
		return
	}
	s.mu.Unlock()
	_ = s.Refresh(ctx, id)
}

func (s *Session) fetch(ctx context.Context, id string) ([]Message, error) {
	if s.history == nil {
		return nil, fmt.Errorf("no history fetcher: %w", ErrNotFound)
	}
	return s.history.History(ctx, id)
}

// replaceLocked swaps in fetched history. Local messages the server has not
// acknowledged yet stay after it, in their existing order.
func (s *Session) replaceLocked(msgs []Message) {
	for i := range msgs {
		if msgs[i].ClientRef == "" {
			msgs[i].ClientRef = s.newID()
		}
		if msgs[i].Delivery == "" {
			msgs[i].Delivery = DeliveryDelivered
		}
		if s.open {
			msgs[i].Read = true
		}
	}
	s.transcript.Replace(append(msgs, s.transcript.Unreconciled()...))
	s.touchLocked()
}

func (s *Session) resetViewLocked() {
	s.transcript.Clear()
	s.touchLocked()
	s.playback = nil
	s.typing = false
	s.takeover = false
	s.agent = nil
	clear(s.newRefs)
}
