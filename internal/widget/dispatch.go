package widget

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Send dispatches one user message. Blank text with no files is a no-op.
// ErrBusy is returned while another send or a conversation switch is in flight;
// any other failure is surfaced on the message itself as DeliveryFailed.
// Cancelling ctx does not abort a dispatch already accepted; its result is applied.
func (s *Session) Send(ctx context.Context, d Draft) error {
	ctx = context.WithoutCancel(ctx)
	text := strings.TrimSpace(d.Text)
	if text == "" && len(d.Files) == 0 {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.phase != PhaseIdle {
		s.mu.Unlock()
		return ErrBusy
	}
	s.phase = PhaseSending
	if s.identity.Kind == IdentityNone {
		s.newPlaceholderLocked()
	}
	conversationID := s.identity.ID
	s.mu.Unlock()

	attachments := s.uploader.UploadAll(ctx, conversationID, d.Files)

	s.mu.Lock()
	msg := Message{
		ClientRef:   s.newID(),
		Role:        RoleUser,
		Content:     text,
		Attachments: attachments,
		CreatedAt:   s.now(),
		Delivery:    DeliveryPending,
		Read:        s.open,
	}
	s.transcript.Append(msg)
	s.touchLocked()
	s.draft = Draft{}
	s.typing = true
	req := s.chatRequestLocked(msg)
	s.mu.Unlock()

	s.dispatch(ctx, msg.ClientRef, req, false)
	return nil
}

// SendDraft sends whatever the composer currently holds.
func (s *Session) SendDraft(ctx context.Context) error {
	s.mu.Lock()
	d := Draft{Text: s.draft.Text, Files: append([]LocalFile(nil), s.draft.Files...)}
	s.mu.Unlock()
	return s.Send(ctx, d)
}

// Resend redispatches a failed message in place.
func (s *Session) Resend(ctx context.Context, clientRef string) error {
	ctx = context.WithoutCancel(ctx)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.phase != PhaseIdle {
		s.mu.Unlock()
		return ErrBusy
	}
	msg, ok := s.transcript.Get(clientRef)
	if !ok || msg.Role != RoleUser {
		s.mu.Unlock()
		return fmt.Errorf("message %s: %w", clientRef, ErrNotFound)
	}
	if msg.Delivery != DeliveryFailed {
		s.mu.Unlock()
		return nil
	}
	s.phase = PhaseSending
	s.transcript.SetDelivery(clientRef, DeliveryPending)
	s.touchLocked()
	s.typing = true
	req := s.chatRequestLocked(msg)
	s.mu.Unlock()

	s.dispatch(ctx, clientRef, req, true)
	return nil
}

func (s *Session) chatRequestLocked(m Message) ChatRequest {
	req := ChatRequest{
		AgentID: s.agentID,
		Message: OutboundMessage{
			Role:        RoleUser,
			Content:     m.Content,
			Attachments: m.Attachments,
		},
		LeadID:          s.user.LeadID,
		PageVisits:      append([]PageVisit(nil), s.visits...),
		ReferrerJourney: append([]string(nil), s.referrers...),
		VisitorID:       s.visitor,
		Locale:          s.locale,
	}
	if s.identity.Kind != IdentityNone {
		id := s.identity.ID
		req.ConversationID = &id
	}
	return req
}

// dispatch performs the round trip for the optimistic message ref. The send guard
// is raised on entry and is released on a later scheduler tick.
func (s *Session) dispatch(ctx context.Context, ref string, req ChatRequest, resend bool) {
	resp, err := s.call(ctx, req)

	s.mu.Lock()
	s.typing = false
	if err != nil {
		s.transcript.SetDelivery(ref, DeliveryFailed)
		s.touchLocked()
		s.releaseSendSoon()
		s.mu.Unlock()

		s.metrics.send("failed")
		s.log.Error(ctx, "dispatch failed", zap.String("client_ref", ref), zap.Error(err))
		return
	}

	promoted := resp.ConversationID != "" && resp.ConversationID != s.identity.ID
	if promoted {
		s.promoteLocked(resp.ConversationID)
	}
	profile, saveProfile := s.knownUserLocked()

	s.reconcileLocked(ref, resp.UserMessageID, resend)

	if resp.Status == StatusHumanTakeover {
		s.takeover = true
		if resp.TakenOverBy != nil {
			s.agent = resp.TakenOverBy
		}
		s.releaseSendSoon()
	} else {
		s.playLocked(replyFragments(resp), replyExtras(resp), resp.AIMarkedComplete)
	}
	s.mu.Unlock()

	s.metrics.send("ok")
	if promoted {
		s.log.Debug(ctx, "conversation promoted", zap.String("conversation_id", resp.ConversationID))
		if saveProfile {
			s.saveProfile(ctx, profile)
		}
		s.conversationChanged(ctx, resp.ConversationID)
	}
}

func (s *Session) call(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if s.backend == nil {
		return nil, fmt.Errorf("no backend configured: %w", ErrDispatch)
	}
	resp, err := s.backend.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("empty response: %w", ErrDispatch)
	}
	return resp, nil
}

func (s *Session) reconcileLocked(ref, id string, resend bool) {
	switch {
	case id == "":
		s.transcript.SetDelivery(ref, DeliveryDelivered)
	case resend:
		s.transcript.ReconcileRef(ref, id)
	default:
		if !s.transcript.ReconcileLatest(RoleUser, id) {
			s.transcript.SetDelivery(ref, DeliveryDelivered)
		}
	}
	s.touchLocked()
}

// replyFragments normalizes the legacy single-reply shape and the chunked shape.
func replyFragments(resp *ChatResponse) []ReplyFragment {
	if len(resp.Messages) > 0 {
		return resp.Messages
	}
	if resp.Response != nil && *resp.Response != "" {
		return []ReplyFragment{{Content: *resp.Response}}
	}
	return nil
}

func replyExtras(resp *ChatResponse) *ReplyExtras {
	e := &ReplyExtras{
		QuickReplies:     resp.QuickReplies,
		CallActions:      resp.CallActions,
		DayPicker:        resp.DayPicker,
		TimePicker:       resp.TimePicker,
		LinkPreviews:     resp.LinkPreviews,
		BookingConfirmed: resp.BookingConfirmed,
	}
	if e.empty() {
		return nil
	}
	return e
}
