package widget

import "time"

// playback is one reply being revealed fragment by fragment.
type playback struct {
	fragments []ReplyFragment
	extras    *ReplyExtras
	complete  bool
	next      int
	parked    bool
	cancel    func()
}

func (p *playback) last() bool {
	return p.next == len(p.fragments)-1
}

// playLocked starts revealing a reply. The first fragment appears at once; each
// later one follows a randomized typing pause. The send guard stays raised until
// the last fragment is in the transcript.
func (s *Session) playLocked(fragments []ReplyFragment, extras *ReplyExtras, complete bool) {
	if len(fragments) == 0 {
		s.finishPlaybackLocked(&playback{complete: complete})
		return
	}
	pb := &playback{fragments: fragments, extras: extras, complete: complete}
	s.playback = pb
	s.revealLocked(pb, true)
	if !s.open {
		s.parkPlaybackLocked()
		return
	}
	s.advanceLocked(pb)
}

func (s *Session) advanceLocked(pb *playback) {
	if pb.next >= len(pb.fragments) {
		s.finishPlaybackLocked(pb)
		return
	}
	s.typing = true
	pb.cancel = s.sched.After(s.pause(), func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.playback != pb || pb.parked {
			return
		}
		s.typing = false
		s.revealLocked(pb, true)
		s.advanceLocked(pb)
	})
}

// revealLocked appends the next fragment. Only the last fragment carries extras.
func (s *Session) revealLocked(pb *playback, animate bool) {
	frag := pb.fragments[pb.next]
	m := Message{
		ID:        frag.ID,
		ClientRef: s.newID(),
		Role:      RoleAssistant,
		Content:   frag.Content,
		CreatedAt: s.now(),
		Delivery:  DeliveryDelivered,
		Read:      s.open,
	}
	if pb.last() {
		m.Extras = pb.extras
	}
	pb.next++
	s.transcript.Append(m)
	s.touchLocked()
	s.metrics.fragment()

	if animate {
		ref := m.ClientRef
		s.newRefs[ref] = struct{}{}
		s.sched.After(s.player.NewMarkerTTL, func() {
			s.mu.Lock()
			delete(s.newRefs, ref)
			s.mu.Unlock()
		})
	}
}

func (s *Session) finishPlaybackLocked(pb *playback) {
	if s.playback == pb {
		s.playback = nil
	}
	s.typing = false
	if pb.complete {
		s.sched.After(s.player.RatingDelay, func() {
			s.mu.Lock()
			s.triggerRatingLocked(RatingAICompleted)
			s.mu.Unlock()
		})
	}
	s.releaseSendSoon()
}

// parkPlaybackLocked stops the cadence while the widget is closed. The remaining
// fragments are kept for flushParkedLocked.
func (s *Session) parkPlaybackLocked() {
	pb := s.playback
	if pb == nil || pb.parked {
		return
	}
	if pb.cancel != nil {
		pb.cancel()
		pb.cancel = nil
	}
	pb.parked = true
	s.typing = false
}

// flushParkedLocked appends every parked fragment without animation.
func (s *Session) flushParkedLocked() {
	pb := s.playback
	if pb == nil || !pb.parked {
		return
	}
	for pb.next < len(pb.fragments) {
		s.revealLocked(pb, false)
	}
	s.finishPlaybackLocked(pb)
}

func (s *Session) pause() time.Duration {
	lo, hi := s.player.MinDelay, s.player.MaxDelay
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(s.jitter()*float64(hi-lo))
}
