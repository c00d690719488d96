package widget

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Vovarama1992/chatra-widget-engine/internal/logging"
)

// Phase is the session state machine. Sending covers the whole round trip,
// including reply playback; Opening covers a conversation switch and its fetch.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSending
	PhaseOpening
)

func (p Phase) String() string {
	switch p {
	case PhaseSending:
		return "sending"
	case PhaseOpening:
		return "opening"
	default:
		return "idle"
	}
}

type IdentityKind int

const (
	IdentityNone IdentityKind = iota
	IdentityPlaceholder
	IdentityDurable
)

// Identity is the active conversation cell.
type Identity struct {
	Kind IdentityKind
	ID   string
}

const placeholderPrefix = "local-"

type PlayerConfig struct {
	MinDelay     time.Duration
	MaxDelay     time.Duration
	RatingDelay  time.Duration
	NewMarkerTTL time.Duration
}

func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		MinDelay:     750 * time.Millisecond,
		MaxDelay:     time.Second,
		RatingDelay:  3 * time.Second,
		NewMarkerTTL: 700 * time.Millisecond,
	}
}

type Options struct {
	AgentID   string
	VisitorID string
	Locale    string

	Backend  Backend
	History  HistoryFetcher
	Storage  ObjectStorage
	Profiles UserProfileStore
	Greeter  Greeter

	Scheduler Scheduler
	Player    PlayerConfig
	Logger    *logging.Logger
	Metrics   *Metrics

	Now   func() time.Time
	NewID func() string
	// Jitter returns a value in [0, 1) used to randomize playback pauses.
	Jitter func() float64
}

// Session is one embedded widget instance. Every field below mu is guarded by it.
type Session struct {
	id       string
	agentID  string
	visitor  string
	locale   string
	backend  Backend
	history  HistoryFetcher
	profiles UserProfileStore
	greeter  Greeter
	uploader *Uploader
	sched    Scheduler
	ownSched bool
	player   PlayerConfig
	log      *logging.Logger
	metrics  *Metrics
	now      func() time.Time
	newID    func() string
	jitter   func() float64

	mu         sync.Mutex
	closed     bool
	phase      Phase
	identity   Identity
	fresh      map[string]struct{}
	transcript Transcript
	rev        uint64
	draft      Draft
	user       KnownUser
	known      bool
	open       bool
	typing     bool
	takeover   bool
	agent      *Agent
	rating     RatingPrompt
	newRefs    map[string]struct{}
	playback   *playback
	visits     []PageVisit
	referrers  []string
}

func NewSession(id string, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	ownSched := opts.Scheduler == nil
	if ownSched {
		opts.Scheduler = NewTimerQueue()
	}
	if opts.Player == (PlayerConfig{}) {
		opts.Player = DefaultPlayerConfig()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	if opts.Jitter == nil {
		opts.Jitter = rand.Float64
	}
	log := opts.Logger.Named("widget").With(zap.String("session.id", id))

	return &Session{
		id:       id,
		agentID:  opts.AgentID,
		visitor:  opts.VisitorID,
		locale:   opts.Locale,
		backend:  opts.Backend,
		history:  opts.History,
		profiles: opts.Profiles,
		greeter:  opts.Greeter,
		uploader: NewUploader(opts.Storage, log, opts.Metrics),
		sched:    opts.Scheduler,
		ownSched: ownSched,
		player:   opts.Player,
		log:      log,
		metrics:  opts.Metrics,
		now:      opts.Now,
		newID:    opts.NewID,
		jitter:   opts.Jitter,
		fresh:    make(map[string]struct{}),
		newRefs:  make(map[string]struct{}),
	}
}

func (s *Session) ID() string { return s.id }

// State is a point-in-time view of the session for the presentation layer.
type State struct {
	SessionID      string       `json:"sessionId"`
	Phase          string       `json:"phase"`
	ConversationID string       `json:"conversationId,omitempty"`
	Placeholder    bool         `json:"placeholder"`
	Messages       []Message    `json:"messages"`
	NewMessageRefs []string     `json:"newMessageRefs"`
	Typing         bool         `json:"typing"`
	HumanTakeover  bool         `json:"humanTakeover"`
	TakenOverBy    *Agent       `json:"takenOverBy,omitempty"`
	RatingVisible  bool         `json:"ratingVisible"`
	RatingReason   RatingReason `json:"ratingReason,omitempty"`
	Open           bool         `json:"open"`
	Unread         int          `json:"unread"`
	DraftText      string       `json:"draftText"`
	DraftFiles     int          `json:"draftFiles"`
	KnownUser      *KnownUser   `json:"knownUser,omitempty"`
}

// Snapshot reads the session. Fragments parked while the widget was closed are
// appended, without animation, before the view is built.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushParkedLocked()

	st := State{
		SessionID:      s.id,
		Phase:          s.phase.String(),
		ConversationID: s.identity.ID,
		Placeholder:    s.identity.Kind == IdentityPlaceholder,
		Messages:       s.transcript.Snapshot(),
		NewMessageRefs: make([]string, 0, len(s.newRefs)),
		Typing:         s.typing,
		HumanTakeover:  s.takeover,
		TakenOverBy:    s.agent,
		RatingVisible:  s.rating.Visible(),
		Open:           s.open,
		Unread:         s.transcript.Unread(),
		DraftText:      s.draft.Text,
		DraftFiles:     len(s.draft.Files),
	}
	if s.rating.Shown() {
		st.RatingReason = s.rating.Reason()
	}
	for _, m := range st.Messages {
		if _, ok := s.newRefs[m.ClientRef]; ok {
			st.NewMessageRefs = append(st.NewMessageRefs, m.ClientRef)
		}
	}
	if s.known {
		u := s.user
		st.KnownUser = &u
	}
	return st
}

// Phase reports the current state machine phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) Identity() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// SetOpen records widget visibility. Opening marks everything read; closing during
// playback parks the remaining fragments.
func (s *Session) SetOpen(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = open
	if open {
		s.flushParkedLocked()
		s.transcript.MarkAllRead()
		return
	}
	s.parkPlaybackLocked()
}

func (s *Session) UpdateDraft(text string) {
	s.mu.Lock()
	s.draft.Text = text
	s.mu.Unlock()
}

func (s *Session) StageFile(f LocalFile) {
	s.mu.Lock()
	s.draft.Files = append(s.draft.Files, f)
	s.mu.Unlock()
}

func (s *Session) RecordPageVisit(v PageVisit) {
	s.mu.Lock()
	if v.At.IsZero() {
		v.At = s.now()
	}
	s.visits = append(s.visits, v)
	s.mu.Unlock()
}

func (s *Session) SetReferrerJourney(refs []string) {
	s.mu.Lock()
	s.referrers = append([]string(nil), refs...)
	s.mu.Unlock()
}

// TriggerRating shows the satisfaction prompt unless it was already shown.
func (s *Session) TriggerRating(reason RatingReason) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.triggerRatingLocked(reason)
}

func (s *Session) triggerRatingLocked(reason RatingReason) bool {
	if !s.rating.Trigger(reason) {
		return false
	}
	s.metrics.rating(reason)
	s.log.Debug(context.Background(), "rating prompt shown", zap.String("reason", string(reason)))
	return true
}

func (s *Session) DismissRating() {
	s.mu.Lock()
	s.rating.Dismiss()
	s.mu.Unlock()
}

// SetHumanTakeover flips the takeover indicator, as reported by the realtime feed.
func (s *Session) SetHumanTakeover(agent *Agent) {
	s.mu.Lock()
	s.takeover = true
	if agent != nil {
		s.agent = agent
	}
	s.mu.Unlock()
}

// Close tears the session down and drops pending reveals. A scheduler passed in
// through Options is left running.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.playback != nil && s.playback.cancel != nil {
		s.playback.cancel()
	}
	s.playback = nil
	if s.ownSched {
		s.sched.Stop()
	}
}

// releaseSendSoon lowers the send guard on the next scheduler tick so that work
// queued during the send observes the guard as raised.
func (s *Session) releaseSendSoon() {
	s.sched.After(0, func() {
		s.mu.Lock()
		if s.phase == PhaseSending {
			s.phase = PhaseIdle
		}
		s.mu.Unlock()
	})
}

func (s *Session) newPlaceholderLocked() {
	s.identity = Identity{Kind: IdentityPlaceholder, ID: placeholderPrefix + s.newID()}
}

// promoteLocked records a durable conversation id. The id is marked as holding
// fresh local data before it becomes the active identity.
func (s *Session) promoteLocked(id string) {
	s.fresh[id] = struct{}{}
	s.identity = Identity{Kind: IdentityDurable, ID: id}
	s.user.ConversationID = id
}

func (s *Session) touchLocked() {
	s.rev++
}

func (s *Session) knownUserLocked() (KnownUser, bool) {
	if !s.known && s.user.ConversationID == "" {
		return KnownUser{}, false
	}
	return s.user, true
}

func (s *Session) saveProfile(ctx context.Context, u KnownUser) {
	if s.profiles == nil {
		return
	}
	if err := s.profiles.Save(ctx, s.agentID, s.visitor, u); err != nil {
		s.log.Warn(ctx, "known user save failed", zap.Error(err))
	}
}
