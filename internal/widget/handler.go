package widget

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Vovarama1992/chatra-widget-engine/internal/logging"
)

type Handler struct {
	hub     *Hub
	log     *logging.Logger
	creates *rate.Limiter
}

func NewHandler(hub *Hub, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{
		hub:     hub,
		log:     log.Named("http"),
		creates: rate.NewLimiter(rate.Inf, 0),
	}
}

// LimitSessionCreation caps POST /widget/sessions at perSecond with the given burst.
// A non-positive perSecond removes the cap.
func (h *Handler) LimitSessionCreation(perSecond float64, burst int) {
	if perSecond <= 0 {
		h.creates = rate.NewLimiter(rate.Inf, 0)
		return
	}
	if burst < 1 {
		burst = 1
	}
	h.creates = rate.NewLimiter(rate.Limit(perSecond), burst)
}

type fileDTO struct {
	Name       string `json:"name"`
	MimeType   string `json:"mimeType"`
	Data       []byte `json:"data"`
	PreviewURL string `json:"previewUrl"`
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	if !h.creates.Allow() {
		http.Error(w, "too many sessions", http.StatusTooManyRequests)
		return
	}
	var payload struct {
		VisitorID       string      `json:"visitorId"`
		Open            bool        `json:"open"`
		PageVisits      []PageVisit `json:"pageVisits"`
		ReferrerJourney []string    `json:"referrerJourney"`
	}
	if err := decode(r, &payload); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	s, err := h.hub.Create(r.Context(), payload.VisitorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s.SetOpen(payload.Open)
	for _, v := range payload.PageVisits {
		s.RecordPageVisit(v)
	}
	if len(payload.ReferrerJourney) > 0 {
		s.SetReferrerJourney(payload.ReferrerJourney)
	}
	writeJSON(w, http.StatusCreated, s.Snapshot())
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	h.hub.Remove(chi.URLParam(r, "sessionID"))
	w.WriteHeader(http.StatusNoContent)
}

// SendMessage dispatches a message; the reply arrives through later snapshots.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload struct {
		Text  string    `json:"text"`
		Files []fileDTO `json:"files"`
	}
	if err := decode(r, &payload); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	d := Draft{Text: payload.Text}
	for _, f := range payload.Files {
		d.Files = append(d.Files, LocalFile{Name: f.Name, MimeType: f.MimeType, Data: f.Data, PreviewURL: f.PreviewURL})
	}
	if err := s.Send(r.Context(), d); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.Snapshot())
}

func (h *Handler) ResendMessage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Resend(r.Context(), chi.URLParam(r, "ref")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.Snapshot())
}

func (h *Handler) NewConversation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.StartNewConversation(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.Snapshot())
}

func (h *Handler) OpenConversation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.OpenConversation(r.Context(), chi.URLParam(r, "conversationID")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) QuickAction(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	route, err := s.HandleQuickAction(r.Context(), QuickAction(chi.URLParam(r, "kind")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"route": route, "state": s.Snapshot()})
}

func (h *Handler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload struct {
		Open bool `json:"open"`
	}
	if err := decode(r, &payload); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	s.SetOpen(payload.Open)
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) Identify(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload struct {
		FirstName string `json:"firstName"`
		LeadID    string `json:"leadId"`
	}
	if err := decode(r, &payload); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	s.Identify(r.Context(), payload.FirstName, payload.LeadID)
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) DismissRating(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.DismissRating()
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	s, err := h.hub.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return s, true
}

// fail maps engine errors to statuses. Raw error text never reaches the visitor.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "something went wrong"
	switch {
	case errors.Is(err, ErrBusy):
		status, msg = http.StatusConflict, "busy"
	case errors.Is(err, ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, ErrUnknownAction):
		status, msg = http.StatusBadRequest, "unknown action"
	case errors.Is(err, ErrSessionClosed):
		status, msg = http.StatusGone, "session closed"
	}
	h.log.Warn(r.Context(), "request failed", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	http.Error(w, msg, status)
}

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
