package widget

import "github.com/go-chi/chi/v5"

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/widget/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.DeleteSession)
			r.Post("/messages", h.SendMessage)
			r.Post("/messages/{ref}/resend", h.ResendMessage)
			r.Post("/conversations", h.NewConversation)
			r.Post("/conversations/{conversationID}/open", h.OpenConversation)
			r.Post("/quick-actions/{kind}", h.QuickAction)
			r.Post("/visibility", h.SetVisibility)
			r.Post("/identify", h.Identify)
			r.Post("/rating/dismiss", h.DismissRating)
		})
	})
}
