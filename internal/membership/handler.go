// internal/membership/handler.go
package membership

import (
	"errors"
	"log/slog"
	"net/http"

	"libraripro/internal/web"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes mounts the membership endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/members", h.HandleListMembers)
	r.Post("/members", h.HandleAddMember)
	r.Get("/members/{id}", h.HandleGetMember)
	r.Put("/members/{id}", h.HandleUpdateMember)
	r.Delete("/members/{id}", h.HandleRemoveMember)
	r.Post("/users", h.HandleRegister)
	r.Post("/users/authenticate", h.HandleAuthenticate)
}

func (h *Handler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	members, err := h.service.ListMembers(r.Context(), Filter{
		Query:  qs.Get("q"),
		Type:   MemberType(qs.Get("type")),
		Status: MemberStatus(qs.Get("status")),
	})
	if err != nil {
		web.Error(w, r, h.logger, err)
		return
	}
	h.write(w, r, http.StatusOK, web.Envelope{"members": members})
}

func (h *Handler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	var in MemberInput
	if err := web.ReadJSON(w, r, &in); err != nil {
		web.BadRequest(w, r, h.logger, err)
		return
	}

	member, err := h.service.AddMember(r.Context(), in)
	if err != nil {
		web.Error(w, r, h.logger, err)
		return
	}
	h.write(w, r, http.StatusCreated, web.Envelope{"member": member})
}

func (h *Handler) HandleGetMember(w http.ResponseWriter, r *http.Request) {
	member, err := h.service.GetMember(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		web.Error(w, r, h.logger, err)
		return
	}
	h.write(w, r, http.StatusOK, web.Envelope{"member": member})
}

func (h *Handler) HandleUpdateMember(w http.ResponseWriter, r *http.Request) {
	var in MemberInput
	if err := web.ReadJSON(w, r, &in); err != nil {
		web.BadRequest(w, r, h.logger, err)
		return
	}

	member, err := h.service.UpdateMember(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		web.Error(w, r, h.logger, err)
		return
	}
	h.write(w, r, http.StatusOK, web.Envelope{"member": member})
}

func (h *Handler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveMember(r.Context(), chi.URLParam(r, "id")); err != nil {
		web.Error(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var reg Registration
	if err := web.ReadJSON(w, r, &reg); err != nil {
		web.BadRequest(w, r, h.logger, err)
		return
	}

	user, err := h.service.RegisterUser(r.Context(), reg)
	if errors.Is(err, ErrRateLimited) {
		web.RateLimited(w, r, h.logger)
		return
	}
	if err != nil {
		web.Error(w, r, h.logger, err)
		return
	}
	h.write(w, r, http.StatusCreated, web.Envelope{"user": user})
}

func (h *Handler) HandleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var login Login
	if err := web.ReadJSON(w, r, &login); err != nil {
		web.BadRequest(w, r, h.logger, err)
		return
	}

	user, err := h.service.Authenticate(r.Context(), login)
	switch {
	case errors.Is(err, ErrRateLimited):
		web.RateLimited(w, r, h.logger)
		return
	case errors.Is(err, ErrInvalidCredentials):
		web.Unauthorized(w, r, h.logger, err.Error())
		return
	case err != nil:
		web.Error(w, r, h.logger, err)
		return
	}
	h.write(w, r, http.StatusOK, web.Envelope{"user": user})
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, status int, data web.Envelope) {
	if err := web.WriteJSON(w, status, data); err != nil {
		web.Error(w, r, h.logger, err)
	}
}
