// internal/catalog/handler.go
package catalog

import (
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

// Routes mounts the catalog endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/books", h.HandleListBooks)
	r.Post("/books", h.HandleAddBook)
	r.Get("/books/lookup/{code}", h.HandleFindByCode)
	r.Get("/books/{id}", h.HandleGetBook)
	r.Put("/books/{id}", h.HandleUpdateBook)
	r.Delete("/books/{id}", h.HandleRemoveBook)
}

func (h *Handler) HandleListBooks(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	books, err := h.service.ListBooks(r.Context(), Filter{
		Query:    qs.Get("q"),
		Category: qs.Get("category"),
		Status:   Status(qs.Get("status")),
	})
	if err != nil {
		web.Error(w, r, h.logger, err)
		return
	}
	h.write(w, r, http.StatusOK, web.Envelope{"books": books})
}

func (h *Handler) HandleAddBook(w http.ResponseWriter, r *http.Request) {
	var in BookInput
	if err := web.ReadJSON(w, r, &in); err != nil {
		web.BadRequest(w, r, h.logger, err)
		return
	}

	book, err := h.service.AddBook(r.Context(), in)
	if err != nil {
		web.Error(w, r, h.logger, err)
		return
	}
	h.write(w, r, http.StatusCreated, web.Envelope{"book": book})
}

func (h *Handler) HandleGetBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.service.GetBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		web.Error(w, r, h.logger, err)
		return
	}
	h.write(w, r, http.StatusOK, web.Envelope{"book": book})
}

func (h *Handler) HandleUpdateBook(w http.ResponseWriter, r *http.Request) {
	var in BookInput
	if err := web.ReadJSON(w, r, &in); err != nil {
		web.BadRequest(w, r, h.logger, err)
		return
	}

	book, err := h.service.UpdateBook(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		web.Error(w, r, h.logger, err)
		return
	}
	h.write(w, r, http.StatusOK, web.Envelope{"book": book})
}

func (h *Handler) HandleRemoveBook(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveBook(r.Context(), chi.URLParam(r, "id")); err != nil {
		web.Error(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleFindByCode(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.FindByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		web.Error(w, r, h.logger, err)
		return
	}
	h.write(w, r, http.StatusOK, web.Envelope{"books": books})
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, status int, data web.Envelope) {
	if err := web.WriteJSON(w, status, data); err != nil {
		web.Error(w, r, h.logger, err)
	}
}
